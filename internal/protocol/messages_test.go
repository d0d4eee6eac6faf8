package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid join message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Join(t *testing.T) {
	input := []byte(`{"type":"join"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeJoin {
		t.Fatalf("expected type %q, got %q", TypeJoin, msgType)
	}
	if _, ok := msg.(JoinMsg); !ok {
		t.Fatalf("expected JoinMsg, got %T", msg)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid message (chat) message
// ---------------------------------------------------------------------------

func TestParseClientMessage_ChatMsg(t *testing.T) {
	input := []byte(`{"type":"message","room":"abc-123","text":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMessage {
		t.Fatalf("expected type %q, got %q", TypeMessage, msgType)
	}

	cm, ok := msg.(ChatMsg)
	if !ok {
		t.Fatalf("expected ChatMsg, got %T", msg)
	}
	if cm.Room != "abc-123" {
		t.Errorf("expected room %q, got %q", "abc-123", cm.Room)
	}
	if cm.Text != "Hello!" {
		t.Errorf("expected text %q, got %q", "Hello!", cm.Text)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing typing and skip messages
// ---------------------------------------------------------------------------

func TestParseClientMessage_Typing(t *testing.T) {
	msgType, msg, err := ParseClientMessage([]byte(`{"type":"typing","room":"r1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeTyping {
		t.Fatalf("expected type %q, got %q", TypeTyping, msgType)
	}
	tm, ok := msg.(TypingMsg)
	if !ok {
		t.Fatalf("expected TypingMsg, got %T", msg)
	}
	if tm.Room != "r1" {
		t.Errorf("expected room %q, got %q", "r1", tm.Room)
	}
}

func TestParseClientMessage_Skip(t *testing.T) {
	msgType, msg, err := ParseClientMessage([]byte(`{"type":"skip","room":"r2"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSkip {
		t.Fatalf("expected type %q, got %q", TypeSkip, msgType)
	}
	sm, ok := msg.(SkipMsg)
	if !ok {
		t.Fatalf("expected SkipMsg, got %T", msg)
	}
	if sm.Room != "r2" {
		t.Errorf("expected room %q, got %q", "r2", sm.Room)
	}
}

// ---------------------------------------------------------------------------
// Test: Invalid input handling
// ---------------------------------------------------------------------------

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"type":"launch_missiles"}`))
	if err == nil {
		t.Fatal("expected error for unknown type, got nil")
	}
}

func TestParseClientMessage_ServerOnlyType(t *testing.T) {
	// Clients must not send server-to-client types.
	_, _, err := ParseClientMessage([]byte(`{"type":"partner_found"}`))
	if err == nil {
		t.Fatal("expected error for server-only type, got nil")
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"room":"r1"}`))
	if err == nil {
		t.Fatal("expected error for missing type, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Building server messages
// ---------------------------------------------------------------------------

func TestNewServerMessage_InjectsType(t *testing.T) {
	data, err := NewServerMessage(TypePartnerFound, PartnerFoundMsg{Room: "room-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["type"] != TypePartnerFound {
		t.Errorf("expected type %q, got %v", TypePartnerFound, m["type"])
	}
	if m["room"] != "room-1" {
		t.Errorf("expected room %q, got %v", "room-1", m["room"])
	}
}

func TestNewServerMessage_PartnerFoundOmitsEmptyRoom(t *testing.T) {
	// A waiting response carries no room field at all.
	data, err := NewServerMessage(TypePartnerFound, PartnerFoundMsg{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(data), "room") {
		t.Errorf("waiting response should omit room field, got %s", data)
	}
}

func TestNewServerMessage_RoundTrip(t *testing.T) {
	data, err := NewServerMessage(TypeMessage, ServerChatMsg{Text: "hey", Ts: 1700000000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["type"] != TypeMessage {
		t.Errorf("expected type %q, got %v", TypeMessage, m["type"])
	}
	if m["text"] != "hey" {
		t.Errorf("expected text %q, got %v", "hey", m["text"])
	}
	if int64(m["ts"].(float64)) != 1700000000 {
		t.Errorf("expected ts 1700000000, got %v", m["ts"])
	}
}

// ---------------------------------------------------------------------------
// Test: Message text validation
// ---------------------------------------------------------------------------

func TestValidateText(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"valid short", "hello", false},
		{"valid unicode", "héllo wörld 😀", false},
		{"empty", "", true},
		{"max chars", strings.Repeat("a", MaxTextChars), false},
		{"too many chars", strings.Repeat("a", MaxTextChars+1), true},
		{"two byte runes at limit", strings.Repeat("é", MaxTextChars), false},
		{"over byte limit", strings.Repeat("\U0001F600", 1500), true}, // 1500 runes but 6000 bytes
		{"invalid utf8", string([]byte{0xff, 0xfe, 0xfd}), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateText(tc.text)
			if tc.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
