package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/chatchat/chat-app/internal/prefs"
)

// mapProvider is a fixed in-memory preference source keyed by user id.
type mapProvider map[string]prefs.Snapshot

func (m mapProvider) GetPreferences(ctx context.Context, userID string) (prefs.Snapshot, error) {
	if snap, ok := m[userID]; ok {
		return snap, nil
	}
	return prefs.Snapshot{}, nil
}

// sinkEvent records one outbound event delivered to a connection.
type sinkEvent struct {
	kind   string // "partner_found", "message", "typing", "partner_left"
	connID string
	room   string
	text   string
}

// recordSink captures sink calls for assertions. Safe for concurrent use.
type recordSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordSink) add(e sinkEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordSink) PartnerFound(connID, roomID string) {
	s.add(sinkEvent{kind: "partner_found", connID: connID, room: roomID})
}

func (s *recordSink) Message(connID, text string, ts int64) {
	s.add(sinkEvent{kind: "message", connID: connID, text: text})
}

func (s *recordSink) Typing(connID string) {
	s.add(sinkEvent{kind: "typing", connID: connID})
}

func (s *recordSink) PartnerLeft(connID string) {
	s.add(sinkEvent{kind: "partner_left", connID: connID})
}

// forConn returns all events delivered to a connection, in order.
func (s *recordSink) forConn(connID string) []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkEvent
	for _, e := range s.events {
		if e.connID == connID {
			out = append(out, e)
		}
	}
	return out
}

// lastPartnerFound returns the most recent partner_found event for connID.
func (s *recordSink) lastPartnerFound(t *testing.T, connID string) sinkEvent {
	t.Helper()
	var found *sinkEvent
	for _, e := range s.forConn(connID) {
		if e.kind == "partner_found" {
			e := e
			found = &e
		}
	}
	if found == nil {
		t.Fatalf("no partner_found event for conn %s", connID)
	}
	return *found
}

func (s *recordSink) count(connID, kind string) int {
	n := 0
	for _, e := range s.forConn(connID) {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func newTestEngine(provider prefs.Provider) (*Engine, *recordSink) {
	sink := &recordSink{}
	return New(provider, sink), sink
}

var musicFans = mapProvider{
	"u1": {"music": {"jazz", "rock"}},
	"u2": {"music": {"rock", "metal"}},
	"u3": {"sports": {"tennis"}},
}

// ---------------------------------------------------------------------------
// Join
// ---------------------------------------------------------------------------

func TestJoin_NoCandidates_EntersPool(t *testing.T) {
	eng, sink := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")

	if !eng.Waiting("c1") {
		t.Error("expected connection to be waiting")
	}
	if got := sink.lastPartnerFound(t, "c1"); got.room != "" {
		t.Errorf("expected empty room in waiting response, got %q", got.room)
	}
}

func TestJoin_SharedPreference_CreatesRoom(t *testing.T) {
	eng, sink := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")
	eng.Join(ctx, "c2", "u2") // shares "rock" with u1

	roomA := sink.lastPartnerFound(t, "c1").room
	roomB := sink.lastPartnerFound(t, "c2").room
	if roomA == "" || roomB == "" {
		t.Fatalf("expected both sides to receive a room, got %q and %q", roomA, roomB)
	}
	if roomA != roomB {
		t.Errorf("partners received different rooms: %q vs %q", roomA, roomB)
	}
	if eng.Waiting("c1") || eng.Waiting("c2") {
		t.Error("matched connections must not remain in the pool")
	}
	if eng.RoomOf("c1") != roomA || eng.RoomOf("c2") != roomA {
		t.Error("room registry does not agree with the events sent")
	}
}

func TestJoin_DisjointPreferences_NeverPair(t *testing.T) {
	eng, sink := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1") // music
	eng.Join(ctx, "c3", "u3") // sports only

	if !eng.Waiting("c1") || !eng.Waiting("c3") {
		t.Error("disjoint connections must both remain waiting")
	}
	if got := sink.lastPartnerFound(t, "c3"); got.room != "" {
		t.Errorf("expected waiting response, got room %q", got.room)
	}
}

func TestJoin_AnonymousNeverMatches(t *testing.T) {
	eng, _ := newTestEngine(mapProvider{})
	ctx := context.Background()

	// Anonymous connections carry empty snapshots, so every pair scores 0.
	eng.Join(ctx, "g1", "")
	eng.Join(ctx, "g2", "")

	if !eng.Waiting("g1") || !eng.Waiting("g2") {
		t.Error("anonymous connections must never pair with each other")
	}
}

func TestJoin_GreedyFirstCompatible(t *testing.T) {
	provider := mapProvider{
		"p": {"music": {"jazz"}},
		"q": {"games": {"chess"}},
		"r": {"games": {"chess", "go"}, "food": {"pho"}},
	}
	eng, sink := newTestEngine(provider)
	ctx := context.Background()

	// p and q wait in that order; neither is compatible with the other.
	eng.Join(ctx, "cp", "p")
	eng.Join(ctx, "cq", "q")
	if !eng.Waiting("cp") || !eng.Waiting("cq") {
		t.Fatal("setup failed: p and q should both be waiting")
	}

	// r scans in insertion order: p first (score 0), then q (score 1).
	eng.Join(ctx, "cr", "r")

	if sink.lastPartnerFound(t, "cr").room == "" {
		t.Fatal("expected r to be matched")
	}
	if eng.RoomOf("cr") != eng.RoomOf("cq") {
		t.Error("expected r to pair with q, the first compatible candidate")
	}
	if !eng.Waiting("cp") {
		t.Error("p shares nothing with r and must remain waiting")
	}
}

func TestJoin_RejoinWhileWaitingKeepsSingleEntry(t *testing.T) {
	eng, _ := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")
	eng.Join(ctx, "c1", "u1")

	// A connection never matches its own stale entry.
	if eng.RoomOf("c1") != "" {
		t.Error("connection paired with itself")
	}
	if !eng.Waiting("c1") {
		t.Error("expected connection to still be waiting")
	}
}

func TestJoin_WhileInRoom_TearsDownOldRoom(t *testing.T) {
	eng, sink := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")
	eng.Join(ctx, "c2", "u2")

	// c1 joins again without skipping first. The old room must close and
	// c2 must be told, then c1 waits (c2 is not re-queued).
	eng.Join(ctx, "c1", "u1")

	if got := sink.count("c2", "partner_left"); got != 1 {
		t.Errorf("expected 1 partner_left for abandoned side, got %d", got)
	}
	if eng.RoomOf("c2") != "" {
		t.Error("abandoned side still registered in a room")
	}
	if !eng.Waiting("c1") {
		t.Error("re-joining side should be waiting")
	}
}

// ---------------------------------------------------------------------------
// Relay
// ---------------------------------------------------------------------------

func TestMessage_RelaysToPartnerOnly(t *testing.T) {
	eng, sink := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")
	eng.Join(ctx, "c2", "u2")
	room := eng.RoomOf("c1")

	eng.Message("c1", room, "hello there")

	if got := sink.count("c2", "message"); got != 1 {
		t.Fatalf("expected 1 message to partner, got %d", got)
	}
	if got := sink.count("c1", "message"); got != 0 {
		t.Errorf("sender must not receive its own message, got %d", got)
	}
	events := sink.forConn("c2")
	last := events[len(events)-1]
	if last.text != "hello there" {
		t.Errorf("expected relayed text %q, got %q", "hello there", last.text)
	}
}

func TestMessage_StaleRoom_SilentNoOp(t *testing.T) {
	eng, sink := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")
	eng.Join(ctx, "c2", "u2")
	room := eng.RoomOf("c1")
	eng.Disconnect("c2")

	before := len(sink.forConn("c1")) + len(sink.forConn("c2"))
	eng.Message("c1", room, "anyone there?")
	eng.Message("c1", "no-such-room", "hello?")
	after := len(sink.forConn("c1")) + len(sink.forConn("c2"))

	if before != after {
		t.Error("stale room message must not produce any events")
	}
}

func TestMessage_NonMemberRoom_SilentNoOp(t *testing.T) {
	eng, sink := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")
	eng.Join(ctx, "c2", "u2")
	room := eng.RoomOf("c1")

	// An outsider naming a real room must not reach its members.
	eng.Message("intruder", room, "let me in")

	if got := sink.count("c1", "message") + sink.count("c2", "message"); got != 0 {
		t.Errorf("expected no relays for non-member sender, got %d", got)
	}
}

func TestTyping_RelaysToPartnerOnly(t *testing.T) {
	eng, sink := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")
	eng.Join(ctx, "c2", "u2")

	eng.Typing("c2", eng.RoomOf("c2"))

	if got := sink.count("c1", "typing"); got != 1 {
		t.Errorf("expected 1 typing event to partner, got %d", got)
	}
	if got := sink.count("c2", "typing"); got != 0 {
		t.Errorf("sender must not receive its own typing event, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Skip
// ---------------------------------------------------------------------------

func TestSkip_NotifiesPartnerAndRejoins(t *testing.T) {
	eng, sink := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")
	eng.Join(ctx, "c2", "u2")
	room := eng.RoomOf("c1")

	eng.Skip(ctx, "c1", "u1", room)

	if got := sink.count("c2", "partner_left"); got != 1 {
		t.Errorf("expected 1 partner_left to remaining member, got %d", got)
	}
	if eng.RoomOf("c1") != "" || eng.RoomOf("c2") != "" {
		t.Error("room must be destroyed on skip")
	}
	// Skipper re-enters matchmaking; the pool is otherwise empty so it waits.
	if !eng.Waiting("c1") {
		t.Error("skipper must re-enter the waiting pool")
	}
	// The skipped partner is not re-queued.
	if eng.Waiting("c2") {
		t.Error("skipped partner must not be silently re-queued")
	}
}

func TestSkip_StaleRoom_StillRejoins(t *testing.T) {
	eng, sink := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Skip(ctx, "c1", "u1", "no-such-room")

	if !eng.Waiting("c1") {
		t.Error("skip with a stale room must still re-enter matchmaking")
	}
	if got := sink.lastPartnerFound(t, "c1"); got.room != "" {
		t.Errorf("expected waiting response, got room %q", got.room)
	}
}

func TestSkip_CanMatchAgainImmediately(t *testing.T) {
	provider := mapProvider{
		"u1": {"music": {"jazz"}},
		"u2": {"music": {"jazz"}},
		"u4": {"music": {"jazz"}},
	}
	eng, sink := newTestEngine(provider)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")
	eng.Join(ctx, "c2", "u2")
	eng.Join(ctx, "c4", "u4") // waits while c1/c2 chat

	eng.Skip(ctx, "c2", "u2", eng.RoomOf("c2"))

	newRoom := sink.lastPartnerFound(t, "c2").room
	if newRoom == "" {
		t.Fatal("expected skipper to match the waiting connection")
	}
	if eng.RoomOf("c4") != newRoom {
		t.Error("skipper did not pair with the waiting connection")
	}
	if got := sink.count("c1", "partner_left"); got != 1 {
		t.Errorf("expected 1 partner_left to abandoned side, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// Disconnect
// ---------------------------------------------------------------------------

func TestDisconnect_RemovesFromPool(t *testing.T) {
	eng, _ := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")
	eng.Disconnect("c1")

	if eng.Waiting("c1") {
		t.Error("disconnected connection still waiting")
	}

	// A later compatible join must not see the dead entry.
	eng.Join(ctx, "c2", "u2")
	if eng.RoomOf("c2") != "" {
		t.Error("new join paired with a disconnected connection")
	}
}

func TestDisconnect_NotifiesPartner(t *testing.T) {
	eng, sink := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")
	eng.Join(ctx, "c2", "u2")

	eng.Disconnect("c1")

	if got := sink.count("c2", "partner_left"); got != 1 {
		t.Errorf("expected 1 partner_left, got %d", got)
	}
	if eng.RoomOf("c2") != "" {
		t.Error("room must be destroyed when a member disconnects")
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	eng, sink := newTestEngine(musicFans)
	ctx := context.Background()

	eng.Join(ctx, "c1", "u1")
	eng.Join(ctx, "c2", "u2")

	// Read-error path and heartbeat eviction can both report the same
	// connection gone.
	eng.Disconnect("c1")
	eng.Disconnect("c1")
	eng.Disconnect("c1")

	if got := sink.count("c2", "partner_left"); got != 1 {
		t.Errorf("repeat disconnects produced %d partner_left events, want 1", got)
	}
}

func TestDisconnect_UnknownConnection_NoOp(t *testing.T) {
	eng, sink := newTestEngine(musicFans)

	eng.Disconnect("never-connected")

	if len(sink.events) != 0 {
		t.Errorf("expected no events, got %d", len(sink.events))
	}
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestConcurrentJoins_NoDoubleClaim(t *testing.T) {
	const n = 40

	provider := mapProvider{}
	for i := 0; i < n; i++ {
		provider[fmt.Sprintf("u%d", i)] = prefs.Snapshot{"music": {"jazz"}}
	}
	eng, sink := newTestEngine(provider)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			eng.Join(ctx, fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i))
		}(i)
	}
	wg.Wait()

	// Every connection ends up either waiting or in exactly one two-member
	// room, never both.
	members := make(map[string][]string)
	waiting := 0
	for i := 0; i < n; i++ {
		connID := fmt.Sprintf("c%d", i)
		room := eng.RoomOf(connID)
		inPool := eng.Waiting(connID)

		if room != "" && inPool {
			t.Errorf("conn %s is both waiting and in room %s", connID, room)
		}
		if room == "" && !inPool {
			t.Errorf("conn %s is neither waiting nor in a room", connID)
		}
		if room != "" {
			members[room] = append(members[room], connID)
		} else {
			waiting++
		}
	}

	for room, conns := range members {
		if len(conns) != 2 {
			t.Errorf("room %s has %d members, want 2", room, len(conns))
		}
	}
	if waiting+2*len(members) != n {
		t.Errorf("accounting mismatch: %d waiting + %d rooms != %d conns",
			waiting, len(members), n)
	}
	// All joins share a preference, so at most one connection is left over.
	if waiting > 1 {
		t.Errorf("%d compatible connections left waiting, want at most 1", waiting)
	}

	// Both members of every room were told the same room id.
	for room, conns := range members {
		for _, connID := range conns {
			if got := sink.lastPartnerFound(t, connID).room; got != room {
				t.Errorf("conn %s saw room %q but registry says %q", connID, got, room)
			}
		}
	}
}
