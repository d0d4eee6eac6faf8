package engine

import (
	"testing"
	"time"

	"github.com/chatchat/chat-app/internal/prefs"
)

func entry(connID string) *WaitingEntry {
	return &WaitingEntry{
		ConnID:   connID,
		Prefs:    prefs.Snapshot{"music": {"jazz"}},
		JoinedAt: time.Now(),
	}
}

func TestPool_CandidatesInsertionOrder(t *testing.T) {
	pool := NewWaitingPool()
	pool.Enqueue(entry("a"))
	pool.Enqueue(entry("b"))
	pool.Enqueue(entry("c"))

	got := pool.Candidates()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ConnID != id {
			t.Errorf("candidate[%d]: expected %q, got %q", i, id, got[i].ConnID)
		}
	}
}

func TestPool_EnqueueReplacesStaleEntry(t *testing.T) {
	pool := NewWaitingPool()
	pool.Enqueue(entry("a"))
	pool.Enqueue(entry("b"))

	// Re-joining moves the connection to the back of the scan order.
	pool.Enqueue(entry("a"))

	if pool.Len() != 2 {
		t.Fatalf("expected 2 entries after re-enqueue, got %d", pool.Len())
	}
	got := pool.Candidates()
	if got[0].ConnID != "b" || got[1].ConnID != "a" {
		t.Errorf("expected order [b a], got [%s %s]", got[0].ConnID, got[1].ConnID)
	}
}

func TestPool_Remove(t *testing.T) {
	pool := NewWaitingPool()
	pool.Enqueue(entry("a"))
	pool.Enqueue(entry("b"))

	if !pool.Remove("a") {
		t.Error("expected Remove of present entry to return true")
	}
	if pool.Remove("a") {
		t.Error("expected second Remove to return false")
	}
	if pool.Remove("never-added") {
		t.Error("expected Remove of unknown entry to return false")
	}
	if pool.Contains("a") {
		t.Error("removed entry still reported as waiting")
	}
	if !pool.Contains("b") {
		t.Error("unrelated entry lost by Remove")
	}
	if pool.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", pool.Len())
	}
}

func TestPool_CandidatesIsSnapshot(t *testing.T) {
	pool := NewWaitingPool()
	pool.Enqueue(entry("a"))

	got := pool.Candidates()
	pool.Remove("a")

	if len(got) != 1 || got[0].ConnID != "a" {
		t.Error("candidate snapshot mutated by later pool change")
	}
}
