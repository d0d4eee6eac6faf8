package engine

import (
	"time"

	"github.com/chatchat/chat-app/internal/prefs"
)

// WaitingEntry is one unmatched connection in the waiting pool, tagged with
// the preference snapshot captured at join time.
type WaitingEntry struct {
	ConnID   string
	UserID   string // empty for anonymous connections
	Prefs    prefs.Snapshot
	JoinedAt time.Time
}

// WaitingPool holds connections that are not currently in a room, in
// insertion order (oldest first). Scan order is the first-come-first-served
// tie-break among equally scored candidates, so order is part of the
// contract, not an implementation detail.
//
// The pool is not goroutine-safe on its own; the engine's match lock guards
// every call. The candidate scan is linear — fine at the scale this serves.
// The natural upgrade for large pools is a per-(category,value) index over
// entries, which would bound the scan to candidates sharing at least one
// value.
type WaitingPool struct {
	entries []*WaitingEntry
	byConn  map[string]*WaitingEntry
}

// NewWaitingPool creates an empty pool.
func NewWaitingPool() *WaitingPool {
	return &WaitingPool{
		byConn: make(map[string]*WaitingEntry),
	}
}

// Enqueue adds an entry, removing any prior entry for the same connection
// first so a re-join never leaves a stale duplicate behind.
func (p *WaitingPool) Enqueue(entry *WaitingEntry) {
	p.Remove(entry.ConnID)
	p.entries = append(p.entries, entry)
	p.byConn[entry.ConnID] = entry
}

// Remove deletes the entry for a connection. It is a no-op if the connection
// is not waiting. Returns true if an entry was removed.
func (p *WaitingPool) Remove(connID string) bool {
	if _, ok := p.byConn[connID]; !ok {
		return false
	}
	delete(p.byConn, connID)

	kept := p.entries[:0]
	for _, e := range p.entries {
		if e.ConnID != connID {
			kept = append(kept, e)
		}
	}
	p.entries = kept
	return true
}

// Candidates returns the current entries in insertion order. The returned
// slice is a snapshot; mutating the pool does not affect it.
func (p *WaitingPool) Candidates() []*WaitingEntry {
	out := make([]*WaitingEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Contains reports whether a connection is currently waiting.
func (p *WaitingPool) Contains(connID string) bool {
	_, ok := p.byConn[connID]
	return ok
}

// Len returns the number of waiting connections.
func (p *WaitingPool) Len() int {
	return len(p.entries)
}
