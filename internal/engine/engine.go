// Package engine implements the real-time matchmaking and room-session core:
// a waiting pool of unmatched connections, a greedy interest matcher, and
// two-party room sessions that relay chat and typing events.
//
// Matching policy: candidates are scanned in insertion order and the first
// one sharing at least one preference value wins. This is deliberately greedy
// rather than best-score — first-come-first-served among compatible partners.
// Score computation lives in score.go so a best-score policy would be a
// local change.
//
// Every pool/registry transition for a match decision runs under one mutex,
// which is what makes the "candidate claimed twice" race impossible rather
// than merely unlikely. Relay inside an existing room only takes a read lock
// on the rooms map and proceeds concurrently with matchmaking.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatchat/chat-app/internal/metrics"
	"github.com/chatchat/chat-app/internal/prefs"
)

// Engine owns the waiting pool, the room set, and the connection registry
// mapping each connection to its current room. A connection is in the pool
// or in a room, never both.
type Engine struct {
	mu     sync.Mutex       // serializes join/skip/disconnect transitions
	pool   *WaitingPool     // guarded by mu
	byConn map[string]*Room // guarded by mu; connID -> current room

	roomsMu sync.RWMutex     // guards rooms; writers also hold mu
	rooms   map[string]*Room // roomID -> room

	prefs prefs.Provider
	sink  EventSink
	obs   Observer
}

// New creates an Engine using the given preference provider and event sink.
func New(provider prefs.Provider, sink EventSink) *Engine {
	return &Engine{
		pool:   NewWaitingPool(),
		byConn: make(map[string]*Room),
		rooms:  make(map[string]*Room),
		prefs:  provider,
		sink:   sink,
		obs:    NopObserver{},
	}
}

// SetObserver installs a lifecycle observer. Must be called before the
// engine starts receiving traffic.
func (e *Engine) SetObserver(obs Observer) {
	if obs != nil {
		e.obs = obs
	}
}

// Join runs one matchmaking attempt for a connection. It captures a fresh
// preference snapshot for userID (empty snapshot when anonymous or unknown),
// scans the waiting pool for the first compatible candidate, and either
// pairs both into a new room or enqueues the caller.
//
// Both outcomes emit a partner_found event: with the room id to both members
// on a match, with an empty room id to the caller alone when waiting.
func (e *Engine) Join(ctx context.Context, connID, userID string) {
	snap := e.snapshot(ctx, userID)

	e.mu.Lock()

	// A join while still in a room is treated as an implicit skip: tear the
	// old room down first so the one-room-per-connection invariant holds.
	var evicted teardown
	if old := e.byConn[connID]; old != nil {
		evicted = e.closeRoomLocked(old, connID, ReasonSkip)
	}

	// Idempotent re-join: drop any stale waiting entry for this connection
	// before scanning so it can never pair with itself.
	e.pool.Remove(connID)

	var matched *WaitingEntry
	var score int
	for _, cand := range e.pool.Candidates() {
		if cand.ConnID == connID {
			continue
		}
		if s := Score(snap, cand.Prefs); s > 0 {
			matched, score = cand, s
			break
		}
	}

	if matched == nil {
		e.pool.Enqueue(&WaitingEntry{
			ConnID:   connID,
			UserID:   userID,
			Prefs:    snap,
			JoinedAt: time.Now(),
		})
		poolSize := e.pool.Len()
		e.mu.Unlock()

		metrics.WaitingPool.Set(float64(poolSize))
		evicted.emit(e)
		e.obs.EnteredPool(connID)
		e.sink.PartnerFound(connID, "")
		log.Printf("[engine] waiting conn=%s (pool=%d)", connID, poolSize)
		return
	}

	e.pool.Remove(matched.ConnID)
	room := newRoom(uuid.New().String(), connID, matched.ConnID)

	e.roomsMu.Lock()
	e.rooms[room.ID] = room
	e.roomsMu.Unlock()

	e.byConn[connID] = room
	e.byConn[matched.ConnID] = room
	poolSize := e.pool.Len()
	roomCount := len(e.rooms)
	e.mu.Unlock()

	metrics.WaitingPool.Set(float64(poolSize))
	metrics.ActiveRooms.Set(float64(roomCount))
	metrics.MatchesTotal.Inc()
	metrics.MatchWaitSeconds.Observe(time.Since(matched.JoinedAt).Seconds())

	evicted.emit(e)
	e.obs.MatchMade(room.ID, connID, matched.ConnID, score)
	e.sink.PartnerFound(matched.ConnID, room.ID)
	e.sink.PartnerFound(connID, room.ID)
	log.Printf("[engine] matched conn=%s with conn=%s room=%s score=%d",
		connID, matched.ConnID, room.ID, score)
}

// Message relays chat text to the other member of the room. It is a silent
// no-op if the room no longer exists or the sender is not a member.
func (e *Engine) Message(connID, roomID, text string) {
	partner, ok := e.partner(connID, roomID)
	if !ok {
		return
	}
	metrics.MessagesTotal.WithLabelValues("relayed").Inc()
	e.sink.Message(partner, text, time.Now().Unix())
}

// Typing relays a transient typing indicator to the other member of the
// room; the sender is excluded. Fire-and-forget, silent no-op on a stale
// or foreign room reference.
func (e *Engine) Typing(connID, roomID string) {
	partner, ok := e.partner(connID, roomID)
	if !ok {
		return
	}
	e.sink.Typing(partner)
}

// Skip leaves the connection's room (notifying the remaining member and
// destroying the room) and immediately re-runs the join flow for the
// requester. A stale or foreign room reference skips the leave step but
// still re-joins.
func (e *Engine) Skip(ctx context.Context, connID, userID, roomID string) {
	e.mu.Lock()
	var closed teardown
	if room := e.lookupRoom(roomID); room != nil && room.Has(connID) {
		closed = e.closeRoomLocked(room, connID, ReasonSkip)
	}
	e.mu.Unlock()

	closed.emit(e)
	log.Printf("[engine] skip conn=%s room=%s", connID, roomID)

	// Explicit two-step: leave above, fresh join attempt here. The join
	// re-captures the preference snapshot.
	e.Join(ctx, connID, userID)
}

// Disconnect removes the connection from the waiting pool and from any room
// it belongs to, notifying the remaining member. Calling it again for the
// same connection is a no-op, so transport teardown racing a heartbeat
// eviction cannot emit partner_left twice.
func (e *Engine) Disconnect(connID string) {
	e.mu.Lock()
	removed := e.pool.Remove(connID)
	var closed teardown
	if room := e.byConn[connID]; room != nil {
		closed = e.closeRoomLocked(room, connID, ReasonDisconnect)
	}
	poolSize := e.pool.Len()
	e.mu.Unlock()

	metrics.WaitingPool.Set(float64(poolSize))
	closed.emit(e)
	if removed || closed.roomID != "" {
		log.Printf("[engine] disconnect cleanup conn=%s (waiting=%v room=%s)",
			connID, removed, closed.roomID)
	}
}

// Waiting reports whether a connection is currently in the waiting pool.
func (e *Engine) Waiting(connID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Contains(connID)
}

// RoomOf returns the id of the room a connection is currently in, or "".
func (e *Engine) RoomOf(connID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if room := e.byConn[connID]; room != nil {
		return room.ID
	}
	return ""
}

// snapshot captures the caller's preference snapshot. Anonymous identities
// and provider failures both degrade to an empty snapshot — a join is never
// an error.
func (e *Engine) snapshot(ctx context.Context, userID string) prefs.Snapshot {
	if userID == "" {
		return prefs.Snapshot{}
	}
	snap, err := e.prefs.GetPreferences(ctx, userID)
	if err != nil {
		log.Printf("[engine] preference lookup failed user=%s: %v", userID, err)
		return prefs.Snapshot{}
	}
	if snap == nil {
		snap = prefs.Snapshot{}
	}
	return snap
}

func (e *Engine) lookupRoom(roomID string) *Room {
	e.roomsMu.RLock()
	room := e.rooms[roomID]
	e.roomsMu.RUnlock()
	return room
}

// partner resolves the other member of roomID for a relay, verifying the
// sender's membership. Only the rooms read lock is taken, so relays run
// concurrently with matchmaking.
func (e *Engine) partner(connID, roomID string) (string, bool) {
	e.roomsMu.RLock()
	defer e.roomsMu.RUnlock()
	room, ok := e.rooms[roomID]
	if !ok {
		return "", false
	}
	return room.Partner(connID)
}

// teardown carries the outcome of a room destruction out of the match lock
// so notifications are emitted after all state is consistent.
type teardown struct {
	roomID  string
	partner string
	reason  LeaveReason
}

func (t teardown) emit(e *Engine) {
	if t.roomID == "" {
		return
	}
	if t.partner != "" {
		e.sink.PartnerLeft(t.partner)
	}
	e.obs.RoomClosed(t.roomID, t.reason)
}

// closeRoomLocked destroys a room because leaver left it. Both members are
// unregistered; the remaining member is reported in the returned teardown
// for notification after the lock is released. Callers must hold e.mu.
func (e *Engine) closeRoomLocked(room *Room, leaver string, reason LeaveReason) teardown {
	partner, _ := room.Partner(leaver)

	e.roomsMu.Lock()
	delete(e.rooms, room.ID)
	e.roomsMu.Unlock()

	a, b := room.Members()
	if e.byConn[a] == room {
		delete(e.byConn, a)
	}
	if e.byConn[b] == room {
		delete(e.byConn, b)
	}

	metrics.ActiveRooms.Set(float64(len(e.rooms)))
	return teardown{roomID: room.ID, partner: partner, reason: reason}
}
