package engine

// LeaveReason says why a connection left its room.
type LeaveReason string

const (
	ReasonSkip       LeaveReason = "skip"
	ReasonDisconnect LeaveReason = "disconnect"
)

// EventSink receives the outbound events the engine produces for clients.
// The transport layer implements this to serialize events onto the wire.
// Sink methods are invoked outside the engine's match lock and must not call
// back into the engine.
type EventSink interface {
	// PartnerFound reports the outcome of a join. A non-empty roomID means
	// the connection was paired into that room; an empty roomID means it was
	// placed in the waiting pool.
	PartnerFound(connID, roomID string)

	// Message delivers relayed chat text to the non-sending room member.
	Message(connID, text string, ts int64)

	// Typing delivers the partner's typing indicator.
	Typing(connID string)

	// PartnerLeft tells the remaining member that the other side skipped or
	// disconnected and the room is gone.
	PartnerLeft(connID string)
}

// Observer receives engine lifecycle notifications for ops consumers
// (event stream, dashboards). All methods are fire-and-forget.
type Observer interface {
	EnteredPool(connID string)
	MatchMade(roomID, connA, connB string, score int)
	RoomClosed(roomID string, reason LeaveReason)
}

// NopObserver is an Observer that ignores every event.
type NopObserver struct{}

func (NopObserver) EnteredPool(connID string)                        {}
func (NopObserver) MatchMade(roomID, connA, connB string, score int) {}
func (NopObserver) RoomClosed(roomID string, reason LeaveReason)     {}
