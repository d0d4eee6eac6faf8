package engine

import "time"

// Room is the paired session for exactly two connections. A room either has
// both members or does not exist; the moment one side leaves, the room is
// torn down for both.
type Room struct {
	ID        string
	CreatedAt time.Time

	memberA string
	memberB string
}

func newRoom(id, connA, connB string) *Room {
	return &Room{
		ID:        id,
		CreatedAt: time.Now(),
		memberA:   connA,
		memberB:   connB,
	}
}

// Has reports whether the connection is a member of this room.
func (r *Room) Has(connID string) bool {
	return connID == r.memberA || connID == r.memberB
}

// Partner returns the other member of the room. ok is false when the given
// connection is not a member.
func (r *Room) Partner(connID string) (partner string, ok bool) {
	switch connID {
	case r.memberA:
		return r.memberB, true
	case r.memberB:
		return r.memberA, true
	default:
		return "", false
	}
}

// Members returns both member connection ids.
func (r *Room) Members() (string, string) {
	return r.memberA, r.memberB
}
