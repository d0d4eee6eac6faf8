package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "session:"

	// SessionTTL is the time-to-live for session keys in Redis.
	SessionTTL = 1 * time.Hour

	// Status constants for the per-connection state machine.
	StatusIdle     = "idle"     // connected, not waiting and not in a room
	StatusWaiting  = "waiting"  // in the waiting pool
	StatusChatting = "chatting" // paired in a room
)

// Session is a connection's state as stored in Redis. The web tier marks a
// session verified before the WebSocket connect; the chat server owns the
// rest of the fields.
type Session struct {
	ID         string `redis:"id"`
	UserID     string `redis:"user_id"` // empty for guests
	Verified   bool   `redis:"verified"`
	Status     string `redis:"status"` // idle | waiting | chatting
	RoomID     string `redis:"room_id"`
	Server     string `redis:"server"` // which chat server instance
	CreatedAt  int64  `redis:"created_at"`
	LastActive int64  `redis:"last_active"`
}

// Anonymous reports whether the session has no authenticated identity.
func (s *Session) Anonymous() bool {
	return s.UserID == ""
}

// Store manages session state in Redis.
type Store struct {
	client     *redis.Client
	serverName string
}

// NewStore creates a session store on an existing Redis client.
func NewStore(client *redis.Client, serverName string) *Store {
	return &Store{client: client, serverName: serverName}
}

// Connect creates a Redis client for addr, verifies the connection, and
// returns a store bound to it.
func Connect(addr, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Create stores a new session with idle status. userID may be empty for
// guests; verified records whether the connection passed the entry gate.
func (s *Store) Create(ctx context.Context, sessionID, userID string, verified bool) error {
	key := SessionPrefix + sessionID
	now := time.Now().Unix()

	fields := map[string]interface{}{
		"id":          sessionID,
		"user_id":     userID,
		"verified":    verified,
		"status":      StatusIdle,
		"room_id":     "",
		"server":      s.serverName,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a session. Returns nil if not found.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := SessionPrefix + sessionID
	var sess Session
	if err := s.client.HGetAll(ctx, key).Scan(&sess); err != nil {
		return nil, err
	}
	if sess.ID == "" {
		return nil, nil // not found
	}
	return &sess, nil
}

// SetStatus updates the matchmaking status and refreshes the TTL.
func (s *Store) SetStatus(ctx context.Context, sessionID, status string) error {
	key := SessionPrefix + sessionID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "status", status, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SetRoom records the active room id and marks the session chatting.
func (s *Store) SetRoom(ctx context.Context, sessionID, roomID string) error {
	key := SessionPrefix + sessionID
	return s.client.HSet(ctx, key,
		"room_id", roomID, "status", StatusChatting, "last_active", time.Now().Unix()).Err()
}

// ClearRoom removes the room id and resets status to idle.
func (s *Store) ClearRoom(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	return s.client.HSet(ctx, key,
		"room_id", "", "status", StatusIdle, "last_active", time.Now().Unix()).Err()
}

// SetVerified marks the session as having passed the entry gate. Called by
// the web tier after the CAPTCHA/age pages, keyed by the gate cookie.
func (s *Store) SetVerified(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	return s.client.HSet(ctx, key, "verified", true).Err()
}

// RefreshTTL extends the session's TTL.
func (s *Store) RefreshTTL(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	return s.client.Expire(ctx, key, SessionTTL).Err()
}

// Delete removes a session from Redis.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	return s.client.Del(ctx, key).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
