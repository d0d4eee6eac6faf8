package messaging

import (
	"encoding/json"
	"log"
	"time"

	"github.com/chatchat/chat-app/internal/engine"
)

// EventPublisher turns matchmaking lifecycle callbacks into NATS events.
// It implements engine.Observer. Per the observer contract it never calls
// back into the engine; it only serializes and publishes.
type EventPublisher struct {
	nats   *NATSClient
	server string
}

var _ engine.Observer = (*EventPublisher)(nil)

// NewEventPublisher creates an EventPublisher tagging every event with the
// given server name. A nil client yields a publisher that drops everything.
func NewEventPublisher(client *NATSClient, serverName string) *EventPublisher {
	return &EventPublisher{nats: client, server: serverName}
}

type sessionEvent struct {
	SessionID     string `json:"session_id"`
	Authenticated bool   `json:"authenticated"`
	Server        string `json:"server"`
	Ts            int64  `json:"ts"`
}

type waitingEvent struct {
	SessionID string `json:"session_id"`
	Server    string `json:"server"`
	Ts        int64  `json:"ts"`
}

type matchEvent struct {
	RoomID   string `json:"room_id"`
	SessionA string `json:"session_a"`
	SessionB string `json:"session_b"`
	Score    int    `json:"score"`
	Server   string `json:"server"`
	Ts       int64  `json:"ts"`
}

type roomClosedEvent struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
	Server string `json:"server"`
	Ts     int64  `json:"ts"`
}

// SessionConnected publishes a session lifecycle event for a new connection.
func (p *EventPublisher) SessionConnected(sessionID string, authenticated bool) {
	p.publish(SubjectSessionConnected, sessionEvent{
		SessionID:     sessionID,
		Authenticated: authenticated,
		Server:        p.server,
		Ts:            time.Now().Unix(),
	})
}

// SessionDisconnected publishes a session lifecycle event for a closed
// connection.
func (p *EventPublisher) SessionDisconnected(sessionID string) {
	p.publish(SubjectSessionDisconnected, sessionEvent{
		SessionID: sessionID,
		Server:    p.server,
		Ts:        time.Now().Unix(),
	})
}

// EnteredPool implements engine.Observer.
func (p *EventPublisher) EnteredPool(connID string) {
	p.publish(SubjectMatchWaiting, waitingEvent{
		SessionID: connID,
		Server:    p.server,
		Ts:        time.Now().Unix(),
	})
}

// MatchMade implements engine.Observer.
func (p *EventPublisher) MatchMade(roomID, connA, connB string, score int) {
	p.publish(SubjectMatchMade, matchEvent{
		RoomID:   roomID,
		SessionA: connA,
		SessionB: connB,
		Score:    score,
		Server:   p.server,
		Ts:       time.Now().Unix(),
	})
}

// RoomClosed implements engine.Observer.
func (p *EventPublisher) RoomClosed(roomID string, reason engine.LeaveReason) {
	p.publish(SubjectRoomClosed, roomClosedEvent{
		RoomID: roomID,
		Reason: string(reason),
		Server: p.server,
		Ts:     time.Now().Unix(),
	})
}

func (p *EventPublisher) publish(subject string, event interface{}) {
	if p == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[nats] marshal event %s: %v", subject, err)
		return
	}
	if err := p.nats.Publish(subject, data); err != nil {
		log.Printf("[nats] publish %s: %v", subject, err)
	}
}
