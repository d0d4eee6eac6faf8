package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatchat/chat-app/internal/auth"
	"github.com/chatchat/chat-app/internal/config"
	"github.com/chatchat/chat-app/internal/engine"
	"github.com/chatchat/chat-app/internal/messaging"
	"github.com/chatchat/chat-app/internal/metrics"
	"github.com/chatchat/chat-app/internal/prefs"
	"github.com/chatchat/chat-app/internal/protocol"
	"github.com/chatchat/chat-app/internal/ratelimit"
	"github.com/chatchat/chat-app/internal/session"
	"github.com/chatchat/chat-app/internal/ws"
)

// wsSink delivers matchmaking events to clients over WebSocket and mirrors
// room membership into the Redis session store. It implements
// engine.EventSink and never calls back into the engine.
type wsSink struct {
	server   *ws.Server
	sessions *session.Store
}

func (s *wsSink) send(connID, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[sink] build %s for session=%s: %v", msgType, connID, err)
		return
	}
	if err := s.server.SendMessage(connID, data); err != nil {
		log.Printf("[sink] send %s to session=%s: %v", msgType, connID, err)
	}
}

func (s *wsSink) sessionCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Second)
}

func (s *wsSink) PartnerFound(connID, roomID string) {
	ctx, cancel := s.sessionCtx()
	defer cancel()

	if roomID == "" {
		_ = s.sessions.SetStatus(ctx, connID, session.StatusWaiting)
	} else {
		_ = s.sessions.SetRoom(ctx, connID, roomID)
	}
	s.send(connID, protocol.TypePartnerFound, protocol.PartnerFoundMsg{Room: roomID})
}

func (s *wsSink) Message(connID, text string, ts int64) {
	s.send(connID, protocol.TypeMessage, protocol.ServerChatMsg{Text: text, Ts: ts})
}

func (s *wsSink) Typing(connID string) {
	s.send(connID, protocol.TypeTyping, protocol.ServerTypingMsg{})
}

func (s *wsSink) PartnerLeft(connID string) {
	ctx, cancel := s.sessionCtx()
	defer cancel()

	_ = s.sessions.ClearRoom(ctx, connID)
	s.send(connID, protocol.TypePartnerLeft, protocol.PartnerLeftMsg{})
}

func main() {
	cfg := config.Load()

	serverConfig := ws.ServerConfig{
		ListenAddr:      cfg.ListenAddr,
		WorkerPoolSize:  cfg.WorkerPoolSize,
		MaxConnections:  cfg.MaxConnections,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		RequireVerified: cfg.RequireVerified,
	}

	// --- Redis (sessions + rate limits) ---
	sessionStore, err := session.Connect(cfg.RedisAddr, cfg.ServerName)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	limiter := ratelimit.NewLimiter(sessionStore.Client())

	// --- Postgres (stored preferences, optional) ---
	var provider prefs.Provider = prefs.Empty{}
	var prefStore *prefs.Store
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		prefStore, err = prefs.Open(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		provider = prefStore
	} else {
		log.Printf("no DATABASE_URL set, all sessions treated as anonymous")
	}

	// --- NATS (ops event stream, optional) ---
	var natsClient *messaging.NATSClient
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Name = cfg.ServerName
		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	}
	events := messaging.NewEventPublisher(natsClient, cfg.ServerName)

	// --- Identity ---
	var verifier *auth.Verifier
	if cfg.AuthSecret != "" {
		verifier = auth.NewVerifier(cfg.AuthSecret)
	} else if cfg.RequireVerified {
		log.Fatalf("REQUIRE_VERIFIED is set but AUTH_SECRET is empty")
	}

	log.Printf("chatchat server starting")
	log.Printf("  listen_addr:      %s", cfg.ListenAddr)
	log.Printf("  worker_pool:      %d", cfg.WorkerPoolSize)
	log.Printf("  max_connections:  %d", cfg.MaxConnections)
	log.Printf("  read_timeout:     %s", cfg.ReadTimeout)
	log.Printf("  write_timeout:    %s", cfg.WriteTimeout)
	log.Printf("  redis_addr:       %s", cfg.RedisAddr)
	log.Printf("  nats_url:         %s", cfg.NATSURL)
	log.Printf("  server_name:      %s", cfg.ServerName)
	log.Printf("  require_verified: %v", cfg.RequireVerified)

	sink := &wsSink{sessions: sessionStore}
	eng := engine.New(provider, sink)
	eng.SetObserver(events)

	dispatcher := ws.NewMessageDispatcher()

	// rateLimited tells the client how long to back off. Fails open on
	// Redis trouble inside the limiter itself.
	rateLimited := func(conn *ws.Connection, rule ratelimit.Rule) bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		allowed, _ := limiter.Allow(ctx, conn.ID, rule)
		if allowed {
			return false
		}

		metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
		resp, _ := protocol.NewServerMessage(protocol.TypeRateLimited, protocol.RateLimitedMsg{
			RetryAfter: limiter.RetryAfter(ctx, conn.ID, rule),
		})
		_ = conn.WriteMessage(resp)
		return true
	}

	// -----------------------------------------------------------------------
	// join — request a partner
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeJoin, func(conn *ws.Connection, msg interface{}) {
		if rateLimited(conn, ratelimit.RuleJoin) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		eng.Join(ctx, conn.ID, conn.UserID)
		log.Printf("join from session=%s user=%q", conn.ID, conn.UserID)
	})

	// -----------------------------------------------------------------------
	// message — relay chat text to the partner
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeMessage, func(conn *ws.Connection, msg interface{}) {
		chatMsg, ok := msg.(protocol.ChatMsg)
		if !ok {
			return
		}

		if err := protocol.ValidateText(chatMsg.Text); err != nil {
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			dispatcher.SendError(conn, "invalid_message", err.Error())
			return
		}

		if rateLimited(conn, ratelimit.RuleMessage) {
			return
		}

		eng.Message(conn.ID, chatMsg.Room, chatMsg.Text)
	})

	// -----------------------------------------------------------------------
	// typing — relay typing indicator to the partner
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeTyping, func(conn *ws.Connection, msg interface{}) {
		typingMsg, ok := msg.(protocol.TypingMsg)
		if !ok {
			return
		}
		eng.Typing(conn.ID, typingMsg.Room)
	})

	// -----------------------------------------------------------------------
	// skip — leave the room and look for a new partner
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSkip, func(conn *ws.Connection, msg interface{}) {
		skipMsg, ok := msg.(protocol.SkipMsg)
		if !ok {
			return
		}
		if rateLimited(conn, ratelimit.RuleJoin) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		eng.Skip(ctx, conn.ID, conn.UserID, skipMsg.Room)
		log.Printf("skip from session=%s room=%s", conn.ID, skipMsg.Room)
	})

	// An untyped nil keeps the server's "no verifier" check working; a nil
	// *auth.Verifier stored in the interface would not compare equal to nil.
	var identityVerifier ws.IdentityVerifier
	if verifier != nil {
		identityVerifier = verifier
	}

	server := ws.NewServer(serverConfig, identityVerifier, dispatcher.Dispatch)
	dispatcher.SetServer(server)
	sink.server = server

	server.SetOnConnect(func(c *ws.Connection) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := sessionStore.Create(ctx, c.ID, c.UserID, c.Verified); err != nil {
			log.Printf("session create failed session=%s: %v", c.ID, err)
		}
		events.SessionConnected(c.ID, c.UserID != "")
	})

	server.SetOnDisconnect(func(connID string) {
		eng.Disconnect(connID)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := sessionStore.Delete(ctx, connID); err != nil {
			log.Printf("session delete failed session=%s: %v", connID, err)
		}
		events.SessionDisconnected(connID)
	})

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		natsClient.Close()
		if prefStore != nil {
			if err := prefStore.Close(); err != nil {
				log.Printf("preference store close error: %v", err)
			}
		}
		if err := sessionStore.Close(); err != nil {
			log.Printf("session store close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
