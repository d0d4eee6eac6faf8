// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the chat server reads at startup. Zero values
// are filled with production defaults by Load.
type Config struct {
	ListenAddr     string
	WorkerPoolSize int
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	RedisAddr   string
	NATSURL     string // empty disables the ops event stream
	DatabaseURL string // empty disables stored preferences

	AuthSecret      string
	ServerName      string
	RequireVerified bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win
// over .env entries.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("config: loaded .env file")
	}

	hostname, _ := os.Hostname()

	cfg := Config{
		ListenAddr:      envStr("LISTEN_ADDR", ":8080"),
		WorkerPoolSize:  envInt("WORKER_POOL_SIZE", 256),
		MaxConnections:  envInt("MAX_CONNECTIONS", 100000),
		ReadTimeout:     envDuration("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    envDuration("WRITE_TIMEOUT", 10*time.Second),
		RedisAddr:       envStr("REDIS_ADDR", "localhost:6379"),
		NATSURL:         os.Getenv("NATS_URL"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		AuthSecret:      os.Getenv("AUTH_SECRET"),
		ServerName:      envStr("SERVER_NAME", hostname),
		RequireVerified: envBool("REQUIRE_VERIFIED", false),
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "chat-1"
	}
	return cfg
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("config: invalid %s=%q, using %d", key, v, def)
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("config: invalid %s=%q, using %s", key, v, def)
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("config: invalid %s=%q, using %v", key, v, def)
	}
	return def
}
