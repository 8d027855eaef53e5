package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every runtime knob for the arena server.
type Config struct {
	ListenAddr  string
	RedisURL    string
	DatabaseURL string
	JWTSecret   string

	GracePeriod       time.Duration
	MoveRateLimit     time.Duration
	QuickChatCooldown time.Duration
	InviteTTL         time.Duration
	MatchRetention    time.Duration
}

// Load reads configuration from the environment. RedisURL, DatabaseURL and
// JWTSecret have no defaults and must be set.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getenvDefault("LISTEN_ADDR", ":8080"),
		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTSecret:   strings.TrimSpace(os.Getenv("JWT_SECRET")),
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	var err error
	if cfg.GracePeriod, err = durationMs("GRACE_PERIOD_MS", 20000); err != nil {
		return nil, err
	}
	if cfg.MoveRateLimit, err = durationMs("MOVE_RATE_LIMIT_MS", 500); err != nil {
		return nil, err
	}
	if cfg.QuickChatCooldown, err = durationMs("QUICKCHAT_COOLDOWN_MS", 3000); err != nil {
		return nil, err
	}

	inviteMin, err := intEnv("INVITE_TTL_MIN", 10)
	if err != nil {
		return nil, err
	}
	cfg.InviteTTL = time.Duration(inviteMin) * time.Minute

	retentionSec, err := intEnv("MATCH_RETENTION_SEC", 60)
	if err != nil {
		return nil, err
	}
	cfg.MatchRetention = time.Duration(retentionSec) * time.Second

	return cfg, nil
}

func durationMs(key string, def int) (time.Duration, error) {
	n, err := intEnv(key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return n, nil
}

func getenvDefault(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
