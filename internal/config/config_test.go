package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("DATABASE_URL", "postgres://localhost/arena")
	t.Setenv("JWT_SECRET", "sekrit")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %s", cfg.ListenAddr)
	}
	if cfg.GracePeriod != 20*time.Second {
		t.Fatalf("grace = %v", cfg.GracePeriod)
	}
	if cfg.MoveRateLimit != 500*time.Millisecond {
		t.Fatalf("rate limit = %v", cfg.MoveRateLimit)
	}
	if cfg.QuickChatCooldown != 3*time.Second {
		t.Fatalf("cooldown = %v", cfg.QuickChatCooldown)
	}
	if cfg.InviteTTL != 10*time.Minute {
		t.Fatalf("invite ttl = %v", cfg.InviteTTL)
	}
	if cfg.MatchRetention != time.Minute {
		t.Fatalf("retention = %v", cfg.MatchRetention)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("GRACE_PERIOD_MS", "5000")
	t.Setenv("INVITE_TTL_MIN", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GracePeriod != 5*time.Second {
		t.Fatalf("grace = %v", cfg.GracePeriod)
	}
	if cfg.InviteTTL != 2*time.Minute {
		t.Fatalf("invite ttl = %v", cfg.InviteTTL)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("err = %v, want JWT_SECRET required", err)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	setRequired(t)
	t.Setenv("MOVE_RATE_LIMIT_MS", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("bad number accepted")
	}

	t.Setenv("MOVE_RATE_LIMIT_MS", "-1")
	if _, err := Load(); err == nil {
		t.Fatalf("negative number accepted")
	}
}
