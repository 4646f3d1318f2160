package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("QUIZ_CACHE_TTL_MINUTES", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg := Load()
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port, got %q", cfg.ServerPort)
	}
	if cfg.QuizCacheTTL != 30*time.Minute {
		t.Fatalf("expected 30m cache ttl, got %s", cfg.QuizCacheTTL)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("expected allow-all origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_EXPIRY_HOURS", "2")
	t.Setenv("AUTH_RATE_LIMIT_PER_MINUTE", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()
	if cfg.JWTExpiry != 2*time.Hour {
		t.Fatalf("expected 2h expiry, got %s", cfg.JWTExpiry)
	}
	if cfg.AuthRateLimit != 30 {
		t.Fatalf("invalid int should fall back, got %d", cfg.AuthRateLimit)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}
