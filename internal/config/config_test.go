package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "DOCSTORE_BACKEND", "COUNTER_BACKEND", "TRIGGER_QUEUE", "CHAT_CACHE_TTL", "CORS_ALLOWED_ORIGINS", "CLINIC_TIMEZONE"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.DocstoreBackend != "memory" || cfg.CounterBackend != "docstore" || cfg.TriggerQueue != "memory" {
		t.Fatalf("unexpected backend defaults: %+v", cfg)
	}
	if cfg.CounterMaxAttempts != 5 {
		t.Fatalf("expected 5 counter attempts, got %d", cfg.CounterMaxAttempts)
	}
	if cfg.ChatCacheTTL != 30*time.Minute {
		t.Fatalf("expected default chat cache ttl, got %s", cfg.ChatCacheTTL)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC location by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DOCSTORE_BACKEND", "Firestore")
	t.Setenv("COUNTER_BACKEND", "postgres")
	t.Setenv("COUNTER_MAX_ATTEMPTS", "9")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("TRIGGER_QUEUE", "amqp")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("STATS_CACHE_TTL", "45s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" {
		t.Fatalf("expected overrides, got port=%s env=%s", cfg.Port, cfg.Env)
	}
	if cfg.DocstoreBackend != "firestore" {
		t.Fatalf("expected lower-cased backend, got %s", cfg.DocstoreBackend)
	}
	if cfg.CounterBackend != "postgres" || cfg.CounterMaxAttempts != 9 {
		t.Fatalf("unexpected counter config: %s/%d", cfg.CounterBackend, cfg.CounterMaxAttempts)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.TriggerQueue != "amqp" || !cfg.RedisTLS {
		t.Fatalf("unexpected queue/redis config: %+v", cfg)
	}
	if cfg.StatsCacheTTL != 45*time.Second {
		t.Fatalf("expected stats ttl override, got %s", cfg.StatsCacheTTL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected CORS origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("S3_URL_TTL", "soon")
	t.Setenv("CLINIC_TIMEZONE", "Mars/Olympus")
	t.Setenv("RATE_LIMIT_RPS", "fast")
	cfg := Load()
	if cfg.RateLimitRPS != 20 {
		t.Fatalf("expected default rate limit, got %v", cfg.RateLimitRPS)
	}
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.S3URLTTL != 24*time.Hour {
		t.Fatalf("expected default url ttl, got %s", cfg.S3URLTTL)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback for unknown zone")
	}
}
