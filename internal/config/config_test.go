package config

import "testing"

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("MAX_ACTIVE_REQUESTS_PER_USER", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.MaxActiveRequestsPerUser != 3 {
		t.Fatalf("expected default per-user limit 3, got %d", cfg.MaxActiveRequestsPerUser)
	}
	if cfg.BreakerFailureThreshold != 5 {
		t.Fatalf("expected default breaker failure threshold 5, got %d", cfg.BreakerFailureThreshold)
	}
	if cfg.LogDir != "logs" {
		t.Fatalf("expected default log dir \"logs\", got %q", cfg.LogDir)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_QUEUE_DEPTH", "10")
	t.Setenv("RATE_LIMIT_PER_SECOND", "2.5")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected overridden port, got %q", cfg.Port)
	}
	if cfg.MaxQueueDepth != 10 {
		t.Fatalf("expected overridden queue depth, got %d", cfg.MaxQueueDepth)
	}
	if cfg.RateLimitPerSecond != 2.5 {
		t.Fatalf("expected overridden rate limit, got %v", cfg.RateLimitPerSecond)
	}
}

func TestGetEnvIntFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("MAX_QUEUE_DEPTH", "not-a-number")
	if v := getEnvInt("MAX_QUEUE_DEPTH", 42); v != 42 {
		t.Fatalf("expected fallback default, got %d", v)
	}
}
