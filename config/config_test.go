package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "SESSION_STORE", "LAYER_COUNT", "SESSION_TTL", "OTEL_ENABLED", "OTEL_SAMPLING_RATE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("want port 8080, got %s", cfg.Port)
	}
	if cfg.SessionStore != SessionStoreMemory {
		t.Errorf("want memory store, got %s", cfg.SessionStore)
	}
	if cfg.LayerCount != 3 {
		t.Errorf("want 3 layers, got %d", cfg.LayerCount)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("want 30m ttl, got %s", cfg.SessionTTL)
	}
	if cfg.OtelEnabled {
		t.Error("want otel disabled by default")
	}
	if cfg.OtelSamplingRate != 1.0 {
		t.Errorf("want sampling rate 1.0, got %f", cfg.OtelSamplingRate)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("LAYER_COUNT", "5")
	t.Setenv("SESSION_TTL", "90s")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLING_RATE", "0.25")
	t.Setenv("SYMMETRIC_POOL_WARM", "not-a-number")

	cfg := Load()
	if cfg.SessionStore != SessionStoreRedis {
		t.Errorf("want redis store, got %s", cfg.SessionStore)
	}
	if cfg.LayerCount != 5 {
		t.Errorf("want 5 layers, got %d", cfg.LayerCount)
	}
	if cfg.SessionTTL != 90*time.Second {
		t.Errorf("want 90s ttl, got %s", cfg.SessionTTL)
	}
	if !cfg.OtelEnabled {
		t.Error("want otel enabled")
	}
	if cfg.OtelSamplingRate != 0.25 {
		t.Errorf("want sampling rate 0.25, got %f", cfg.OtelSamplingRate)
	}
	if cfg.SymmetricPoolWarm != 8 {
		t.Errorf("want default warm count for invalid value, got %d", cfg.SymmetricPoolWarm)
	}
}
