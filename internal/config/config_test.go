package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TOKEN", "abc")
	t.Setenv("ENV", "")
	t.Setenv("PORT", "")
	t.Setenv("SWEEP_INTERVAL", "")

	cfg := Load()
	if cfg.Token != "abc" {
		t.Fatalf("token = %q", cfg.Token)
	}
	if !cfg.IsDevelopment() {
		t.Fatal("default env should be development")
	}
	if cfg.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.Port)
	}
	if cfg.SweepInterval != 60*time.Second {
		t.Fatalf("sweep interval = %v, want 60s", cfg.SweepInterval)
	}
}

func TestLoadSweepInterval(t *testing.T) {
	t.Setenv("TOKEN", "abc")
	t.Setenv("SWEEP_INTERVAL", "5m")

	cfg := Load()
	if cfg.SweepInterval != 5*time.Minute {
		t.Fatalf("sweep interval = %v, want 5m", cfg.SweepInterval)
	}
}

func TestLoadPanicsWithoutToken(t *testing.T) {
	t.Setenv("TOKEN", "")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on missing TOKEN")
		}
	}()
	Load()
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{Env: "production"}
	if cfg.IsDevelopment() {
		t.Fatal("production must not report development")
	}
}
