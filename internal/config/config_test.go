package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.Endpoint != "ws://localhost:8080/ws" {
		t.Fatalf("endpoint = %q", cfg.Endpoint)
	}
	if cfg.TypingDebounce != 3*time.Second || cfg.TypingExpiry != 5*time.Second {
		t.Fatalf("typing windows: debounce=%v expiry=%v", cfg.TypingDebounce, cfg.TypingExpiry)
	}
	if cfg.AckTimeout != 10*time.Second {
		t.Fatalf("ack timeout = %v", cfg.AckTimeout)
	}
	if cfg.OfflineMode {
		t.Fatal("offline mode must default off")
	}
}

func TestUpdateFromOverwritesOnlyProvidedFields(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Endpoint: "wss://chat.example.com/ws", OfflineMode: true})

	if cfg.Endpoint != "wss://chat.example.com/ws" {
		t.Fatalf("endpoint = %q", cfg.Endpoint)
	}
	if !cfg.OfflineMode {
		t.Fatal("offline mode not applied")
	}
	if cfg.BackoffCap != 30*time.Second {
		t.Fatalf("untouched field changed: backoff_cap = %v", cfg.BackoffCap)
	}
}

func TestLoadWritesDefaultConfigOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatlink.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Endpoint != Default().Endpoint {
		t.Fatalf("first-run config diverges from defaults: %q", cfg.Endpoint)
	}
}

func TestLoadReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatlink.yaml")
	body := "endpoint: wss://prod.example.com/ws\nmax_reconnects: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Endpoint != "wss://prod.example.com/ws" {
		t.Fatalf("endpoint = %q", cfg.Endpoint)
	}
	if cfg.MaxReconnects != 3 {
		t.Fatalf("max_reconnects = %d", cfg.MaxReconnects)
	}
	// Keys missing from the file fall back to defaults.
	if cfg.AckTimeout != 10*time.Second {
		t.Fatalf("ack_timeout = %v", cfg.AckTimeout)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatlink.yaml")
	if err := os.WriteFile(path, []byte("endpoint: ws://from-file/ws\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CHATLINK_ENDPOINT", "ws://from-env/ws")
	t.Setenv("CHATLINK_OFFLINE_MODE", "true")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Endpoint != "ws://from-env/ws" {
		t.Fatalf("endpoint = %q, env must win over file", cfg.Endpoint)
	}
	if !cfg.OfflineMode {
		t.Fatal("offline mode env override not applied")
	}
}
