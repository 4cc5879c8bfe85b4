package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EXPLORER_SERVER_URL", "")
	t.Setenv("EXPLORER_NOTIFY_URL", "")
	t.Setenv("REFRESH_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "http://localhost:5026" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.NotifyURL != "" {
		t.Errorf("NotifyURL = %q, want it left for ResolveNotifyURL", cfg.NotifyURL)
	}
	if cfg.CheckConsistency {
		t.Error("CheckConsistency should default to false")
	}
	if cfg.RefreshInterval != 5*time.Minute {
		t.Errorf("RefreshInterval = %v", cfg.RefreshInterval)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("EXPLORER_SERVER_URL", "https://gridsuite.example")
	t.Setenv("EXPLORER_NOTIFY_URL", "")
	t.Setenv("FETCH_CONCURRENCY", "8")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("HEALTH_CHECK_PERIOD", "not-a-duration")
	t.Setenv("EXPLORER_CHECK_CONSISTENCY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.ResolveNotifyURL()
	if cfg.NotifyURL != "wss://gridsuite.example" {
		t.Errorf("NotifyURL = %q", cfg.NotifyURL)
	}
	if !cfg.CheckConsistency {
		t.Error("CheckConsistency = false, want true")
	}
	if cfg.FetchConcurrency != 8 {
		t.Errorf("FetchConcurrency = %d", cfg.FetchConcurrency)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.HealthCheckPeriod != 30*time.Second {
		t.Errorf("invalid duration should fall back, got %v", cfg.HealthCheckPeriod)
	}
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	t.Setenv("FETCH_CONCURRENCY", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for FETCH_CONCURRENCY=0")
	}
}

func TestResolveNotifyURL(t *testing.T) {
	tests := []struct {
		name   string
		server string
		notify string
		want   string
	}{
		{"derived from server set later", "https://prod.example", "", "wss://prod.example"},
		{"explicit notify kept", "https://prod.example", "wss://events.example", "wss://events.example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{ServerURL: tt.server, NotifyURL: tt.notify}
			cfg.ResolveNotifyURL()
			if cfg.NotifyURL != tt.want {
				t.Errorf("NotifyURL = %q, want %q", cfg.NotifyURL, tt.want)
			}
		})
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("EXPLORER_TEST_BOOL", "yes")
	if got := envBool("EXPLORER_TEST_BOOL", true); !got {
		t.Error("unparsable value should fall back to true")
	}
	t.Setenv("EXPLORER_TEST_BOOL", "0")
	if got := envBool("EXPLORER_TEST_BOOL", true); got {
		t.Error("envBool(0) = true")
	}
}

func TestDeriveNotifyURL(t *testing.T) {
	tests := map[string]string{
		"http://a:1/x": "ws://a:1/x",
		"https://b":    "wss://b",
		"ws://already": "ws://already",
	}
	for in, want := range tests {
		if got := DeriveNotifyURL(in); got != want {
			t.Errorf("DeriveNotifyURL(%q) = %q, want %q", in, got, want)
		}
	}
}
