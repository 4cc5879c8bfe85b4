// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the explorer client configuration.
type Config struct {
	// Directory server
	ServerURL      string
	NotifyURL      string
	Token          string
	RequestTimeout time.Duration

	// OIDC token verification (optional)
	OIDCIssuerURL string
	OIDCClientID  string

	// Tree
	Locale       string
	SnapshotPath string // file path or s3://bucket/key

	// S3 snapshot storage (optional, empty uses the AWS defaults)
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string

	// Sync
	RefreshInterval   time.Duration
	HealthCheckPeriod time.Duration
	FetchConcurrency  int

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics (empty disables the endpoint)
	MetricsAddr string

	// Validate the cached forest after every change
	CheckConsistency bool
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServerURL:         envOr("EXPLORER_SERVER_URL", "http://localhost:5026"),
		NotifyURL:         envOr("EXPLORER_NOTIFY_URL", ""),
		Token:             envOr("EXPLORER_TOKEN", ""),
		RequestTimeout:    envDuration("REQUEST_TIMEOUT", 30*time.Second),
		OIDCIssuerURL:     envOr("OIDC_ISSUER_URL", ""),
		OIDCClientID:      envOr("OIDC_CLIENT_ID", ""),
		Locale:            envOr("EXPLORER_LOCALE", "en"),
		SnapshotPath:      envOr("EXPLORER_SNAPSHOT", ""),
		S3Endpoint:        envOr("S3_ENDPOINT", ""),
		S3Region:          envOr("S3_REGION", ""),
		S3AccessKey:       envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:       envOr("S3_SECRET_KEY", ""),
		RefreshInterval:   envDuration("REFRESH_INTERVAL", 5*time.Minute),
		HealthCheckPeriod: envDuration("HEALTH_CHECK_PERIOD", 30*time.Second),
		FetchConcurrency:  envInt("FETCH_CONCURRENCY", 4),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogFormat:         envOr("LOG_FORMAT", "console"),
		MetricsAddr:       envOr("METRICS_ADDR", ""),
		CheckConsistency:  envBool("EXPLORER_CHECK_CONSISTENCY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("EXPLORER_SERVER_URL is required")
	}
	if _, err := url.Parse(c.ServerURL); err != nil {
		return fmt.Errorf("EXPLORER_SERVER_URL: %w", err)
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be at least 1, got %d", c.FetchConcurrency)
	}
	return nil
}

// ResolveNotifyURL derives NotifyURL from ServerURL when it was not set.
// Call it once flags have been applied.
func (c *Config) ResolveNotifyURL() {
	if c.NotifyURL == "" {
		c.NotifyURL = DeriveNotifyURL(c.ServerURL)
	}
}

// DeriveNotifyURL maps an http(s) server URL to its ws(s) counterpart.
func DeriveNotifyURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	}
	return serverURL
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
