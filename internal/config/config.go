package config

import "time"

// Config holds client configuration values.
type Config struct {
	// Endpoint is the realtime WebSocket endpoint.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// RestBaseURL is the collaborator REST API used to persist sends and
	// out-of-band read receipts.
	RestBaseURL string `mapstructure:"rest_base_url" yaml:"rest_base_url"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	// OfflineMode skips real-time connection attempts entirely. The client
	// reports a permanent, non-erroring disconnected state.
	OfflineMode bool `mapstructure:"offline_mode" yaml:"offline_mode"`

	DialTimeout    time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	BackoffBase    time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap     time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
	MaxReconnects  int           `mapstructure:"max_reconnects" yaml:"max_reconnects"`
	TypingDebounce time.Duration `mapstructure:"typing_debounce" yaml:"typing_debounce"`
	TypingExpiry   time.Duration `mapstructure:"typing_expiry" yaml:"typing_expiry"`
	AckTimeout     time.Duration `mapstructure:"ack_timeout" yaml:"ack_timeout"`

	// HistoryPath points at the local SQLite message archive. Empty disables
	// archiving.
	HistoryPath string `mapstructure:"history_path" yaml:"history_path"`
}

// Default returns configuration with reasonable starter defaults.
// The endpoint default targets a local development server.
func Default() Config {
	return Config{
		Endpoint:       "ws://localhost:8080/ws",
		RestBaseURL:    "http://localhost:8080",
		LogLevel:       "info",
		OfflineMode:    false,
		DialTimeout:    10 * time.Second,
		BackoffBase:    time.Second,
		BackoffCap:     30 * time.Second,
		MaxReconnects:  8,
		TypingDebounce: 3 * time.Second,
		TypingExpiry:   5 * time.Second,
		AckTimeout:     10 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Endpoint != "" {
		c.Endpoint = other.Endpoint
	}
	if other.RestBaseURL != "" {
		c.RestBaseURL = other.RestBaseURL
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.OfflineMode {
		c.OfflineMode = true
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	if other.BackoffBase != 0 {
		c.BackoffBase = other.BackoffBase
	}
	if other.BackoffCap != 0 {
		c.BackoffCap = other.BackoffCap
	}
	if other.MaxReconnects != 0 {
		c.MaxReconnects = other.MaxReconnects
	}
	if other.TypingDebounce != 0 {
		c.TypingDebounce = other.TypingDebounce
	}
	if other.TypingExpiry != 0 {
		c.TypingExpiry = other.TypingExpiry
	}
	if other.AckTimeout != 0 {
		c.AckTimeout = other.AckTimeout
	}
	if other.HistoryPath != "" {
		c.HistoryPath = other.HistoryPath
	}
}
