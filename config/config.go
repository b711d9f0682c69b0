// Package config holds the engine tunables and their defaults.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config controls timing and cache behavior of the engine. All durations
// are expressed in seconds in the TOML file.
type Config struct {
	// Endpoint is the server base URL, e.g. "https://chat.example.com".
	Endpoint string `toml:"endpoint"`
	// DBPath is the sqlite database file. Empty means in-memory.
	DBPath string `toml:"db_path"`

	Connection ConnectionConfig `toml:"connection"`
	Outbox     OutboxConfig     `toml:"outbox"`
	Sync       SyncConfig       `toml:"sync"`
	Cache      CacheConfig      `toml:"cache"`
	LogFile    string           `toml:"log_file"`
	LogLevel   string           `toml:"log_level"`
}

// ConnectionConfig tunes the connection manager.
type ConnectionConfig struct {
	// KeepaliveSecs is the idle interval after which a nop frame is sent.
	KeepaliveSecs int `toml:"keepalive_secs"`
	// PingTimeoutSecs bounds how long the periodic websocket ping may
	// wait for its pong before the miss is logged.
	PingTimeoutSecs int `toml:"ping_timeout_secs"`
	// MaxRetries is how many times a single connect attempt is retried
	// before the wait between attempts stops growing.
	MaxRetries int `toml:"max_retries"`
	// MaxConnectIntervalSecs caps the backoff wait between attempts.
	MaxConnectIntervalSecs int `toml:"max_connect_interval_secs"`
}

// OutboxConfig tunes the outbound pipeline.
type OutboxConfig struct {
	// SendIdleTimeoutSecs is how long a pending send may wait for an ack.
	SendIdleTimeoutSecs int `toml:"send_idle_timeout_secs"`
	// RecallWindowSecs is how long after sending a message may be recalled.
	RecallWindowSecs int `toml:"recall_window_secs"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	// ConversationsPerPage is the page size for conversation sync.
	ConversationsPerPage int `toml:"conversations_per_page"`
	// LogsPerPage is the page size for chat log sync; servers reject
	// requests for more than 100 rows.
	LogsPerPage int `toml:"logs_per_page"`
	// LogsMaxCount bounds a single chat log sync run.
	LogsMaxCount int `toml:"logs_max_count"`
	// PrefetchLogsMaxCount bounds the per-topic log prefetch done
	// during a conversation sync with SyncLogs enabled.
	PrefetchLogsMaxCount int `toml:"prefetch_logs_max_count"`
}

// CacheConfig tunes local cache expiry and retention.
type CacheConfig struct {
	ConversationTTLSecs int `toml:"conversation_ttl_secs"`
	RemovedTTLSecs      int `toml:"removed_ttl_secs"`
	UserTTLSecs         int `toml:"user_ttl_secs"`
	// MaxConversations caps how many conversations are retained locally.
	MaxConversations int `toml:"max_conversations"`
}

// Default returns a config populated with the engine defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Connection: ConnectionConfig{
			KeepaliveSecs:          30,
			PingTimeoutSecs:        5,
			MaxRetries:             2,
			MaxConnectIntervalSecs: 5,
		},
		Outbox: OutboxConfig{
			SendIdleTimeoutSecs: 20,
			RecallWindowSecs:    120,
		},
		Sync: SyncConfig{
			ConversationsPerPage: 100,
			LogsPerPage:          100,
			LogsMaxCount:         500,
			PrefetchLogsMaxCount: 200,
		},
		Cache: CacheConfig{
			ConversationTTLSecs: 60,
			RemovedTTLSecs:      10,
			UserTTLSecs:         60,
			MaxConversations:    1000,
		},
	}
}

// Load reads config from the given path on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Duration helpers keep call sites from repeating the seconds conversion.

func (c ConnectionConfig) Keepalive() time.Duration {
	return time.Duration(c.KeepaliveSecs) * time.Second
}

func (c ConnectionConfig) PingTimeout() time.Duration {
	return time.Duration(c.PingTimeoutSecs) * time.Second
}

func (c ConnectionConfig) MaxConnectInterval() time.Duration {
	return time.Duration(c.MaxConnectIntervalSecs) * time.Second
}

func (c OutboxConfig) SendIdleTimeout() time.Duration {
	return time.Duration(c.SendIdleTimeoutSecs) * time.Second
}

func (c OutboxConfig) RecallWindow() time.Duration {
	return time.Duration(c.RecallWindowSecs) * time.Second
}

func (c CacheConfig) ConversationTTL() time.Duration {
	return time.Duration(c.ConversationTTLSecs) * time.Second
}

func (c CacheConfig) RemovedTTL() time.Duration {
	return time.Duration(c.RemovedTTLSecs) * time.Second
}

func (c CacheConfig) UserTTL() time.Duration {
	return time.Duration(c.UserTTLSecs) * time.Second
}
