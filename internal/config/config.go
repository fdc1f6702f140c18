package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/pricewatch/internal/connection"
)

// Config is the root configuration for a pricewatch instance.
type Config struct {
	Client   ClientConfig   `yaml:"client"`
	Recorder RecorderConfig `yaml:"recorder"`
	Database DBConfig       `yaml:"database"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
}

// ClientConfig holds the resilient WebSocket client settings.
type ClientConfig struct {
	URL                  string        `yaml:"url"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts *int          `yaml:"max_reconnect_attempts"` // nil = default, 0 = never reconnect
	HeartbeatToken       string        `yaml:"heartbeat_token"`
	StrictSend           *bool         `yaml:"strict_send"`
	Codec                string        `yaml:"codec"` // json or cbor
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	SendRateLimit        float64       `yaml:"send_rate_limit"` // sends per second, 0 = unlimited
	SendBurst            int           `yaml:"send_burst"`
}

// RecorderConfig holds the message recorder settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ConnectionConfig converts the client section into the connection
// package's configuration. Unset fields take the connection defaults.
func (c ClientConfig) ConnectionConfig() connection.ClientConfig {
	cc := connection.DefaultClientConfig()
	cc.URL = c.URL

	if c.HeartbeatInterval > 0 {
		cc.HeartbeatInterval = c.HeartbeatInterval
	}
	if c.ReconnectInterval > 0 {
		cc.ReconnectInterval = c.ReconnectInterval
	}
	if c.MaxReconnectAttempts != nil {
		cc.MaxReconnectAttempts = *c.MaxReconnectAttempts
	}
	if c.HeartbeatToken != "" {
		cc.HeartbeatToken = c.HeartbeatToken
	}
	if c.StrictSend != nil {
		cc.StrictSend = *c.StrictSend
	}
	if c.Codec != "" {
		cc.Codec = connection.Codec(c.Codec)
	}
	if c.WriteTimeout > 0 {
		cc.WriteTimeout = c.WriteTimeout
	}
	if c.HandshakeTimeout > 0 {
		cc.HandshakeTimeout = c.HandshakeTimeout
	}
	cc.SendRateLimit = c.SendRateLimit
	cc.SendBurst = c.SendBurst

	return cc
}

// SlogLevel maps the configured level name to a slog.Level.
// Unknown names map to Info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
