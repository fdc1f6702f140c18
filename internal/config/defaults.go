package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHeartbeatInterval    = 15 * time.Second
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultHeartbeatToken       = "ping"
	DefaultStrictSend           = true
	DefaultCodec                = "json"
	DefaultWriteTimeout         = 5 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 10000
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultHealthPort           = 8080
	DefaultLogLevel             = "info"
)

// Default returns a configuration with every default applied and no URL.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	// Client defaults
	if c.Client.HeartbeatInterval == 0 {
		c.Client.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Client.ReconnectInterval == 0 {
		c.Client.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Client.MaxReconnectAttempts == nil {
		n := DefaultMaxReconnectAttempts
		c.Client.MaxReconnectAttempts = &n
	}
	if c.Client.HeartbeatToken == "" {
		c.Client.HeartbeatToken = DefaultHeartbeatToken
	}
	if c.Client.StrictSend == nil {
		strict := DefaultStrictSend
		c.Client.StrictSend = &strict
	}
	if c.Client.Codec == "" {
		c.Client.Codec = DefaultCodec
	}
	if c.Client.WriteTimeout == 0 {
		c.Client.WriteTimeout = DefaultWriteTimeout
	}
	if c.Client.HandshakeTimeout == 0 {
		c.Client.HandshakeTimeout = DefaultHandshakeTimeout
	}

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultBufferSize
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
