package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
// The database section is only checked when the recorder is enabled.
func (c *Config) Validate() error {
	if err := c.Client.validate("client"); err != nil {
		return err
	}

	if c.Recorder.Enabled {
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if c.Recorder.BufferSize < 1 {
			return errors.New("recorder.buffer_size must be >= 1")
		}
		if c.Recorder.FlushInterval <= 0 {
			return errors.New("recorder.flush_interval must be > 0")
		}
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	return nil
}

func (cc *ClientConfig) validate(prefix string) error {
	if cc.URL == "" {
		return fmt.Errorf("%s.url is required", prefix)
	}
	u, err := url.Parse(cc.URL)
	if err != nil {
		return fmt.Errorf("%s.url is invalid: %w", prefix, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s.url must use ws or wss, got %q", prefix, u.Scheme)
	}
	if cc.HeartbeatInterval <= 0 {
		return fmt.Errorf("%s.heartbeat_interval must be > 0", prefix)
	}
	if cc.MaxReconnectAttempts != nil && *cc.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%s.max_reconnect_attempts must be >= 0", prefix)
	}
	if cc.ReconnectInterval <= 0 {
		return fmt.Errorf("%s.reconnect_interval must be > 0", prefix)
	}
	if cc.Codec != "json" && cc.Codec != "cbor" {
		return fmt.Errorf("%s.codec must be json or cbor, got %q", prefix, cc.Codec)
	}
	if cc.SendRateLimit < 0 {
		return fmt.Errorf("%s.send_rate_limit must be >= 0", prefix)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
