package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/pricewatch/internal/connection"
)

func TestLoad(t *testing.T) {
	yaml := `
client:
  url: wss://stream.example.com/ws
  heartbeat_interval: 20s
  reconnect_interval: 2s
  max_reconnect_attempts: 3
recorder:
  enabled: true
database:
  host: localhost
  port: 5432
  name: feed
  user: feeduser
  password: feedpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Client.URL != "wss://stream.example.com/ws" {
		t.Errorf("Client.URL = %q, want %q", cfg.Client.URL, "wss://stream.example.com/ws")
	}
	if cfg.Client.HeartbeatInterval != 20*time.Second {
		t.Errorf("Client.HeartbeatInterval = %v, want %v", cfg.Client.HeartbeatInterval, 20*time.Second)
	}
	if cfg.Client.MaxReconnectAttempts == nil || *cfg.Client.MaxReconnectAttempts != 3 {
		t.Errorf("Client.MaxReconnectAttempts = %v, want 3", cfg.Client.MaxReconnectAttempts)
	}
	if !cfg.Recorder.Enabled {
		t.Error("Recorder.Enabled = false, want true")
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "read config file") {
		t.Errorf("error = %q, want read config file context", err.Error())
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("client: [unterminated"))
	if err == nil {
		t.Fatal("Parse expected error, got nil")
	}
	if !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("error = %q, want parse config yaml context", err.Error())
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_FEED_URL", "wss://feed.test/ws")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
client:
  url: ${TEST_FEED_URL}
database:
  host: localhost
  name: feed
  user: feeduser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Client.URL != "wss://feed.test/ws" {
		t.Errorf("Client.URL = %q, want %q", cfg.Client.URL, "wss://feed.test/ws")
	}
	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
client:
  url: wss://stream.example.com/ws
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Client.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("Client.HeartbeatInterval = %v, want default %v", cfg.Client.HeartbeatInterval, DefaultHeartbeatInterval)
	}
	if cfg.Client.ReconnectInterval != DefaultReconnectInterval {
		t.Errorf("Client.ReconnectInterval = %v, want default %v", cfg.Client.ReconnectInterval, DefaultReconnectInterval)
	}
	if *cfg.Client.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("Client.MaxReconnectAttempts = %d, want default %d", *cfg.Client.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if cfg.Client.HeartbeatToken != DefaultHeartbeatToken {
		t.Errorf("Client.HeartbeatToken = %q, want default %q", cfg.Client.HeartbeatToken, DefaultHeartbeatToken)
	}
	if !*cfg.Client.StrictSend {
		t.Error("Client.StrictSend = false, want default true")
	}
	if cfg.Client.Codec != DefaultCodec {
		t.Errorf("Client.Codec = %q, want default %q", cfg.Client.Codec, DefaultCodec)
	}
	if cfg.Recorder.Enabled {
		t.Error("Recorder.Enabled = true, want default false")
	}
	if cfg.Recorder.BatchSize != DefaultBatchSize {
		t.Errorf("Recorder.BatchSize = %d, want default %d", cfg.Recorder.BatchSize, DefaultBatchSize)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want default %d", cfg.Health.Port, DefaultHealthPort)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestLoadWithDefaultsKeepsExplicitZero(t *testing.T) {
	yaml := `
client:
  url: wss://stream.example.com/ws
  max_reconnect_attempts: 0
  strict_send: false
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if *cfg.Client.MaxReconnectAttempts != 0 {
		t.Errorf("Client.MaxReconnectAttempts = %d, want 0", *cfg.Client.MaxReconnectAttempts)
	}
	if *cfg.Client.StrictSend {
		t.Error("Client.StrictSend = true, want false")
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "client:\n  heartbeat_interval: 1s\n")

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("LoadAndValidate expected error, got nil")
	}
	if err.Error() != "validate config: client.url is required" {
		t.Errorf("error = %q, want %q", err.Error(), "validate config: client.url is required")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Client.URL = "wss://stream.example.com/ws"
		return cfg
	}
	withRecorder := func() *Config {
		cfg := valid()
		cfg.Recorder.Enabled = true
		cfg.Database = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 4, MinConns: 1}
		return cfg
	}
	negative := -1

	tests := []struct {
		name    string
		cfg     func() *Config
		wantErr string
	}{
		{
			name:    "missing url",
			cfg:     Default,
			wantErr: "client.url is required",
		},
		{
			name: "wrong scheme",
			cfg: func() *Config {
				cfg := valid()
				cfg.Client.URL = "https://stream.example.com/ws"
				return cfg
			},
			wantErr: `client.url must use ws or wss, got "https"`,
		},
		{
			name: "negative attempts",
			cfg: func() *Config {
				cfg := valid()
				cfg.Client.MaxReconnectAttempts = &negative
				return cfg
			},
			wantErr: "client.max_reconnect_attempts must be >= 0",
		},
		{
			name: "unknown codec",
			cfg: func() *Config {
				cfg := valid()
				cfg.Client.Codec = "msgpack"
				return cfg
			},
			wantErr: `client.codec must be json or cbor, got "msgpack"`,
		},
		{
			name: "database not checked when recorder disabled",
			cfg:  valid,
		},
		{
			name: "recorder requires database host",
			cfg: func() *Config {
				cfg := withRecorder()
				cfg.Database.Host = ""
				return cfg
			},
			wantErr: "database.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			cfg: func() *Config {
				cfg := withRecorder()
				cfg.Database.MinConns = 10
				return cfg
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (4)",
		},
		{
			name: "health port out of range",
			cfg: func() *Config {
				cfg := valid()
				cfg.Health.Port = 70000
				return cfg
			},
			wantErr: "health.port must be between 1 and 65535, got 70000",
		},
		{
			name: "unknown log level",
			cfg: func() *Config {
				cfg := valid()
				cfg.Log.Level = "verbose"
				return cfg
			},
			wantErr: `log.level must be one of debug, info, warn, error, got "verbose"`,
		},
		{
			name: "valid with recorder",
			cfg:  withRecorder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg().Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestConnectionConfig(t *testing.T) {
	cfg := Default()
	cfg.Client.URL = "wss://stream.example.com/ws"
	cfg.Client.Codec = "cbor"
	cfg.Client.SendRateLimit = 5
	cfg.Client.SendBurst = 10

	cc := cfg.Client.ConnectionConfig()

	if cc.URL != "wss://stream.example.com/ws" {
		t.Errorf("URL = %q, want %q", cc.URL, "wss://stream.example.com/ws")
	}
	if cc.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("HeartbeatInterval = %v, want %v", cc.HeartbeatInterval, DefaultHeartbeatInterval)
	}
	if cc.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("MaxReconnectAttempts = %d, want %d", cc.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if cc.Codec != connection.CodecCBOR {
		t.Errorf("Codec = %q, want %q", cc.Codec, connection.CodecCBOR)
	}
	if cc.SendRateLimit != 5 || cc.SendBurst != 10 {
		t.Errorf("SendRateLimit/SendBurst = %v/%d, want 5/10", cc.SendRateLimit, cc.SendBurst)
	}
	if err := cc.Validate(); err != nil {
		t.Errorf("converted config invalid: %v", err)
	}
}

func TestConnectionConfigUnsetFields(t *testing.T) {
	cc := ClientConfig{URL: "ws://localhost:9000"}.ConnectionConfig()
	want := connection.DefaultClientConfig()
	want.URL = "ws://localhost:9000"

	if cc != want {
		t.Errorf("ConnectionConfig() = %+v, want %+v", cc, want)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := (LogConfig{Level: tt.level}).SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
