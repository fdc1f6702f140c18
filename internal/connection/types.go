package connection

import (
	"fmt"
	"time"

	"github.com/rickgao/pricewatch/internal/transport"
)

// State is the client lifecycle phase.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DefaultHeartbeatToken is the liveness probe sent while open.
const DefaultHeartbeatToken = "ping"

// ClientConfig configures a Client. It is copied by New and never mutated.
type ClientConfig struct {
	URL                  string        // WebSocket URL (e.g., wss://stream.example.com/ws)
	HeartbeatInterval    time.Duration // Time between heartbeat sends while open
	ReconnectInterval    time.Duration // Fixed delay before each reconnect attempt
	MaxReconnectAttempts int           // 0 disables automatic reconnection
	HeartbeatToken       string        // Text frame sent as the heartbeat
	StrictSend           bool          // Send outside Open returns ErrNotConnected instead of dropping
	Codec                Codec         // Wire form for structured sends
	WriteTimeout         time.Duration // Write deadline for sends
	HandshakeTimeout     time.Duration // Max time for the opening handshake
	SendRateLimit        float64       // Sends per second (0 = unlimited)
	SendBurst            int           // Token bucket burst for SendRateLimit
	EventBufferSize      int           // Initial capacity of the event queue
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HeartbeatInterval:    15 * time.Second,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 10,
		HeartbeatToken:       DefaultHeartbeatToken,
		StrictSend:           true,
		Codec:                CodecJSON,
		WriteTimeout:         5 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		EventBufferSize:      64,
	}
}

// Validate checks the configuration.
func (c ClientConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat interval must be > 0, got %v", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: max reconnect attempts must be >= 0, got %d", ErrInvalidConfig, c.MaxReconnectAttempts)
	}
	if c.MaxReconnectAttempts > 0 && c.ReconnectInterval <= 0 {
		return fmt.Errorf("%w: reconnect interval must be > 0, got %v", ErrInvalidConfig, c.ReconnectInterval)
	}
	if c.HeartbeatToken == "" {
		return fmt.Errorf("%w: heartbeat token is required", ErrInvalidConfig)
	}
	if c.Codec != CodecJSON && c.Codec != CodecCBOR {
		return fmt.Errorf("%w: unknown codec %q", ErrInvalidConfig, c.Codec)
	}
	if c.SendRateLimit < 0 {
		return fmt.Errorf("%w: send rate limit must be >= 0, got %v", ErrInvalidConfig, c.SendRateLimit)
	}
	return nil
}

// Message is a received payload handed to OnMessage.
type Message struct {
	Raw        transport.Payload // Payload as received
	Value      any               // Decoded structure, or the raw string/[]byte on fallback
	Decoded    bool              // True if Value came from a successful decode
	AdapterID  string            // Connection attempt that produced the message
	Seq        uint64            // 1-based position within that attempt
	ReceivedAt time.Time         // Local timestamp when the adapter delivered it
}

// Stats describes the client at a point in time.
type Stats struct {
	State            State
	Attempts         int
	Opens            int64
	MessagesReceived int64
	MessagesSent     int64
	HeartbeatsSent   int64
	DecodeFallbacks  int64
	StaleEvents      int64
	LastError        error // Cause of the most recent disconnect, nil after a successful open
}
