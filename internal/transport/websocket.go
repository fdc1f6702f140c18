package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Config configures WebSocket adapters.
type Config struct {
	HandshakeTimeout time.Duration // Max time for the opening handshake
	WriteTimeout     time.Duration // Write deadline for sends and control frames
	Header           http.Header   // Extra handshake headers (may be nil)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// WebSocketDialer opens gorilla/websocket adapters.
type WebSocketDialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewWebSocketDialer creates a dialer.
func NewWebSocketDialer(cfg Config, logger *slog.Logger) *WebSocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultConfig().HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &WebSocketDialer{cfg: cfg, logger: logger}
}

// Dial starts a connection attempt in the background.
func (d *WebSocketDialer) Dial(endpoint string, sink Sink) Adapter {
	ctx, cancel := context.WithCancel(context.Background())
	a := &wsAdapter{
		id:     uuid.NewString(),
		cfg:    d.cfg,
		sink:   sink,
		cancel: cancel,
	}
	a.logger = d.logger.With("adapter_id", a.id)

	go a.run(ctx, endpoint)
	return a
}

type adapterState uint8

const (
	stateDialing adapterState = iota
	stateOpen
	stateDone
)

// wsAdapter implements Adapter over a single *websocket.Conn.
type wsAdapter struct {
	id     string
	cfg    Config
	logger *slog.Logger
	sink   Sink
	cancel context.CancelFunc

	// Write serialization
	writeMu sync.Mutex

	// State
	mu     sync.Mutex
	conn   *websocket.Conn
	state  adapterState
	closed bool // Close was called locally
}

func (a *wsAdapter) ID() string {
	return a.id
}

// run dials, reports the outcome, then reads until the connection ends.
func (a *wsAdapter) run(ctx context.Context, endpoint string) {
	dialer := websocket.Dialer{
		HandshakeTimeout: a.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, a.cfg.Header)
	if err != nil {
		a.mu.Lock()
		a.state = stateDone
		local := a.closed
		a.mu.Unlock()

		if !local {
			a.emit(Event{Type: EventErrored, Err: fmt.Errorf("dial websocket: %w", err)})
		}
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return
	}
	a.conn = conn
	a.state = stateOpen
	a.mu.Unlock()

	a.logger.Debug("websocket connected", "url", endpoint)
	a.emit(Event{Type: EventOpened})

	a.readLoop(conn)
}

// readLoop forwards frames until a read fails.
func (a *wsAdapter) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			a.finish(conn, err)
			return
		}

		var p Payload
		switch mt {
		case websocket.TextMessage:
			p = Payload{Kind: KindText, Data: data}
		case websocket.BinaryMessage:
			p = Payload{Kind: KindBinary, Data: data}
		default:
			continue
		}

		if a.isClosed() {
			return
		}
		a.emit(Event{Type: EventMessage, Payload: p})
	}
}

// finish converts the terminal read error into Closed or Errored.
func (a *wsAdapter) finish(conn *websocket.Conn, err error) {
	a.mu.Lock()
	a.state = stateDone
	local := a.closed
	a.mu.Unlock()

	conn.Close()

	// Ignore errors after Close() is called
	if local {
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		a.emit(Event{Type: EventClosed, Code: ce.Code, Reason: ce.Text})
		return
	}
	a.emit(Event{Type: EventErrored, Err: fmt.Errorf("read websocket: %w", err)})
}

// Send writes one frame.
func (a *wsAdapter) Send(p Payload) error {
	a.mu.Lock()
	conn, state := a.conn, a.state
	a.mu.Unlock()

	if state != stateOpen {
		return ErrNotConnected
	}

	mt := websocket.TextMessage
	if p.Kind == KindBinary {
		mt = websocket.BinaryMessage
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
	if err := conn.WriteMessage(mt, p.Data); err != nil {
		return fmt.Errorf("write websocket: %w", err)
	}
	return nil
}

// Close sends a normal-closure frame and closes the socket.
func (a *wsAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	conn, state := a.conn, a.state
	a.state = stateDone
	a.mu.Unlock()

	// Abort an in-flight handshake
	a.cancel()

	if conn == nil {
		return nil
	}

	if state == stateOpen {
		a.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(a.cfg.WriteTimeout),
		)
		a.writeMu.Unlock()
	}

	if err := conn.Close(); err != nil && state == stateOpen {
		return fmt.Errorf("close websocket: %w", err)
	}
	return nil
}

func (a *wsAdapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *wsAdapter) emit(e Event) {
	e.AdapterID = a.id
	a.sink(e)
}
