package connection

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/rickgao/pricewatch/internal/queue"
	"github.com/rickgao/pricewatch/internal/timer"
	"github.com/rickgao/pricewatch/internal/transport"
)

// Client is a resilient WebSocket client. Connect, Close and Send are
// safe for concurrent use and never wait for the network handshake.
type Client struct {
	cfg     ClientConfig
	logger  *slog.Logger
	dialer  transport.Dialer
	sched   timer.Scheduler
	limiter *rate.Limiter

	// Inputs to the state machine
	events *queue.Queue[event]

	// Application hooks
	hookMu        sync.RWMutex
	onOpen        func()
	onMessage     func(Message)
	onExhausted   func(error)
	onStateChange func(from, to State)

	// State
	mu      sync.Mutex
	running bool // event loop goroutine alive
	manual  bool // events are dispatched by the caller (tests)
	phase   State

	adapter   transport.Adapter
	adapterID string
	gen       uint64 // generation of the current adapter
	msgSeq    uint64
	attempts  int
	lastErr   error

	tokens         uint64 // timer token counter
	heartbeat      timer.Handle
	heartbeatToken uint64
	reconnect      timer.Handle
	reconnectToken uint64

	stats Stats
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithScheduler replaces the timer scheduler.
func WithScheduler(s timer.Scheduler) Option {
	return func(c *Client) {
		c.sched = s
	}
}

// New creates a client in the Idle state. Nothing is dialed until Connect.
func New(cfg ClientConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		logger: slog.Default(),
		events: queue.New[event](cfg.EventBufferSize),
		phase:  StateIdle,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.dialer == nil {
		c.dialer = transport.NewWebSocketDialer(transport.Config{
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
		}, c.logger)
	}
	if c.sched == nil {
		c.sched = timer.System()
	}
	if cfg.SendRateLimit > 0 {
		burst := cfg.SendBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SendRateLimit), burst)
	}

	return c, nil
}

// OnOpen registers the hook run after every successful open.
func (c *Client) OnOpen(fn func()) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onOpen = fn
}

// OnMessage registers the hook run for every received payload.
func (c *Client) OnMessage(fn func(Message)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onMessage = fn
}

// OnReconnectExhausted registers the hook run once when the client gives
// up. The error wraps ErrReconnectExhausted.
func (c *Client) OnReconnectExhausted(fn func(error)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onExhausted = fn
}

// OnStateChange registers the hook run on every phase transition.
func (c *Client) OnStateChange(fn func(from, to State)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onStateChange = fn
}

// Connect starts connecting. It is a no-op while a connection attempt or
// session is already active.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events.Push(event{kind: evConnect})
	c.startLoopLocked()
}

// Close tears the client down: timers are canceled and the adapter is
// closed. No hooks run once the close has been processed. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events.Push(event{kind: evClose})
	c.startLoopLocked()
}

// Send delivers a string (text frame), []byte (binary frame),
// transport.Payload, or any other value serialized with the configured
// codec.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	if c.phase != StateOpen || c.adapter == nil {
		phase := c.phase
		c.mu.Unlock()

		if c.cfg.StrictSend {
			return ErrNotConnected
		}
		c.logger.Debug("dropping send while not open", "state", phase)
		return nil
	}
	adapter, gen := c.adapter, c.gen
	c.mu.Unlock()

	payload, err := encodePayload(c.cfg.Codec, v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	if c.limiter != nil && !c.limiter.Allow() {
		return ErrRateLimited
	}

	if err := adapter.Send(payload); err != nil {
		err = fmt.Errorf("%w: %w", ErrSendFailed, err)
		c.events.Push(event{kind: evSendFailed, gen: gen, err: err})
		return err
	}

	c.mu.Lock()
	c.stats.MessagesSent++
	c.mu.Unlock()
	return nil
}

// State returns the current phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Attempts returns the number of reconnect attempts made since the last
// successful open.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Stats returns current statistics.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.State = c.phase
	s.Attempts = c.attempts
	s.LastError = c.lastErr
	return s
}

// startLoopLocked starts the event loop if it is not running.
// Must be called with c.mu held.
func (c *Client) startLoopLocked() {
	if c.manual || c.running {
		return
	}
	c.running = true
	go c.run()
}

// run consumes events until the client is closed and the queue is empty.
func (c *Client) run() {
	for {
		ev, ok := c.events.Pop()
		if !ok {
			return
		}
		c.dispatch(ev)

		c.mu.Lock()
		if c.phase == StateClosed && c.events.Len() == 0 {
			c.running = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

// dispatch runs one transition, then its side effects outside the lock.
func (c *Client) dispatch(ev event) {
	c.mu.Lock()
	effects := c.step(ev)
	c.mu.Unlock()

	for _, fn := range effects {
		fn()
	}
}

// sinkFor returns the adapter sink for generation gen.
func (c *Client) sinkFor(gen uint64) transport.Sink {
	return func(e transport.Event) {
		c.events.Push(fromTransport(gen, e))
	}
}

func (c *Client) hooks() (func(), func(Message), func(error), func(from, to State)) {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.onOpen, c.onMessage, c.onExhausted, c.onStateChange
}
