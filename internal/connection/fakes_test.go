package connection

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rickgao/pricewatch/internal/timer"
	"github.com/rickgao/pricewatch/internal/transport"
)

// fakeAdapter is a transport.Adapter driven by the test.
type fakeAdapter struct {
	id   string
	sink transport.Sink

	mu      sync.Mutex
	open    bool
	closes  int
	sent    []transport.Payload
	sendErr error
}

func (a *fakeAdapter) ID() string { return a.id }

func (a *fakeAdapter) Send(p transport.Payload) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return a.sendErr
	}
	if !a.open {
		return transport.ErrNotConnected
	}
	a.sent = append(a.sent, p)
	return nil
}

func (a *fakeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closes++
	a.open = false
	return nil
}

func (a *fakeAdapter) setSendErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sendErr = err
}

func (a *fakeAdapter) sentPayloads() []transport.Payload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]transport.Payload(nil), a.sent...)
}

func (a *fakeAdapter) closeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closes
}

func (a *fakeAdapter) emitOpened() {
	a.mu.Lock()
	a.open = true
	a.mu.Unlock()
	a.sink(transport.Event{Type: transport.EventOpened, AdapterID: a.id})
}

func (a *fakeAdapter) emitMessage(p transport.Payload) {
	a.sink(transport.Event{Type: transport.EventMessage, AdapterID: a.id, Payload: p})
}

func (a *fakeAdapter) emitClosed(code int, reason string) {
	a.mu.Lock()
	a.open = false
	a.mu.Unlock()
	a.sink(transport.Event{Type: transport.EventClosed, AdapterID: a.id, Code: code, Reason: reason})
}

func (a *fakeAdapter) emitError(err error) {
	a.mu.Lock()
	a.open = false
	a.mu.Unlock()
	a.sink(transport.Event{Type: transport.EventErrored, AdapterID: a.id, Err: err})
}

// fakeDialer records every adapter it creates.
type fakeDialer struct {
	mu        sync.Mutex
	adapters  []*fakeAdapter
	endpoints []string
}

func (d *fakeDialer) Dial(endpoint string, sink transport.Sink) transport.Adapter {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := &fakeAdapter{id: fmt.Sprintf("adapter-%d", len(d.adapters)+1), sink: sink}
	d.adapters = append(d.adapters, a)
	d.endpoints = append(d.endpoints, endpoint)
	return a
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.adapters)
}

func (d *fakeDialer) last() *fakeAdapter {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.adapters) == 0 {
		return nil
	}
	return d.adapters[len(d.adapters)-1]
}

// manualLoop makes the test responsible for dispatching queued events.
func manualLoop() Option {
	return func(c *Client) {
		c.manual = true
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness drives a Client deterministically with fake transport and time.
type harness struct {
	t      *testing.T
	c      *Client
	dialer *fakeDialer
	clock  *timer.Manual

	mu          sync.Mutex
	opens       int
	messages    []Message
	exhausted   []error
	transitions [][2]State
}

func testConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = "ws://feed.test/ws"
	cfg.HeartbeatInterval = 1000 * time.Millisecond
	cfg.ReconnectInterval = 500 * time.Millisecond
	cfg.MaxReconnectAttempts = 2
	return cfg
}

func newHarness(t *testing.T, cfg ClientConfig) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		dialer: &fakeDialer{},
		clock:  timer.NewManual(),
	}

	c, err := New(cfg,
		WithDialer(h.dialer),
		WithScheduler(h.clock),
		WithLogger(discardLogger()),
		manualLoop(),
	)
	require.NoError(t, err)
	h.c = c

	c.OnOpen(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.opens++
	})
	c.OnMessage(func(m Message) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.messages = append(h.messages, m)
	})
	c.OnReconnectExhausted(func(err error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.exhausted = append(h.exhausted, err)
	})
	c.OnStateChange(func(from, to State) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.transitions = append(h.transitions, [2]State{from, to})
	})

	return h
}

// drain dispatches queued events until the queue is empty, including any
// events pushed by side effects.
func (h *harness) drain() {
	for {
		ev, ok := h.c.events.TryPop()
		if !ok {
			return
		}
		h.c.dispatch(ev)
	}
}

func (h *harness) connect() {
	h.c.Connect()
	h.drain()
}

func (h *harness) close() {
	h.c.Close()
	h.drain()
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.drain()
}

func (h *harness) countTransitions(from, to State) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, tr := range h.transitions {
		if tr[0] == from && tr[1] == to {
			n++
		}
	}
	return n
}

func (h *harness) transitionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.transitions)
}

func (h *harness) openCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens
}

func (h *harness) exhaustedErrs() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.exhausted...)
}

func (h *harness) receivedMessages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.messages...)
}

// armedTimers reports which timers the client holds.
func (h *harness) armedTimers() (heartbeat, reconnect bool) {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return h.c.heartbeat != nil, h.c.reconnect != nil
}

func (h *harness) hasAdapter() bool {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return h.c.adapter != nil
}
