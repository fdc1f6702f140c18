package connection

import (
	"fmt"

	"github.com/rickgao/pricewatch/internal/transport"
)

// step applies one event to the state machine and returns the side
// effects (hook calls, adapter closes, network writes) to run once c.mu is
// released. Must be called with c.mu held.
func (c *Client) step(ev event) []func() {
	switch {
	case ev.kind == evConnect:
		return c.handleConnect()
	case ev.kind == evClose:
		return c.handleClose()
	case ev.isAdapterEvent():
		if c.adapter == nil || ev.gen != c.gen {
			c.discard(ev)
			return nil
		}
		return c.handleAdapterEvent(ev)
	case ev.kind == evHeartbeat:
		if c.phase != StateOpen || c.heartbeat == nil || ev.gen != c.heartbeatToken {
			c.discard(ev)
			return nil
		}
		return c.handleHeartbeat()
	case ev.kind == evReconnect:
		if c.phase != StateReconnecting || c.reconnect == nil || ev.gen != c.reconnectToken {
			c.discard(ev)
			return nil
		}
		return c.handleReconnect()
	default:
		c.discard(ev)
		return nil
	}
}

// discard drops an event from a superseded adapter or timer.
func (c *Client) discard(ev event) {
	c.stats.StaleEvents++
	c.logger.Debug("ignoring stale event",
		"event", ev.kind,
		"gen", ev.gen,
		"state", c.phase,
	)
}

func (c *Client) handleConnect() []func() {
	switch c.phase {
	case StateConnecting, StateOpen, StateReconnecting:
		c.logger.Debug("connect ignored, already active", "state", c.phase)
		return nil
	}

	// Resuming after close or exhaustion starts a fresh attempt budget.
	c.attempts = 0
	c.lastErr = nil
	return c.dial()
}

func (c *Client) handleClose() []func() {
	if c.phase == StateClosed && c.adapter == nil {
		return nil
	}

	c.cancelHeartbeat()
	c.cancelReconnect()

	var effects []func()
	if old := c.detach(); old != nil {
		effects = append(effects, func() { old.Close() })
	}

	c.logger.Info("client closed", "url", c.cfg.URL)
	return append(effects, c.transition(StateClosed)...)
}

func (c *Client) handleAdapterEvent(ev event) []func() {
	switch ev.kind {
	case evOpened:
		if c.phase != StateConnecting {
			c.discard(ev)
			return nil
		}
		return c.handleOpened()

	case evMessage:
		if c.phase != StateOpen {
			c.discard(ev)
			return nil
		}
		return c.handleMessage(ev)

	default:
		return c.handleFailure(ev)
	}
}

func (c *Client) handleOpened() []func() {
	c.attempts = 0
	c.lastErr = nil
	c.stats.Opens++
	c.armHeartbeat()

	c.logger.Info("connected", "url", c.cfg.URL, "adapter_id", c.adapterID)

	effects := c.transition(StateOpen)
	onOpen, _, _, _ := c.hooks()
	if onOpen != nil {
		effects = append(effects, onOpen)
	}
	return effects
}

func (c *Client) handleMessage(ev event) []func() {
	c.msgSeq++
	c.stats.MessagesReceived++

	value, decoded := decodePayload(ev.payload)
	if !decoded {
		c.stats.DecodeFallbacks++
		c.logger.Debug("payload not decodable, delivering raw",
			"kind", ev.payload.Kind,
			"size", len(ev.payload.Data),
		)
	}

	msg := Message{
		Raw:        ev.payload,
		Value:      value,
		Decoded:    decoded,
		AdapterID:  c.adapterID,
		Seq:        c.msgSeq,
		ReceivedAt: ev.receivedAt,
	}

	_, onMessage, _, _ := c.hooks()
	if onMessage == nil {
		return nil
	}
	return []func(){func() { onMessage(msg) }}
}

// handleFailure covers Closed, Errored and SendFailed in Connecting or Open.
func (c *Client) handleFailure(ev event) []func() {
	var cause error
	switch {
	case c.phase == StateConnecting && ev.kind == evClosed:
		cause = fmt.Errorf("%w: closed during handshake (%d %q)", ErrConnectFailed, ev.code, ev.reason)
	case c.phase == StateConnecting:
		cause = fmt.Errorf("%w: %w", ErrConnectFailed, ev.err)
	case ev.kind == evClosed:
		cause = fmt.Errorf("connection closed (%d %q)", ev.code, ev.reason)
	default:
		cause = ev.err
	}

	c.cancelHeartbeat()
	c.lastErr = cause

	var effects []func()
	if old := c.detach(); old != nil {
		effects = append(effects, func() { old.Close() })
	}

	c.logger.Warn("connection lost",
		"url", c.cfg.URL,
		"state", c.phase,
		"event", ev.kind,
		"error", cause,
	)

	return append(effects, c.failover(cause)...)
}

// failover moves to Reconnecting while attempts remain, otherwise to
// Closed with a single exhaustion notification.
func (c *Client) failover(cause error) []func() {
	if c.attempts < c.cfg.MaxReconnectAttempts {
		c.armReconnect()
		c.logger.Info("reconnecting",
			"attempt", c.attempts+1,
			"max_attempts", c.cfg.MaxReconnectAttempts,
			"delay", c.cfg.ReconnectInterval,
		)
		return c.transition(StateReconnecting)
	}

	err := fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, c.attempts, cause)
	c.logger.Error("giving up on connection", "url", c.cfg.URL, "error", err)

	effects := c.transition(StateClosed)
	_, _, onExhausted, _ := c.hooks()
	if onExhausted != nil {
		effects = append(effects, func() { onExhausted(err) })
	}
	return effects
}

func (c *Client) handleHeartbeat() []func() {
	c.heartbeat = nil
	c.heartbeatToken = 0

	adapter, gen := c.adapter, c.gen
	token := transport.Text(c.cfg.HeartbeatToken)
	c.armHeartbeat()

	// A failed heartbeat is fed back as SendFailed, which the machine
	// handles exactly like Errored.
	return []func(){func() {
		if err := adapter.Send(token); err != nil {
			c.events.Push(event{
				kind: evSendFailed,
				gen:  gen,
				err:  fmt.Errorf("%w: heartbeat: %w", ErrSendFailed, err),
			})
			return
		}
		c.mu.Lock()
		c.stats.HeartbeatsSent++
		c.mu.Unlock()
	}}
}

func (c *Client) handleReconnect() []func() {
	c.reconnect = nil
	c.reconnectToken = 0
	c.attempts++
	return c.dial()
}

// dial creates a fresh adapter and enters Connecting.
func (c *Client) dial() []func() {
	c.gen++
	c.msgSeq = 0
	c.adapter = c.dialer.Dial(c.cfg.URL, c.sinkFor(c.gen))
	c.adapterID = c.adapter.ID()

	c.logger.Info("connecting",
		"url", c.cfg.URL,
		"attempt", c.attempts,
		"adapter_id", c.adapterID,
	)
	return c.transition(StateConnecting)
}

// detach releases the current adapter and returns it for closing.
func (c *Client) detach() transport.Adapter {
	old := c.adapter
	c.adapter = nil
	c.adapterID = ""
	return old
}

// transition sets the phase and returns the state change notification.
func (c *Client) transition(to State) []func() {
	from := c.phase
	c.phase = to
	if from == to {
		return nil
	}

	c.logger.Debug("state change", "from", from, "to", to)

	_, _, _, onStateChange := c.hooks()
	if onStateChange == nil {
		return nil
	}
	return []func(){func() { onStateChange(from, to) }}
}

// armHeartbeat cancels any armed heartbeat before arming a new one.
func (c *Client) armHeartbeat() {
	c.cancelHeartbeat()

	c.tokens++
	token := c.tokens
	c.heartbeatToken = token
	c.heartbeat = c.sched.After(c.cfg.HeartbeatInterval, func() {
		c.events.Push(event{kind: evHeartbeat, gen: token})
	})
}

func (c *Client) cancelHeartbeat() {
	if c.heartbeat != nil {
		c.heartbeat.Cancel()
	}
	c.heartbeat = nil
	c.heartbeatToken = 0
}

// armReconnect cancels any pending reconnect before arming a new one.
func (c *Client) armReconnect() {
	c.cancelReconnect()

	c.tokens++
	token := c.tokens
	c.reconnectToken = token
	c.reconnect = c.sched.After(c.cfg.ReconnectInterval, func() {
		c.events.Push(event{kind: evReconnect, gen: token})
	})
}

func (c *Client) cancelReconnect() {
	if c.reconnect != nil {
		c.reconnect.Cancel()
	}
	c.reconnect = nil
	c.reconnectToken = 0
}
