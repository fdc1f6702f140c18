package transport

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrNotConnected = errors.New("transport not connected")
	ErrClosed       = errors.New("transport closed")
)

// Kind is the frame type of a payload.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Payload is one opaque message, either text or bytes.
type Payload struct {
	Kind Kind
	Data []byte
}

// Text returns a text payload.
func Text(s string) Payload {
	return Payload{Kind: KindText, Data: []byte(s)}
}

// Binary returns a binary payload.
func Binary(b []byte) Payload {
	return Payload{Kind: KindBinary, Data: b}
}

// EventType identifies an adapter notification.
type EventType uint8

const (
	EventOpened EventType = iota + 1
	EventMessage
	EventClosed
	EventErrored
)

func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	case EventErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Event is a notification from one adapter. Only the fields relevant to
// Type are set.
type Event struct {
	Type      EventType
	AdapterID string

	Payload Payload // EventMessage

	Code   int    // EventClosed
	Reason string // EventClosed

	Err error // EventErrored
}

// String formats the event for logs.
func (e Event) String() string {
	switch e.Type {
	case EventMessage:
		return fmt.Sprintf("message(%s, %d bytes)", e.Payload.Kind, len(e.Payload.Data))
	case EventClosed:
		return fmt.Sprintf("closed(%d, %q)", e.Code, e.Reason)
	case EventErrored:
		return fmt.Sprintf("errored(%v)", e.Err)
	default:
		return e.Type.String()
	}
}

// Sink receives adapter events in the order the connection produced them.
// Implementations must not block.
type Sink func(Event)

// Adapter is a single physical connection attempt.
type Adapter interface {
	// ID uniquely identifies this attempt.
	ID() string

	// Send writes one payload. Returns ErrNotConnected before the adapter
	// has opened or after it has closed.
	Send(p Payload) error

	// Close requests an orderly shutdown. Calling Close on a closed adapter
	// is a no-op.
	Close() error
}

// Dialer opens adapters. Dial returns immediately; the outcome of the
// handshake is reported through sink as EventOpened or EventErrored.
type Dialer interface {
	Dial(endpoint string, sink Sink) Adapter
}
