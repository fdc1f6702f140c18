package connection

import (
	"time"

	"github.com/rickgao/pricewatch/internal/transport"
)

// eventKind tags every input to the state machine.
type eventKind uint8

const (
	evOpened eventKind = iota + 1
	evMessage
	evClosed
	evErrored
	evSendFailed // delivery failed while nominally open
	evHeartbeat
	evReconnect
	evConnect
	evClose
)

func (k eventKind) String() string {
	switch k {
	case evOpened:
		return "opened"
	case evMessage:
		return "message"
	case evClosed:
		return "closed"
	case evErrored:
		return "errored"
	case evSendFailed:
		return "send_failed"
	case evHeartbeat:
		return "heartbeat"
	case evReconnect:
		return "reconnect"
	case evConnect:
		return "connect"
	case evClose:
		return "close"
	default:
		return "unknown"
	}
}

// event is one state machine input. For adapter events gen is the
// generation of the adapter that produced it; for timer events it is the
// token of the timer that fired.
type event struct {
	kind eventKind
	gen  uint64

	payload    transport.Payload
	receivedAt time.Time

	code   int
	reason string

	err error
}

// fromTransport tags an adapter event with the generation it belongs to.
func fromTransport(gen uint64, e transport.Event) event {
	ev := event{gen: gen}
	switch e.Type {
	case transport.EventOpened:
		ev.kind = evOpened
	case transport.EventMessage:
		ev.kind = evMessage
		ev.payload = e.Payload
		ev.receivedAt = time.Now()
	case transport.EventClosed:
		ev.kind = evClosed
		ev.code = e.Code
		ev.reason = e.Reason
	default:
		ev.kind = evErrored
		ev.err = e.Err
		if ev.err == nil {
			ev.err = transport.ErrClosed
		}
	}
	return ev
}

// isAdapterEvent reports whether the event came from an adapter.
func (e event) isAdapterEvent() bool {
	switch e.kind {
	case evOpened, evMessage, evClosed, evErrored, evSendFailed:
		return true
	default:
		return false
	}
}
