package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rickgao/pricewatch/internal/connection"
)

type feedClient interface {
	Connect()
	Close()
	Send(v any) error
	Stats() connection.Stats
}

type hookRegistrar interface {
	OnOpen(func())
	OnMessage(func(connection.Message))
	OnReconnectExhausted(func(error))
	OnStateChange(func(from, to connection.State))
}

// console executes prompt commands against a client.
type console struct {
	client feedClient
	out    io.Writer
}

func newConsole(client feedClient, out io.Writer) *console {
	return &console{client: client, out: out}
}

// attach prints client lifecycle and received messages.
func (c *console) attach(h hookRegistrar) {
	h.OnOpen(func() {
		fmt.Fprintln(c.out, "* connected")
	})
	h.OnStateChange(func(from, to connection.State) {
		fmt.Fprintf(c.out, "* %s -> %s\n", from, to)
	})
	h.OnReconnectExhausted(func(err error) {
		fmt.Fprintf(c.out, "* gave up: %v (type 'connect' to retry)\n", err)
	})
	h.OnMessage(func(msg connection.Message) {
		fmt.Fprintln(c.out, formatMessage(msg))
	})
}

// execute runs one command line. Returns true when the user asked to quit.
func (c *console) execute(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "help", "?":
		c.printHelp()

	case "send", "s":
		if rest == "" {
			fmt.Fprintln(c.out, "usage: send <text>")
			return false
		}
		c.report(c.client.Send(rest))

	case "json", "j":
		if !json.Valid([]byte(rest)) {
			fmt.Fprintln(c.out, "invalid JSON")
			return false
		}
		c.report(c.client.Send(json.RawMessage(rest)))

	case "connect":
		c.client.Connect()

	case "close":
		c.client.Close()

	case "stats":
		c.printStats()

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *console) report(err error) {
	if err != nil {
		fmt.Fprintf(c.out, "send failed: %v\n", err)
	}
}

func (c *console) printStats() {
	s := c.client.Stats()
	fmt.Fprintf(c.out, "state=%s attempts=%d opens=%d received=%d sent=%d heartbeats=%d fallbacks=%d stale=%d\n",
		s.State, s.Attempts, s.Opens, s.MessagesReceived, s.MessagesSent, s.HeartbeatsSent, s.DecodeFallbacks, s.StaleEvents)
	if s.LastError != nil {
		fmt.Fprintf(c.out, "last error: %v\n", s.LastError)
	}
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, `
Commands:
  send <text>   - Send a text frame
  json <obj>    - Send a JSON document
  connect       - Connect (or resume after giving up)
  close         - Close the connection
  stats         - Show client statistics
  help          - Show this help
  quit          - Exit`)
}

func formatMessage(msg connection.Message) string {
	if !msg.Decoded {
		if b, ok := msg.Value.([]byte); ok {
			return fmt.Sprintf("< [%d] binary %d bytes", msg.Seq, len(b))
		}
		return fmt.Sprintf("< [%d] %v", msg.Seq, msg.Value)
	}

	data, err := json.Marshal(msg.Value)
	if err != nil {
		return fmt.Sprintf("< [%d] %v", msg.Seq, msg.Value)
	}
	return fmt.Sprintf("< [%d] %s", msg.Seq, data)
}
