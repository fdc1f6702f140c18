// Package connection implements the resilient feed client.
//
// The Client:
//   - Opens one WebSocket connection at a time through a transport.Dialer
//   - Sends a heartbeat token while the connection is open
//   - Reconnects at a fixed interval, up to a configured attempt cap
//   - Decodes received payloads (JSON text, CBOR binary) with raw fallback
//
// All state transitions run on a single event loop per client. Adapter
// callbacks and timer firings only enqueue events, so a transition never
// races another transition of the same client.
package connection
