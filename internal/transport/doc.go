// Package transport adapts one WebSocket connection attempt into a uniform
// stream of events.
//
// An Adapter reports four facts upward:
//   - Opened once the handshake completes
//   - Message for every text or binary frame received
//   - Closed when the peer sends a close frame (code and reason)
//   - Errored for dial failures and any other read error
//
// Adapters never retry. Reconnection belongs to the connection package.
package transport
