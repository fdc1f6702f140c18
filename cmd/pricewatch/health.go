package main

import (
	"encoding/json"
	"net/http"

	"github.com/rickgao/pricewatch/internal/connection"
	"github.com/rickgao/pricewatch/internal/recorder"
	"github.com/rickgao/pricewatch/internal/version"
)

type clientStats interface {
	Stats() connection.Stats
}

type recorderStats interface {
	Stats() recorder.Metrics
}

type clientHealth struct {
	State            string `json:"state"`
	Attempts         int    `json:"attempts"`
	Opens            int64  `json:"opens"`
	MessagesReceived int64  `json:"messages_received"`
	MessagesSent     int64  `json:"messages_sent"`
	HeartbeatsSent   int64  `json:"heartbeats_sent"`
	DecodeFallbacks  int64  `json:"decode_fallbacks"`
	LastError        string `json:"last_error,omitempty"`
}

type healthResponse struct {
	Status     string         `json:"status"`
	Build      version.Info   `json:"build"`
	Components map[string]any `json:"components"`
}

// createHealthHandler creates the HTTP handler for health checks.
// The service is unhealthy once the client has closed, degraded while it
// is connecting or reconnecting.
func createHealthHandler(client clientStats, rec recorderStats) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := client.Stats()

		health := healthResponse{
			Status:     "healthy",
			Build:      version.Get(),
			Components: make(map[string]any),
		}

		ch := clientHealth{
			State:            stats.State.String(),
			Attempts:         stats.Attempts,
			Opens:            stats.Opens,
			MessagesReceived: stats.MessagesReceived,
			MessagesSent:     stats.MessagesSent,
			HeartbeatsSent:   stats.HeartbeatsSent,
			DecodeFallbacks:  stats.DecodeFallbacks,
		}
		if stats.LastError != nil {
			ch.LastError = stats.LastError.Error()
		}
		health.Components["client"] = ch

		switch stats.State {
		case connection.StateOpen:
		case connection.StateClosed:
			health.Status = "unhealthy"
		default:
			health.Status = "degraded"
		}

		if rec != nil {
			m := rec.Stats()
			health.Components["recorder"] = map[string]int64{
				"received":  m.Received,
				"dropped":   m.Dropped,
				"inserts":   m.Inserts,
				"conflicts": m.Conflicts,
				"flushes":   m.Flushes,
				"errors":    m.Errors,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
