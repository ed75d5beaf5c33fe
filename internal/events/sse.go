package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const keepaliveInterval = 30 * time.Second

// SSEHandler streams broadcaster events to one HTTP client as
// text/event-stream. A keepalive ping goes out every 30 seconds so proxies
// don't drop idle connections.
func SSEHandler(b *Broadcaster, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ch, cancel := b.Subscribe()
		defer cancel()

		writeSSE(w, "connected", map[string]string{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		flusher.Flush()

		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev := <-ch:
				if err := writeSSE(w, ev.Type, ev.Data); err != nil {
					logger.Warn("sse write failed", slog.String("error", err.Error()))
					return
				}
				flusher.Flush()
			case <-ticker.C:
				writeSSE(w, "ping", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal sse data: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	return err
}
