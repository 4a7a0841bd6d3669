// Package server provides Server-Sent Events delivery for chat streams
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"companion-backend/chat"
)

// heartbeatInterval is how often a comment line is written to keep
// intermediaries from closing an idle stream.
const heartbeatInterval = 15 * time.Second

// writeSSE streams chat events to the client in text/event-stream format and
// returns once a terminal event has been delivered, the event channel closes,
// or the client disconnects.
func writeSSE(w http.ResponseWriter, r *http.Request, events <-chan chat.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "Streaming is not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, open := <-events:
			if !open {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				log.Printf("[SSE] Write failed: %v", err)
				return
			}
			flusher.Flush()
			if event.Terminal() {
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ":ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			log.Printf("[SSE] Client disconnected")
			return
		}
	}
}

// writeSSEEvent formats one event as an SSE frame with a named event type
func writeSSEEvent(w http.ResponseWriter, event chat.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
	return err
}
