package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"torchlight/internal/domain"
	"torchlight/internal/events"
	"torchlight/internal/httputil"
)

// keepaliveInterval spaces SSE comment frames so proxies keep the
// connection open.
const keepaliveInterval = 15 * time.Second

// EventsHandler streams live session updates over SSE.
type EventsHandler struct {
	bus    *events.Bus
	logger *slog.Logger
}

func NewEventsHandler(bus *events.Bus, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, logger: logger}
}

// StreamEvents subscribes the client to the session's event feed.
// Events arrive as JSON data frames; a client that falls behind is
// disconnected and reconciles by re-reading the logs with ?cursor=.
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.RespondError(w, domain.E(domain.KindInternal, "streaming unsupported"))
		return
	}

	subscriberID := uuid.NewString()
	ch, cancel := h.bus.Subscribe(slug, subscriberID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, ": connected %s\n\n", subscriberID)
	flusher.Flush()

	h.logger.Debug("event stream opened", "slug", slug, "subscriber", subscriberID)
	defer h.logger.Debug("event stream closed", "slug", slug, "subscriber", subscriberID)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, open := <-ch:
			if !open {
				// Dropped by the bus for lagging.
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("event encoding failed", "slug", slug, "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
