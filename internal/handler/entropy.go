package handler

import (
	"log/slog"
	"net/http"

	"torchlight/internal/dice"
	"torchlight/internal/httputil"
)

// defaultPeekLimit bounds the entropy peek endpoint.
const defaultPeekLimit = 20

// EntropyHandler serves read-only views of the shared entropy stream.
type EntropyHandler struct {
	source *dice.Source
	logger *slog.Logger
}

func NewEntropyHandler(source *dice.Source, logger *slog.Logger) *EntropyHandler {
	return &EntropyHandler{source: source, logger: logger}
}

// PeekEntropy returns the first entries of the stream and its length.
func (h *EntropyHandler) PeekEntropy(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPeekLimit)
	if limit < 0 {
		limit = defaultPeekLimit
	}

	entries, err := h.source.Peek(r.Context(), limit)
	if err != nil {
		handleError(w, err)
		return
	}
	length, err := h.source.Len(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"entries": entries, "length": length})
}
