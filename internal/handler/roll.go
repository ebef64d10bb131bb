package handler

import (
	"log/slog"
	"net/http"

	"torchlight/internal/httputil"
	"torchlight/internal/service"
)

// RollHandler serves ad-hoc dice checks.
type RollHandler struct {
	rolls  *service.RollService
	logger *slog.Logger
}

func NewRollHandler(rolls *service.RollService, logger *slog.Logger) *RollHandler {
	return &RollHandler{rolls: rolls, logger: logger}
}

// PerformRoll resolves a check against the next entropy entry.
func (h *RollHandler) PerformRoll(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	var req service.RollRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}

	result, err := h.rolls.Perform(r.Context(), slug, req)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}
