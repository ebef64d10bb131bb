package handler

import (
	"log/slog"
	"net/http"

	"torchlight/internal/domain"
	"torchlight/internal/httputil"
	"torchlight/internal/service"
)

// TurnHandler serves the preview/commit protocol and the narrated
// commit variant.
type TurnHandler struct {
	engine   *service.TurnEngine
	narrator *service.NarrateService
	logger   *slog.Logger
}

func NewTurnHandler(engine *service.TurnEngine, narrator *service.NarrateService, logger *slog.Logger) *TurnHandler {
	return &TurnHandler{engine: engine, narrator: narrator, logger: logger}
}

// CreatePreview validates a proposed turn and reserves entropy for it.
func (h *TurnHandler) CreatePreview(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	var req service.PreviewRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}

	result, err := h.engine.Preview(r.Context(), slug, req)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

type commitRequest struct {
	PreviewID string `json:"preview_id"`
	LockOwner string `json:"lock_owner,omitempty"`
}

func (h *TurnHandler) decodeCommit(w http.ResponseWriter, r *http.Request) (commitRequest, bool) {
	var req commitRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		handleError(w, err)
		return commitRequest{}, false
	}
	if req.PreviewID == "" {
		handleError(w, domain.E(domain.KindSchemaViolation, "preview_id is required"))
		return commitRequest{}, false
	}
	return req, true
}

// CommitTurn applies a preview atomically.
func (h *TurnHandler) CommitTurn(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeCommit(w, r)
	if !ok {
		return
	}

	result, err := h.engine.Commit(r.Context(), slug, req.PreviewID, req.LockOwner)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

// CommitAndNarrate commits a preview, then narrates and records the
// turn.
func (h *TurnHandler) CommitAndNarrate(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeCommit(w, r)
	if !ok {
		return
	}

	result, err := h.narrator.CommitAndNarrate(r.Context(), slug, req.PreviewID, req.LockOwner)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

// CancelPreview discards a reservation without committing it.
func (h *TurnHandler) CancelPreview(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	previewID := r.PathValue("id")
	if previewID == "" {
		handleError(w, domain.E(domain.KindSchemaViolation, "preview id is required"))
		return
	}
	if err := h.engine.Cancel(r.Context(), slug, previewID); err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"canceled": true})
}
