package handler

import (
	"log/slog"
	"net/http"

	"torchlight/internal/domain"
	"torchlight/internal/domain/models"
	"torchlight/internal/httputil"
	"torchlight/internal/service"
)

// SaveHandler serves the snapshot (save point) endpoints.
type SaveHandler struct {
	snapshots *service.SnapshotService
	logger    *slog.Logger
}

func NewSaveHandler(snapshots *service.SnapshotService, logger *slog.Logger) *SaveHandler {
	return &SaveHandler{snapshots: snapshots, logger: logger}
}

// ListSaves returns save points, newest first.
func (h *SaveHandler) ListSaves(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	saves, err := h.snapshots.List(r.Context(), slug, queryInt(r, "limit", 0))
	if err != nil {
		handleError(w, err)
		return
	}
	// Listing omits file payloads; fetch a single save for contents.
	summaries := make([]map[string]any, len(saves))
	for i, save := range saves {
		summaries[i] = map[string]any{
			"save_id":    save.SaveID,
			"save_type":  save.SaveType,
			"save_name":  save.SaveName,
			"created_at": save.CreatedAt,
		}
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"saves": summaries})
}

type createSaveRequest struct {
	SaveType  string `json:"save_type,omitempty"`
	SaveName  string `json:"save_name,omitempty"`
	LockOwner string `json:"lock_owner,omitempty"`
}

// CreateSave captures a manual save point.
func (h *SaveHandler) CreateSave(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	var req createSaveRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	saveType := req.SaveType
	if saveType == "" {
		saveType = models.SaveTypeManual
	}
	if saveType != models.SaveTypeManual && saveType != models.SaveTypeAuto {
		handleError(w, domain.E(domain.KindSchemaViolation, "save_type must be manual or auto"))
		return
	}

	save, err := h.snapshots.Create(r.Context(), slug, saveType, req.SaveName, req.LockOwner)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, save)
}

// GetSave returns one save point including its captured files.
func (h *SaveHandler) GetSave(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	save, err := h.snapshots.Get(r.Context(), slug, r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, save)
}

type restoreSaveRequest struct {
	LockOwner string `json:"lock_owner,omitempty"`
}

// RestoreSave writes the captured artifacts back over the session.
func (h *SaveHandler) RestoreSave(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	var req restoreSaveRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	if err := h.snapshots.Restore(r.Context(), slug, r.PathValue("id"), req.LockOwner); err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"restored": true})
}

// DeleteSave removes a save point.
func (h *SaveHandler) DeleteSave(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	if err := h.snapshots.Delete(r.Context(), slug, r.PathValue("id")); err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
