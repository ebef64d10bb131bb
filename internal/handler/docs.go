package handler

import (
	"log/slog"
	"net/http"

	"torchlight/internal/httputil"
	"torchlight/internal/service"
)

// DocHandler serves the auxiliary per-session documents.
type DocHandler struct {
	docs   *service.DocService
	logger *slog.Logger
}

func NewDocHandler(docs *service.DocService, logger *slog.Logger) *DocHandler {
	return &DocHandler{docs: docs, logger: logger}
}

// ListKinds returns the document kinds backends accept.
func (h *DocHandler) ListKinds(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"kinds": h.docs.Kinds()})
}

// GetDoc returns the document, empty when never written.
func (h *DocHandler) GetDoc(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	doc, err := h.docs.Get(r.Context(), slug, r.PathValue("kind"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, doc)
}

type putDocRequest struct {
	Doc       map[string]any `json:"doc"`
	DryRun    bool           `json:"dry_run,omitempty"`
	LockOwner string         `json:"lock_owner,omitempty"`
}

// PutDoc replaces the document. dry_run (body field or query) reports
// the would-be diff without persisting.
func (h *DocHandler) PutDoc(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	var req putDocRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.Doc == nil {
		req.Doc = map[string]any{}
	}
	dryRun := req.DryRun || queryBool(r, "dry_run")

	update, err := h.docs.Put(r.Context(), slug, r.PathValue("kind"), req.Doc, dryRun, req.LockOwner)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, update)
}
