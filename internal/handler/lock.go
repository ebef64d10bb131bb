package handler

import (
	"log/slog"
	"net/http"

	"torchlight/internal/httputil"
	"torchlight/internal/service"
)

// LockHandler serves the session lease protocol.
type LockHandler struct {
	locks  *service.LockService
	logger *slog.Logger
}

func NewLockHandler(locks *service.LockService, logger *slog.Logger) *LockHandler {
	return &LockHandler{locks: locks, logger: logger}
}

type claimLockRequest struct {
	Owner string `json:"owner"`
	TTL   int    `json:"ttl,omitempty"`
}

// ClaimLock acquires or refreshes the session lease.
func (h *LockHandler) ClaimLock(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	var req claimLockRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}

	lock, err := h.locks.Claim(r.Context(), slug, req.Owner, req.TTL)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, lock)
}

// ReleaseLock drops the lease. The owner comes from the query string so
// DELETE needs no body; omitting it force-releases.
func (h *LockHandler) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	owner := r.URL.Query().Get("owner")
	if err := h.locks.Release(r.Context(), slug, owner); err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"released": true})
}

// GetLock reports the current lease.
func (h *LockHandler) GetLock(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	lock, err := h.locks.Get(r.Context(), slug)
	if err != nil {
		handleError(w, err)
		return
	}
	if lock == nil {
		httputil.RespondJSON(w, http.StatusOK, map[string]any{"locked": false})
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"locked": true, "lock": lock})
}
