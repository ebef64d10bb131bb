package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"torchlight/internal/domain"
	"torchlight/internal/httputil"
	"torchlight/internal/service"
)

// SessionHandler serves session lifecycle and read endpoints.
type SessionHandler struct {
	sessions *service.SessionService
	logger   *slog.Logger
}

func NewSessionHandler(sessions *service.SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// ListSessions returns summaries for every provisioned session.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.List(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type createSessionRequest struct {
	Slug     string `json:"slug"`
	Template string `json:"template,omitempty"`
}

// CreateSession clones a template session under a new slug.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		handleError(w, err)
		return
	}

	state, err := h.sessions.Create(r.Context(), req.Slug, req.Template)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, map[string]any{"slug": req.Slug, "state": state})
}

// GetState returns the full session state document.
func (h *SessionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	state, err := h.sessions.State(r.Context(), slug)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, state)
}

// GetTranscript pages through transcript entries.
func (h *SessionHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	page, err := h.sessions.Transcript(r.Context(), slug, queryInt(r, "tail", 0), r.URL.Query().Get("cursor"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, page)
}

// GetChangelog pages through changelog entries.
func (h *SessionHandler) GetChangelog(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	page, err := h.sessions.Changelog(r.Context(), slug, queryInt(r, "tail", 0), r.URL.Query().Get("cursor"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, page)
}

// GetTurnPrompt summarizes where the session stands for the next turn.
func (h *SessionHandler) GetTurnPrompt(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	prompt, err := h.sessions.Prompt(r.Context(), slug)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, prompt)
}

// ListTurns returns recent narrated turn records, newest first.
func (h *SessionHandler) ListTurns(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	records, err := h.sessions.Turns(r.Context(), slug, queryInt(r, "limit", 0))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"turns": records})
}

// GetTurn returns the record for one turn number.
func (h *SessionHandler) GetTurn(w http.ResponseWriter, r *http.Request) {
	slug, ok := sessionSlug(w, r)
	if !ok {
		return
	}
	turn, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		handleError(w, domain.E(domain.KindSchemaViolation, "turn number must be an integer"))
		return
	}
	record, err := h.sessions.Turn(r.Context(), slug, turn)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, record)
}
