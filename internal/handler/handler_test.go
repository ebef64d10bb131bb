package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torchlight/internal/dice"
	"torchlight/internal/domain/models"
	"torchlight/internal/events"
	"torchlight/internal/repository/file"
	"torchlight/internal/schema"
	"torchlight/internal/service"
)

// newTestServer wires the full route table over a file store seeded
// with one session and a short entropy stream.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()

	store, err := file.New(root, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = dice.Extend(ctx, store, 5)
	require.NoError(t, err)
	require.NoError(t, store.CreateSession(ctx, "quest", models.SessionState{
		Character: "quest",
		Location:  "harbor",
		HP:        10,
		Level:     1,
	}))

	bus := events.NewBus(logger)
	source := dice.NewSource(store)
	evaluator := dice.NewEvaluator(store)
	validator := schema.NewValidator(filepath.Join(root, "schemas"))

	locks := service.NewLockService(store, 300, logger)
	sessions := service.NewSessionService(store, locks, 50, 50, logger)
	engine := service.NewTurnEngine(store, source, evaluator, locks, validator, bus, time.Hour, logger)
	narrate := service.NewNarrateService(store, engine, nil, logger)
	rolls := service.NewRollService(store, source, evaluator, locks, bus, logger)
	snapshots := service.NewSnapshotService(store, locks, logger)
	docs := service.NewDocService(store, locks, logger)

	sessionHandler := NewSessionHandler(sessions, logger)
	lockHandler := NewLockHandler(locks, logger)
	turnHandler := NewTurnHandler(engine, narrate, logger)
	rollHandler := NewRollHandler(rolls, logger)
	saveHandler := NewSaveHandler(snapshots, logger)
	docHandler := NewDocHandler(docs, logger)
	entropyHandler := NewEntropyHandler(source, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthCheck)
	mux.HandleFunc("GET /api/sessions", sessionHandler.ListSessions)
	mux.HandleFunc("GET /api/sessions/{slug}/state", sessionHandler.GetState)
	mux.HandleFunc("GET /api/sessions/{slug}/transcript", sessionHandler.GetTranscript)
	mux.HandleFunc("GET /api/sessions/{slug}/turn", sessionHandler.GetTurnPrompt)
	mux.HandleFunc("POST /api/sessions/{slug}/lock/claim", lockHandler.ClaimLock)
	mux.HandleFunc("DELETE /api/sessions/{slug}/lock", lockHandler.ReleaseLock)
	mux.HandleFunc("POST /api/sessions/{slug}/turn/preview", turnHandler.CreatePreview)
	mux.HandleFunc("POST /api/sessions/{slug}/turn/commit", turnHandler.CommitTurn)
	mux.HandleFunc("POST /api/sessions/{slug}/roll", rollHandler.PerformRoll)
	mux.HandleFunc("GET /api/sessions/{slug}/saves", saveHandler.ListSaves)
	mux.HandleFunc("POST /api/sessions/{slug}/saves", saveHandler.CreateSave)
	mux.HandleFunc("GET /api/sessions/{slug}/docs/{kind}", docHandler.GetDoc)
	mux.HandleFunc("PUT /api/sessions/{slug}/docs/{kind}", docHandler.PutDoc)
	mux.HandleFunc("GET /api/entropy", entropyHandler.PeekEntropy)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	return resp, doc
}

func TestHealth(t *testing.T) {
	server := newTestServer(t)
	resp, doc := doJSON(t, http.MethodGet, server.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", doc["status"])
}

func TestErrorEnvelope(t *testing.T) {
	server := newTestServer(t)
	resp, doc := doJSON(t, http.MethodGet, server.URL+"/api/sessions/ghost/state", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	envelope, ok := doc["error"].(map[string]any)
	require.True(t, ok, "error envelope present")
	assert.Equal(t, "SessionMissing", envelope["kind"])
	assert.NotEmpty(t, envelope["message"])
}

func TestPreviewCommitRoundTrip(t *testing.T) {
	server := newTestServer(t)
	base := server.URL + "/api/sessions/quest"

	resp, _ := doJSON(t, http.MethodPost, base+"/lock/claim", map[string]any{"owner": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, preview := doJSON(t, http.MethodPost, base+"/turn/preview", map[string]any{
		"state_patch":      map[string]any{"location": "camp"},
		"transcript_entry": "make camp",
		"dice_expressions": []string{"1d20"},
		"lock_owner":       "alice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	previewID, _ := preview["id"].(string)
	require.NotEmpty(t, previewID)

	plan, ok := preview["entropy_plan"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1 rolls starting at 1", plan["usage"])

	resp, commit := doJSON(t, http.MethodPost, base+"/turn/commit", map[string]any{
		"preview_id": previewID,
		"lock_owner": "alice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	state, ok := commit["state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), state["turn"])
	assert.Equal(t, "camp", state["location"])
	assert.Equal(t, float64(1), state["log_index"])

	// Committing the same preview again is a missing-preview conflict.
	resp, errDoc := doJSON(t, http.MethodPost, base+"/turn/commit", map[string]any{
		"preview_id": previewID,
		"lock_owner": "alice",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	envelope := errDoc["error"].(map[string]any)
	assert.Equal(t, "PreviewMissing", envelope["kind"])
}

func TestLockConflictOverHTTP(t *testing.T) {
	server := newTestServer(t)
	base := server.URL + "/api/sessions/quest"

	resp, _ := doJSON(t, http.MethodPost, base+"/lock/claim", map[string]any{"owner": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, doc := doJSON(t, http.MethodPost, base+"/lock/claim", map[string]any{"owner": "bob"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	envelope := doc["error"].(map[string]any)
	assert.Equal(t, "LockHeld", envelope["kind"])
	details := envelope["details"].(map[string]any)
	assert.Equal(t, "alice", details["owner"])
}

func TestRollWithoutLock(t *testing.T) {
	server := newTestServer(t)
	resp, doc := doJSON(t, http.MethodPost, server.URL+"/api/sessions/quest/roll", map[string]any{
		"kind": "ability_check", "ability": "dex",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	envelope := doc["error"].(map[string]any)
	assert.Equal(t, "LockRequired", envelope["kind"])
}

func TestDocDryRun(t *testing.T) {
	server := newTestServer(t)
	base := server.URL + "/api/sessions/quest/docs/mood"

	resp, update := doJSON(t, http.MethodPut, base, map[string]any{
		"doc": map[string]any{"tone": "tense"}, "dry_run": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, update["persisted"])

	resp, doc := doJSON(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, doc)

	resp, update = doJSON(t, http.MethodPut, base, map[string]any{
		"doc": map[string]any{"tone": "tense"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, update["persisted"])

	resp, doc = doJSON(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "tense", doc["tone"])
}

func TestSavesRequireLock(t *testing.T) {
	server := newTestServer(t)
	resp, doc := doJSON(t, http.MethodPost, server.URL+"/api/sessions/quest/saves", map[string]any{
		"save_name": "before-heist",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	envelope := doc["error"].(map[string]any)
	assert.Equal(t, "LockRequired", envelope["kind"])
}

func TestEntropyPeek(t *testing.T) {
	server := newTestServer(t)
	resp, doc := doJSON(t, http.MethodGet, server.URL+"/api/entropy?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5), doc["length"])
	entries, ok := doc["entries"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 2)
}
