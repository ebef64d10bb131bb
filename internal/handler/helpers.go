package handler

import (
	"net/http"
	"strconv"

	"torchlight/internal/domain"
	"torchlight/internal/httputil"
)

// handleError renders the canonical error envelope for a failure.
func handleError(w http.ResponseWriter, err error) {
	httputil.RespondError(w, err)
}

// sessionSlug extracts the {slug} path value.
func sessionSlug(w http.ResponseWriter, r *http.Request) (string, bool) {
	slug := r.PathValue("slug")
	if slug == "" {
		handleError(w, domain.E(domain.KindSchemaViolation, "session slug is required"))
		return "", false
	}
	return slug, true
}

// queryInt parses an integer query parameter, falling back on absence
// or garbage.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	switch r.URL.Query().Get(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}
