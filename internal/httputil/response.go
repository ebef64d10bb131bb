package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"torchlight/internal/domain"
)

// maxBodyBytes caps request bodies; turn payloads are small documents.
const maxBodyBytes = 1 << 20

// RespondJSON writes a JSON response with the given status code.
// It marshals first, preventing partial responses if encoding fails
// after headers are sent.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		RespondError(w, domain.Wrap(domain.KindInternal, err, "encode response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// errorBody is the canonical error envelope.
type errorBody struct {
	Kind    domain.Kind    `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// RespondError writes the error envelope for any error. Domain errors
// carry their own status, kind, and details; anything else renders as
// Internal without leaking its message.
func RespondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Kind: domain.KindInternal, Message: "internal server error"}

	var de *domain.Error
	if errors.As(err, &de) {
		status = de.StatusCode()
		body.Kind = de.Kind
		body.Message = de.Message
		body.Details = de.Details
	}

	payload, marshalErr := json.Marshal(errorEnvelope{Error: body})
	if marshalErr != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// ParseJSON decodes the request body into dst with a size cap. The
// returned error is a SchemaViolation ready for RespondError.
func ParseJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.E(domain.KindSchemaViolation, "request body is empty")
		}
		return domain.Wrap(domain.KindSchemaViolation, err, "invalid request body")
	}
	return nil
}
