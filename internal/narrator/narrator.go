// Package narrator is the DM narration producer: the contract the
// turn engine narrates through, an OpenAI-compatible client, and the
// helpers for digging JSON out of model output.
package narrator

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"torchlight/internal/domain/models"
)

// Request is the context handed to the producer for one turn.
type Request struct {
	Prompt       string
	Session      string
	State        map[string]any
	PriorState   map[string]any
	PlayerIntent string
	Diff         []string
}

// Producer turns a prompt plus turn context into raw model output.
type Producer interface {
	Complete(ctx context.Context, req Request) (string, *models.TokenUsage, error)
}

// ParseDMJSON decodes the producer's output as a JSON object. Models
// that wrap the object in prose or a fenced block still parse: the
// fallback takes the outermost brace span. Numbers decode as
// json.Number. Returns nil when no object can be extracted.
func ParseDMJSON(raw string) map[string]any {
	if doc := decodeObject(raw); doc != nil {
		return doc
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return decodeObject(raw[start : end+1])
	}
	return nil
}

func decodeObject(raw string) map[string]any {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil
	}
	return doc
}
