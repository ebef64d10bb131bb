// Package schema validates documents against externally supplied JSON
// schemas. Schemas live as <name>.schema.json files under a schemas
// directory; a missing schema file means no validation for that name.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"torchlight/internal/domain"
)

// Validator compiles and caches schemas from a directory.
type Validator struct {
	dir string

	mu       sync.Mutex
	compiled map[string]*gojsonschema.Schema
}

func NewValidator(dir string) *Validator {
	return &Validator{dir: dir, compiled: make(map[string]*gojsonschema.Schema)}
}

// Validate checks a document against the named schema and returns a
// SchemaViolation error listing every failed constraint. A schema that
// does not exist validates everything.
func (v *Validator) Validate(name string, doc any) error {
	sch, err := v.load(name)
	if err != nil {
		return err
	}
	if sch == nil {
		return nil
	}

	result, err := sch.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return domain.Wrap(domain.KindSchemaViolation, err, "validate against %s schema", name)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return domain.E(domain.KindSchemaViolation, "%s failed schema validation", name).
		WithDetails(map[string]any{"violations": violations})
}

func (v *Validator) load(name string) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if sch, ok := v.compiled[name]; ok {
		return sch, nil
	}

	path := filepath.Join(v.dir, name+".schema.json")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		v.compiled[name] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}

	sch, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	v.compiled[name] = sch
	return sch, nil
}
