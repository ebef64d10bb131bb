// Package stablehash produces a canonical sha256 over JSON documents.
// Two documents that are equal as JSON values hash identically no
// matter what key order or whitespace they arrived with.
package stablehash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash canonicalizes v (marshal, re-decode with json.Number, re-marshal
// with sorted keys) and returns the hex sha256 of the result.
func Hash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("stablehash: marshal: %w", err)
	}
	return HashJSON(raw)
}

// HashJSON canonicalizes an already-encoded JSON document and returns
// the hex sha256 of the canonical form.
func HashJSON(raw []byte) (string, error) {
	canon, err := Canonical(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Canonical re-encodes a JSON document with sorted object keys, no
// insignificant whitespace, and numbers kept in their source form.
func Canonical(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("stablehash: decode: %w", err)
	}
	// encoding/json sorts map keys when marshaling, which is exactly
	// the canonical ordering we need.
	canon, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("stablehash: canonicalize: %w", err)
	}
	return canon, nil
}
