// Package proofenc canonicalizes proof objects for transport to the
// attestation API: stable key ordering, no incidental whitespace, base64
// text output. Encoding the same logical object always yields identical
// bytes regardless of input key order.
package proofenc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

// Canonicalize re-encodes raw JSON with sorted object keys and compact
// separators.
func Canonicalize(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("parse proof json: %w", err)
	}
	// encoding/json sorts map keys and emits no insignificant whitespace.
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize proof json: %w", err)
	}
	return out, nil
}

// EncodeBase64 canonicalizes raw JSON and encodes the result as base64 text.
func EncodeBase64(raw []byte) (string, error) {
	canonical, err := Canonicalize(raw)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(canonical), nil
}

// EncodeFile reads a proof JSON file and returns its canonical base64
// encoding.
func EncodeFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read proof file: %w", err)
	}
	return EncodeBase64(raw)
}
