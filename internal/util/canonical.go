package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalJSON returns the RFC 8785 canonical JSON representation of v.
// Map key order and number formatting are normalized, so two structurally
// equal argument maps always produce identical bytes.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical json: marshal: %w", err)
	}

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical json: transform: %w", err)
	}

	return out, nil
}

// HashValue returns a short, stable sha256 digest of v's canonical form.
// Values that cannot be marshaled fall back to their %#v rendering.
func HashValue(v any) string {
	b, err := CanonicalJSON(v)
	if err != nil {
		b = []byte(fmt.Sprintf("%#v", v))
	}

	sum := sha256.Sum256(b)

	return hex.EncodeToString(sum[:8])
}

// NormalizeJSON round-trips v through encoding/json so that the result only
// contains JSON primitives (map[string]any, []any, json.Number, string, bool, nil).
func NormalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}

	return out, nil
}

// Summarize renders v as compact JSON truncated to limit runes. It is used for
// execution log entries and span output summaries.
func Summarize(v any, limit int) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprintf("%v", v)
		} else {
			s = string(b)
		}
	}

	if limit <= 0 {
		return s
	}

	r := []rune(s)
	if len(r) <= limit {
		return s
	}

	return string(r[:limit]) + "..."
}
