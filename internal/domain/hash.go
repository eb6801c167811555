package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

/*
Deterministic naming (§6). No pack repository ships a canonical-JSON or
content-hash library, so this is one of the few places stdlib
(crypto/sha256 + encoding/json) is the right call rather than a gap —
there is nothing idiomatic to import for a two-function concern this
small.
*/

// canonicalJSON recursively sorts map keys at every depth before encoding,
// so that two semantically identical configs always hash the same way
// regardless of construction order.
func canonicalJSON(v any) []byte {
	buf, err := json.Marshal(canonicalize(v))
	if err != nil {
		// Inputs here are always map[string]any built by this process,
		// never arbitrary user JSON with cycles; a marshal failure means a
		// caller passed something it should not have.
		panic(fmt.Sprintf("domain: canonicalJSON: %v", err))
	}
	return buf
}

func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, len(keys))
		for i, k := range keys {
			out[i] = kv{k, canonicalize(t[k])}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return t
	}
}

type kv struct {
	Key string
	Val any
}

// orderedMap marshals as a JSON object preserving insertion order, which
// canonicalize has already sorted lexicographically.
type orderedMap []kv

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, e := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(e.Val)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// ConfigHash is the first 8 hex characters of sha256(canonicalJSON(config)),
// used to build deterministic output names ({stepKind}_{uploadId}_{configHash}.{ext}).
func ConfigHash(config map[string]any) string {
	sum := sha256.Sum256(canonicalJSON(config))
	return hex.EncodeToString(sum[:])[:8]
}

// QueryHash is the first 32 hex characters of sha256(canonicalJSON(input)),
// used for detection-query memoization keys.
func QueryHash(input map[string]any) string {
	sum := sha256.Sum256(canonicalJSON(input))
	return hex.EncodeToString(sum[:])[:32]
}

// OutputName builds the deterministic output filename for a transcode-style
// step: {stepKind}_{uploadId}_{configHash}.{ext} (§6).
func OutputName(stepKind, uploadID string, config map[string]any, ext string) string {
	return fmt.Sprintf("%s_%s_%s.%s", stepKind, uploadID, ConfigHash(config), ext)
}
