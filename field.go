package inspectcore

import (
	"encoding/base64"
	"unicode/utf8"
)

// FieldContainer is a mapping from key to a single merged value-string, used
// for request headers, cookies, and arguments (spec.md §3). Inserting a key
// that already exists appends " "+value to the existing value rather than
// overwriting it; a list-valued multimap is intentionally not used here,
// because the WAF scanner inspects one concatenated string per key.
type FieldContainer struct {
	values map[string]string
}

// NewFieldContainer returns an empty container ready for inserts.
func NewFieldContainer() *FieldContainer {
	return &FieldContainer{values: make(map[string]string)}
}

// Add merges (key, value) into the container. If value is non-empty and
// base64-decodes to valid UTF-8 text, a shadow entry under key+"_base64" is
// inserted first, using the same merge rule, before the raw value is
// merged under key. Empty values and non-UTF-8 decodes never create a
// shadow entry.
func (f *FieldContainer) Add(key, value string) {
	if value != "" {
		if decoded, ok := decodeBase64Text(value); ok {
			f.baseAdd(key+"_base64", decoded)
		}
	}
	f.baseAdd(key, value)
}

func (f *FieldContainer) baseAdd(key, value string) {
	if existing, ok := f.values[key]; ok {
		f.values[key] = existing + " " + value
		return
	}
	f.values[key] = value
}

// Get returns the value stored under key, and whether it was present.
func (f *FieldContainer) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// GetDefault returns the value stored under key, or "" if absent.
func (f *FieldContainer) GetDefault(key string) string {
	return f.values[key]
}

// Len reports the number of distinct keys, including base64 shadow keys.
func (f *FieldContainer) Len() int {
	return len(f.values)
}

// Keys returns a snapshot of all keys currently stored, in sorted order.
// A deterministic order is required here (spec.md §9 "Non-determinism
// risk"): the WAF scanner must not let Go's randomized map iteration leak
// into signature match order.
func (f *FieldContainer) Keys() []string {
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

// Range iterates key/value pairs in sorted-key order, for deterministic
// signature scanning.
func (f *FieldContainer) Range(fn func(key, value string) bool) {
	for _, k := range f.Keys() {
		if !fn(k, f.values[k]) {
			return
		}
	}
}

// decodeBase64Text decodes s as standard base64; it reports ok=true only if
// decoding succeeds and the resulting bytes are valid UTF-8 text, matching
// the "makes sense" rule from spec.md §4.B.
func decodeBase64Text(s string) (string, bool) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}
