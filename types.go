package inspectcore

import (
	"regexp"
	"sync"
)

// SignatureCache caches compiled regex patterns for WAF signatures keyed by
// signature ID, avoiding a recompile on every request (spec.md §4.H). It is
// adapted from the teacher's per-rule RuleCache, generalized to the
// signature database rather than a fixed rule file.
type SignatureCache struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

// NewSignatureCache returns an empty SignatureCache.
func NewSignatureCache() *SignatureCache {
	return &SignatureCache{cache: make(map[string]*regexp.Regexp)}
}

// Get retrieves a compiled pattern from the cache.
func (c *SignatureCache) Get(id string) (*regexp.Regexp, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	re, ok := c.cache[id]
	return re, ok
}

// Set stores a compiled pattern in the cache.
func (c *SignatureCache) Set(id string, re *regexp.Regexp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[id] = re
}

// Signature is one entry in the WAF signature database (spec.md §4.H):
// a named pattern with a severity score, matched against every field of
// every in-scope request section.
type Signature struct {
	ID       string
	Pattern  string
	Score    int
	Severity string // informational only, not read by the scanner
}
