package inspectcore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CounterStore is the externally-atomic capability the Rate-Limit
// Evaluator depends on (spec.md §3 "Limit counters", §5). Incr must behave
// as a linearizable compare-and-increment: each call increments the
// counter for key and returns its new value, with the counter expiring
// after window.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// MemoryCounterStore is an in-process CounterStore backed by a mutex-guarded
// map with lazy TTL expiry, used as the default when no shared store is
// configured (spec.md §5: "counter store is externally atomic").
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*memoryCounter
}

type memoryCounter struct {
	count   int64
	expires time.Time
}

// NewMemoryCounterStore returns an empty in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{entries: make(map[string]*memoryCounter)}
}

// Incr implements CounterStore.
func (m *MemoryCounterStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	c, ok := m.entries[key]
	if !ok || now.After(c.expires) {
		c = &memoryCounter{count: 0, expires: now.Add(window)}
		m.entries[key] = c
	}
	c.count++
	return c.count, nil
}

// Sweep removes expired entries; intended to be called periodically by a
// background goroutine the embedder owns, mirroring the teacher's rate
// limiter cleanup loop.
func (m *MemoryCounterStore) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, c := range m.entries {
		if now.After(c.expires) {
			delete(m.entries, k)
		}
	}
}

// RedisCounterStore is a CounterStore backed by Redis INCR+EXPIRE, giving
// multiple proxy processes a truly shared, linearizable counter (spec.md
// §5: "the counter store is externally atomic").
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore wraps an existing go-redis client.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Incr implements CounterStore using a Redis pipeline so the increment and
// the TTL refresh happen as a single round trip.
func (r *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrCounterStoreUnavailable, err)
	}
	return incr.Val(), nil
}

// RateLimitEvaluator evaluates the rate-limit rules bound to a URL-map in
// declaration order (spec.md §4.E).
type RateLimitEvaluator struct {
	store   CounterStore
	timeout time.Duration
	logger  *zap.Logger
}

// DefaultRateLimitTimeout is the RPC timeout applied to the counter store
// when the evaluator is constructed without an explicit one (spec.md §5:
// "RPC timeout ... default 50ms").
const DefaultRateLimitTimeout = 50 * time.Millisecond

// NewRateLimitEvaluator builds an evaluator over store, defaulting the RPC
// timeout to DefaultRateLimitTimeout when timeout <= 0.
func NewRateLimitEvaluator(store CounterStore, timeout time.Duration, logger *zap.Logger) *RateLimitEvaluator {
	if timeout <= 0 {
		timeout = DefaultRateLimitTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitEvaluator{store: store, timeout: timeout, logger: logger}
}

// Evaluate checks every rule bound to rules in order, returning the first
// Action produced by a breached threshold. A nil return means no rule
// fired and the pipeline should continue to the ACL stage. Rules whose
// exclude/include tag predicate is not satisfied are skipped entirely - no
// counter increment occurs for a skipped rule (spec.md §4.E, §8 invariant
// 2: short-circuit monotonicity - side effects of unevaluated stages must
// not occur).
func (e *RateLimitEvaluator) Evaluate(ctx context.Context, req *RequestRecord, rules []*RateLimitRule, tags *TagSet) *Decision {
	for _, rule := range rules {
		if !e.applies(rule, tags) {
			continue
		}

		key := e.counterKey(rule, req)

		ctxIncr, cancel := context.WithTimeout(ctx, e.timeout)
		count, err := e.store.Incr(ctxIncr, key, time.Duration(rule.Window)*time.Second)
		cancel()

		if err != nil {
			e.logger.Warn("rate limit counter store unavailable, failing open",
				zap.String("rule", rule.ID), zap.Error(err))
			tags.Insert("limit-store-error")
			continue
		}

		if count > int64(rule.Threshold) {
			tags.Insert("limit-hit:" + rule.ID)
			reason := ReasonDocument{
				Initiator: "limit",
				Rule:      rule.ID,
				Reason:    fmt.Sprintf("threshold %d exceeded (%d)", rule.Threshold, count),
			}
			d := blockOrMonitor(rule.Block, reason)
			return &d
		}
	}
	return nil
}

func (e *RateLimitEvaluator) applies(rule *RateLimitRule, tags *TagSet) bool {
	if len(rule.ExcludeTags) > 0 && tags.HasAny(rule.ExcludeTags) {
		return false
	}
	if len(rule.IncludeTags) > 0 && !tags.HasAll(rule.IncludeTags) {
		return false
	}
	return true
}

// counterKey derives the per-rule counter key by hashing the configured
// key-fields of the request concatenated with the rule id (spec.md §4.E).
func (e *RateLimitEvaluator) counterKey(rule *RateLimitRule, req *RequestRecord) string {
	var b strings.Builder
	b.WriteString(rule.ID)
	for _, field := range rule.KeyFields {
		b.WriteByte('|')
		b.WriteString(resolveKeyField(field, req))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return "inspectcore:limit:" + hex.EncodeToString(sum[:])
}

func resolveKeyField(field string, req *RequestRecord) string {
	switch {
	case field == "ip":
		return req.ClientIP
	case field == "path":
		return req.Path
	case field == "authority":
		return req.Authority
	case strings.HasPrefix(field, "header:"):
		name := strings.TrimPrefix(field, "header:")
		return req.Headers.GetDefault(name)
	case strings.HasPrefix(field, "cookie:"):
		name := strings.TrimPrefix(field, "cookie:")
		return req.Cookies.GetDefault(name)
	case strings.HasPrefix(field, "arg:"):
		name := strings.TrimPrefix(field, "arg:")
		return req.Args.GetDefault(name)
	default:
		return ""
	}
}
