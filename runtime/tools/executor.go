package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/cache"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/metrics/prometheus"
)

// Cache lookup outcomes reported to metrics.
const (
	cacheHit    = "hit"
	cacheMiss   = "miss"
	cacheError  = "error"
	cacheBypass = "bypass"
)

// DefaultTTLs returns how long a successful result of each tool stays fresh.
func DefaultTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		string(KindCurrentWeather): 5 * time.Minute,
		string(KindWarnings):       2 * time.Minute,
		string(KindForecast):       30 * time.Minute,
	}
}

// CacheKey identifies a normalized call: the tool name plus a digest of its
// canonical arguments.
func CacheKey(call ToolCall) (string, error) {
	args, err := call.CanonicalArgs()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(args)
	return call.Name + ":" + hex.EncodeToString(sum[:]), nil
}

// CachedExecutor answers repeated calls from a cache.Store and collapses
// concurrent identical calls into one. Only Success results are cached.
// A tool with no TTL is never cached.
type CachedExecutor struct {
	next     Invoker
	registry *Registry
	store    cache.Store
	ttls     map[string]time.Duration
	group    singleflight.Group
}

// NewCachedExecutor wraps next. A nil ttls map means DefaultTTLs.
func NewCachedExecutor(next Invoker, registry *Registry, store cache.Store, ttls map[string]time.Duration) *CachedExecutor {
	if ttls == nil {
		ttls = DefaultTTLs()
	}
	return &CachedExecutor{next: next, registry: registry, store: store, ttls: ttls}
}

type flightResult struct {
	result ToolResult
}

// Invoke returns a cached result for call when one is fresh, otherwise invokes next.
// Cache errors are logged and treated as misses.
func (e *CachedExecutor) Invoke(ctx context.Context, call ToolCall) (ToolResult, error) {
	normalized, _, err := e.registry.Normalize(call)
	if err != nil {
		return nil, err
	}

	ttl := e.ttls[normalized.Name]
	if ttl <= 0 || e.store == nil {
		prometheus.RecordCacheLookup(normalized.Name, cacheBypass)
		return e.next.Invoke(ctx, normalized)
	}

	key, err := CacheKey(normalized)
	if err != nil {
		return nil, err
	}

	if result, ok := e.lookup(ctx, normalized.Name, key); ok {
		return result, nil
	}

	v, err, shared := e.group.Do(key, func() (any, error) {
		result, err := e.next.Invoke(ctx, normalized)
		if err != nil {
			return nil, err
		}
		if _, ok := result.(Success); ok {
			e.save(ctx, key, result, ttl)
		}
		return flightResult{result: result}, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.DebugContext(ctx, "Shared in-flight tool call", "tool", normalized.Name)
	}
	return v.(flightResult).result, nil
}

func (e *CachedExecutor) lookup(ctx context.Context, tool, key string) (ToolResult, bool) {
	data, ok, err := e.store.Get(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "Tool cache read failed", "tool", tool, "error", err)
		prometheus.RecordCacheLookup(tool, cacheError)
		return nil, false
	}
	if !ok {
		prometheus.RecordCacheLookup(tool, cacheMiss)
		return nil, false
	}

	result, err := DecodeResult(data)
	if err != nil {
		logger.WarnContext(ctx, "Discarding unreadable cached tool result", "tool", tool, "error", err)
		_ = e.store.Delete(ctx, key)
		prometheus.RecordCacheLookup(tool, cacheError)
		return nil, false
	}

	prometheus.RecordCacheLookup(tool, cacheHit)
	logger.DebugContext(ctx, "Tool cache hit", "tool", tool)
	return result, true
}

func (e *CachedExecutor) save(ctx context.Context, key string, result ToolResult, ttl time.Duration) {
	data, err := EncodeResult(result)
	if err != nil {
		logger.WarnContext(ctx, "Cannot encode tool result for cache", "error", err)
		return
	}
	if err := e.store.Set(ctx, key, data, ttl); err != nil {
		logger.WarnContext(ctx, "Tool cache write failed", "error", err)
	}
}
