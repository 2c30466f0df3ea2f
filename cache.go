package vgraph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Cache is the interface for caching pull results.
// Users should implement this interface with their preferred caching solution
// (e.g., Redis, Memcached, in-memory). See contrib/rediscache for a Redis
// implementation.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies one compiled pull in the cache. The key is derived
// from the exact query text, the parameter values, and the post-query result
// shape: derived properties are computed and hidden dependencies stripped
// after the query runs, so two requests that compile to identical text can
// still produce differently shaped results and must never share an entry.
type CacheKey struct {
	Label  string // Root node type label
	Query  string // Compiled query text
	Shape  string // Post-query shape: derived selections, hidden fields, active flags
	Params map[string]any
}

// String returns the string representation of the cache key. Parameters are
// folded in sorted order so the key is deterministic.
func (k CacheKey) String() string {
	var sb strings.Builder
	sb.WriteString(k.Query)
	sb.WriteString("\x00")
	sb.WriteString(k.Shape)
	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "|%s=%v", name, k.Params[name])
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return "vgraph:pull:" + k.Label + ":" + hex.EncodeToString(sum[:16])
}
