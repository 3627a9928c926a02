// Package cache provides the injectable key/value caches used for routing decisions and query plans.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client is a byte-oriented cache with per-entry TTL.
// Implementations must be safe for concurrent use.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// Key joins key components with ":".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// QueryKey returns namespace:sha256(normalized query). Normalization lower-cases,
// trims and collapses whitespace so trivially different spellings share an entry.
func QueryKey(namespace, query string) string {
	return hashKey(namespace, strings.ToLower(query))
}

// QueryKeyExact is QueryKey without case folding, for consumers whose output depends
// on letter case (upper-case state codes, all-caps firm names).
func QueryKeyExact(namespace, query string) string {
	return hashKey(namespace, query)
}

func hashKey(namespace, query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	sum := sha256.Sum256([]byte(normalized))
	return Key(namespace, hex.EncodeToString(sum[:]))
}

// GetJSON loads key into dst. A nil client always misses.
func GetJSON(ctx context.Context, c Client, key string, dst any) error {
	if c == nil {
		return ErrCacheMiss
	}
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode cached %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v under key. A nil client is a no-op.
func SetJSON(ctx context.Context, c Client, key string, v any, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}
