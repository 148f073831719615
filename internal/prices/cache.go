// Package prices resolves daily USD close prices for ETH and token
// contracts from the explorer stats API, with a pluggable cache so a
// re-run never refetches a day it has already priced.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

// Cache stores daily prices keyed by Key(). Implementations must be safe
// for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, bool, error)
	Put(ctx context.Context, key string, price decimal.Decimal) error
	Close() error
}

// Key builds the cache key for a contract (empty for the native
// currency) and a day.
func Key(contract string, day time.Time) string {
	date := day.UTC().Format("2006-01-02")
	if contract == "" {
		return "eth_" + date
	}
	return models.NormalizeAddress(contract) + "_" + date
}

// FileCache is a JSON-file-backed price cache: a flat map of key to
// decimal string, written back on Close.
type FileCache struct {
	path string

	mu     sync.Mutex
	prices map[string]string
	dirty  bool
}

// OpenFileCache loads the cache file at path. A missing or unreadable
// file yields an empty cache rather than an error.
func OpenFileCache(path string) *FileCache {
	c := &FileCache{path: path, prices: make(map[string]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	_ = json.Unmarshal(data, &c.prices)
	return c
}

// Get returns the cached price for key, if any.
func (c *FileCache) Get(_ context.Context, key string) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	s, ok := c.prices[key]
	c.mu.Unlock()
	if !ok {
		return decimal.Zero, false, nil
	}
	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt cached price for %s: %w", key, err)
	}
	return price, true, nil
}

// Put stores a price for key.
func (c *FileCache) Put(_ context.Context, key string, price decimal.Decimal) error {
	c.mu.Lock()
	c.prices[key] = price.String()
	c.dirty = true
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached prices.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prices)
}

// Close writes the cache back to disk if it changed.
func (c *FileCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	data, err := json.Marshal(c.prices)
	if err != nil {
		return fmt.Errorf("marshal price cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write price cache: %w", err)
	}
	c.dirty = false
	return nil
}
