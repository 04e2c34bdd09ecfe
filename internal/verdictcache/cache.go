// Package verdictcache keeps the last verdict per product for a fixed TTL.
package verdictcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/models"
)

const (
	KeyPrefix  = "reviewai_verdict_"
	DefaultTTL = 24 * time.Hour
)

// ErrMiss is returned by a Store when a key is absent.
var ErrMiss = errors.New("cache miss")

// Store is a durable string key-value store, the Go stand-in for the
// browser's per-origin localStorage.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Key returns the storage key for asin.
func Key(asin string) string { return KeyPrefix + asin }

type Cache struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func New(store Store, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, now: time.Now, logger: logger}
}

// Get returns the cached verdict for asin while it is younger than the TTL.
// Expired or unreadable entries are evicted and reported as a miss.
func (c *Cache) Get(ctx context.Context, asin string) (*models.CachedVerdict, bool) {
	key := Key(asin)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("Failed to read cached verdict", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var entry models.CachedVerdict
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("Dropping unreadable cached verdict", zap.String("key", key), zap.Error(err))
		c.evict(ctx, key)
		return nil, false
	}

	age := c.now().Sub(time.UnixMilli(entry.Timestamp))
	if age >= c.ttl {
		c.evict(ctx, key)
		return nil, false
	}
	return &entry, true
}

// Put overwrites the entry for v.ASIN.
func (c *Cache) Put(ctx context.Context, v models.Verdict) (*models.CachedVerdict, error) {
	now := c.now()
	entry := models.CachedVerdict{
		Verdict:    v,
		TimeString: now.Format("Jan 2, 3:04 PM"),
		Timestamp:  now.UnixMilli(),
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode cached verdict: %w", err)
	}
	if err := c.store.Set(ctx, Key(v.ASIN), string(b)); err != nil {
		return nil, fmt.Errorf("store cached verdict: %w", err)
	}
	return &entry, nil
}

func (c *Cache) evict(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("Failed to evict cached verdict", zap.String("key", key), zap.Error(err))
	}
}
