package grants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vantage-dg/vantage/internal/access"
)

const catalogCacheKey = "access:catalog"

// CatalogCache keeps a warmed copy of the role catalog in Redis so catalog
// reads survive short database outages and the worker can pre-warm after
// mutations.
type CatalogCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCatalogCache constructs a cache with the given entry lifetime.
func NewCatalogCache(client *redis.Client, ttl time.Duration) *CatalogCache {
	return &CatalogCache{client: client, ttl: ttl}
}

// Get returns the cached catalog, or ok=false on miss.
func (c *CatalogCache) Get(ctx context.Context) ([]access.Role, bool) {
	data, err := c.client.Get(ctx, catalogCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	var catalog []access.Role
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, false
	}
	return catalog, true
}

// Set stores the catalog snapshot.
func (c *CatalogCache) Set(ctx context.Context, catalog []access.Role) error {
	data, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("grants: encode catalog: %w", err)
	}
	if err := c.client.Set(ctx, catalogCacheKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("grants: cache catalog: %w", err)
	}
	return nil
}

// Invalidate drops the cached snapshot.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, catalogCacheKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("grants: invalidate catalog: %w", err)
	}
	return nil
}

// Warmer re-reads the catalog from the database and refreshes the cache.
// It implements the background worker's catalog-refresh contract.
type Warmer struct {
	service *Service
}

// NewWarmer builds Warmer instance.
func NewWarmer(service *Service) *Warmer {
	return &Warmer{service: service}
}

// RefreshCatalogs re-warms the cached catalog snapshot from the database.
func (w *Warmer) RefreshCatalogs(ctx context.Context) {
	_, _ = w.service.RebuildCatalog(ctx)
}
