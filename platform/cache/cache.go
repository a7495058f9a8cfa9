// Package cache purges tenant-application cache entries when the retention
// engine deletes a collection, so stale subdomain lookups don't outlive the
// data they point at.
package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Purger removes the cache keys associated with a collection slug.
type Purger struct {
	client *redis.Client
}

// NewPurger connects to Redis using a URL (redis://host:port/db).
func NewPurger(url string) (*Purger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Purger{client: redis.NewClient(opts)}, nil
}

// Purge deletes the per-collection object and subdomain-existence keys.
func (p *Purger) Purge(ctx context.Context, slug string) error {
	keys := []string{
		slug + "_object",
		"subdom_tour_exists_" + slug,
		"subdom_tour_exists_" + strings.ToLower(slug),
	}
	if err := p.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("purge cache for %s: %w", slug, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *Purger) Close() error {
	return p.client.Close()
}
