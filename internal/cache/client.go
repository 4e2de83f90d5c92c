package cache

import (
	"context"
	"time"

	"github.com/sppmon/sppmon/internal/obslog"
	"github.com/sppmon/sppmon/internal/tsdb"
)

// CachedClient decorates a tsdb.Client, read-through caching its
// ListRPs/ListCQs results so repeated reconcile passes within the TTL
// window skip the round trip to the TSDB. RP/CQ mutations (CreateRP,
// AlterRP, DropRP, CreateCQ, DropCQ) pass through and then invalidate the
// relevant cache entry so the next read observes the change; every other
// method (writes, queries) passes straight through.
type CachedClient struct {
	tsdb.Client
	cache *Cache
}

// Wrap returns a tsdb.Client backed by inner with cache in front of its
// schema reads.
func Wrap(inner tsdb.Client, cache *Cache) tsdb.Client {
	return &CachedClient{Client: inner, cache: cache}
}

func (c *CachedClient) ListRPs(ctx context.Context, db string) ([]tsdb.RPSpec, error) {
	var cached []tsdb.RPSpec
	if hit, err := c.cache.Get(ctx, RPsKey(db), &cached); err == nil && hit {
		return cached, nil
	} else if err != nil {
		obslog.Log.WithError(err).Warn("cache: ListRPs read-through failed, falling back to live query")
	}

	live, err := c.Client.ListRPs(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, RPsKey(db), live); err != nil {
		obslog.Log.WithError(err).Warn("cache: failed to populate ListRPs cache entry")
	}
	return live, nil
}

func (c *CachedClient) ListCQs(ctx context.Context, db string) (map[string]string, error) {
	var cached map[string]string
	if hit, err := c.cache.Get(ctx, CQsKey(db), &cached); err == nil && hit {
		return cached, nil
	} else if err != nil {
		obslog.Log.WithError(err).Warn("cache: ListCQs read-through failed, falling back to live query")
	}

	live, err := c.Client.ListCQs(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, CQsKey(db), live); err != nil {
		obslog.Log.WithError(err).Warn("cache: failed to populate ListCQs cache entry")
	}
	return live, nil
}

func (c *CachedClient) CreateRP(ctx context.Context, db string, rp tsdb.RPSpec) error {
	if err := c.Client.CreateRP(ctx, db, rp); err != nil {
		return err
	}
	return c.cache.Invalidate(ctx, RPsKey(db))
}

func (c *CachedClient) AlterRP(ctx context.Context, db string, rp tsdb.RPSpec) error {
	if err := c.Client.AlterRP(ctx, db, rp); err != nil {
		return err
	}
	return c.cache.Invalidate(ctx, RPsKey(db))
}

func (c *CachedClient) DropRP(ctx context.Context, db, name string) error {
	if err := c.Client.DropRP(ctx, db, name); err != nil {
		return err
	}
	return c.cache.Invalidate(ctx, RPsKey(db))
}

func (c *CachedClient) CreateCQ(ctx context.Context, db, name, statement string) error {
	if err := c.Client.CreateCQ(ctx, db, name, statement); err != nil {
		return err
	}
	return c.cache.Invalidate(ctx, CQsKey(db))
}

func (c *CachedClient) DropCQ(ctx context.Context, db, name string) error {
	if err := c.Client.DropCQ(ctx, db, name); err != nil {
		return err
	}
	return c.cache.Invalidate(ctx, CQsKey(db))
}

func (c *CachedClient) WithTimeout(d time.Duration) tsdb.Client {
	return &CachedClient{Client: c.Client.WithTimeout(d), cache: c.cache}
}

var _ tsdb.Client = (*CachedClient)(nil)
