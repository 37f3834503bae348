package catalog

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

type cachedRecord[T any] struct {
	value     T
	fetchedAt time.Time
}

// CachedStore wraps a ContentStore with a TTL read cache over single-record
// lookups. Concurrent misses for the same key are coalesced via
// singleflight. Writes and deletes pass through and invalidate.
type CachedStore struct {
	ContentStore
	ttl     time.Duration
	vendors *lru.Cache[string, cachedRecord[*Vendor]]
	studios *lru.Cache[string, cachedRecord[*Studio]]
	sf      singleflight.Group
}

// NewCachedStore wraps inner with an LRU read cache of the given size and
// entry TTL.
func NewCachedStore(inner ContentStore, size int, ttl time.Duration) (*CachedStore, error) {
	if size <= 0 {
		size = 256
	}
	vendors, err := lru.New[string, cachedRecord[*Vendor]](size)
	if err != nil {
		return nil, err
	}
	studios, err := lru.New[string, cachedRecord[*Studio]](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{
		ContentStore: inner,
		ttl:          ttl,
		vendors:      vendors,
		studios:      studios,
	}, nil
}

func (c *CachedStore) GetVendor(ctx context.Context, id string) (*Vendor, error) {
	if entry, ok := c.vendors.Get(id); ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.value, nil
	}
	result, err, _ := c.sf.Do("vendor:"+id, func() (any, error) {
		v, err := c.ContentStore.GetVendor(ctx, id)
		if err != nil {
			return nil, err
		}
		c.vendors.Add(id, cachedRecord[*Vendor]{value: v, fetchedAt: time.Now()})
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Vendor), nil
}

func (c *CachedStore) SaveVendor(ctx context.Context, v *Vendor) (*Vendor, error) {
	saved, err := c.ContentStore.SaveVendor(ctx, v)
	if err != nil {
		return nil, err
	}
	c.vendors.Remove(saved.ID)
	return saved, nil
}

func (c *CachedStore) DeleteVendor(ctx context.Context, id string) error {
	if err := c.ContentStore.DeleteVendor(ctx, id); err != nil {
		return err
	}
	c.vendors.Remove(id)
	return nil
}

func (c *CachedStore) GetStudio(ctx context.Context, id string) (*Studio, error) {
	if entry, ok := c.studios.Get(id); ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.value, nil
	}
	result, err, _ := c.sf.Do("studio:"+id, func() (any, error) {
		s, err := c.ContentStore.GetStudio(ctx, id)
		if err != nil {
			return nil, err
		}
		c.studios.Add(id, cachedRecord[*Studio]{value: s, fetchedAt: time.Now()})
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Studio), nil
}

func (c *CachedStore) SaveStudio(ctx context.Context, s *Studio) (*Studio, error) {
	saved, err := c.ContentStore.SaveStudio(ctx, s)
	if err != nil {
		return nil, err
	}
	c.studios.Remove(saved.ID)
	return saved, nil
}

func (c *CachedStore) DeleteStudio(ctx context.Context, id string) error {
	if err := c.ContentStore.DeleteStudio(ctx, id); err != nil {
		return err
	}
	c.studios.Remove(id)
	return nil
}
