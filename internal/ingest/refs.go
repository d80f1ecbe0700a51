package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"vidharvest/internal/catalog"
	"vidharvest/internal/metrics"
)

// RefLookup is the catalog view the resolver needs.
type RefLookup interface {
	FindRef(ctx context.Context, kind catalog.RefKind, site, name string) (*catalog.Ref, error)
}

// refResolver caches reference ids by exact kind, site and name. Misses are
// not cached so references added by a sync become visible immediately.
type refResolver struct {
	lookup  RefLookup
	cache   *expirable.LRU[string, int64]
	metrics *metrics.Collectors
}

func newRefResolver(lookup RefLookup, size int, ttl time.Duration, collectors *metrics.Collectors) *refResolver {
	if size <= 0 {
		size = 4096
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &refResolver{
		lookup:  lookup,
		cache:   expirable.NewLRU[string, int64](size, nil, ttl),
		metrics: collectors,
	}
}

func refKey(kind catalog.RefKind, site, name string) string {
	return string(kind) + "\x00" + strings.ToLower(site) + "\x00" + name
}

// Resolve returns the id of the named reference, or 0 when it is unknown.
func (r *refResolver) Resolve(ctx context.Context, kind catalog.RefKind, site, name string) (int64, error) {
	key := refKey(kind, site, name)
	if id, ok := r.cache.Get(key); ok {
		r.metrics.RefLookup(true)
		return id, nil
	}
	r.metrics.RefLookup(false)
	ref, err := r.lookup.FindRef(ctx, kind, site, name)
	if err != nil {
		return 0, err
	}
	if ref == nil {
		return 0, nil
	}
	r.cache.Add(key, ref.ID)
	return ref.ID, nil
}

// Purge drops every cached id.
func (r *refResolver) Purge() {
	r.cache.Purge()
}
