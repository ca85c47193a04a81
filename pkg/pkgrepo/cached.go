package pkgrepo

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/fsmtools/fsm/pkg/cache"
	"github.com/fsmtools/fsm/pkg/pkg"
)

const listKey = "packages"

// CachedSource memoizes a source's package listing through a [cache.Cache].
// Listings are the expensive part of indexing remote repositories; artifact
// fetches pass through untouched.
type CachedSource struct {
	inner Source
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedSource wraps a source with a cache scoped to the source's name.
func NewCachedSource(inner Source, c cache.Cache, ttl time.Duration) *CachedSource {
	return &CachedSource{
		inner: inner,
		cache: cache.NewScoped(c, "pkgrepo:"+inner.Name()),
		ttl:   ttl,
	}
}

func (s *CachedSource) Name() string   { return s.inner.Name() }
func (s *CachedSource) Format() string { return s.inner.Format() }
func (s *CachedSource) Priority() int  { return s.inner.Priority() }

// ListPackages returns the cached listing when fresh, otherwise lists from
// the inner source and refreshes the cache. Cache failures degrade to a
// direct listing; they never fail the index.
func (s *CachedSource) ListPackages(ctx context.Context) ([]Record, error) {
	if data, hit, err := s.cache.Get(ctx, listKey); err == nil && hit {
		var records []Record
		if err := json.Unmarshal(data, &records); err == nil {
			return records, nil
		}
		// Corrupt entry: drop it and fall through to the source.
		_ = s.cache.Delete(ctx, listKey)
	}

	records, err := s.inner.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(records); err == nil {
		_ = s.cache.Set(ctx, listKey, data, s.ttl)
	}
	return records, nil
}

// Fetch delegates to the inner source.
func (s *CachedSource) Fetch(ctx context.Context, id pkg.ID) (io.ReadCloser, error) {
	return s.inner.Fetch(ctx, id)
}

var _ Source = (*CachedSource)(nil)
