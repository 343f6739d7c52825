package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/narvanalabs/travel-buddy/internal/models"
)

// TripLister fetches the user's trips.
type TripLister interface {
	MyTrips(ctx context.Context) ([]*models.Trip, error)
}

// TripCache provides thread-safe caching of the user's trip list.
// Reads hand out clones, so callers can never mutate cached state.
type TripCache struct {
	mu          sync.RWMutex
	trips       []*models.Trip
	lastFetched time.Time
	ttl         time.Duration
	now         func() time.Time

	// gen counts Invalidate and Apply calls so a fetch that raced one is not stored.
	gen     uint64
	fetches singleflight.Group
}

// DefaultTripCacheTTL is the default time-to-live for the cached trip list.
const DefaultTripCacheTTL = time.Minute

// NewTripCache creates a new trip cache with the specified TTL.
func NewTripCache(ttl time.Duration) *TripCache {
	if ttl <= 0 {
		ttl = DefaultTripCacheTTL
	}
	return &TripCache{
		ttl: ttl,
		now: time.Now,
	}
}

func (tc *TripCache) fresh() bool {
	return tc.trips != nil && !tc.lastFetched.IsZero() && tc.now().Sub(tc.lastFetched) < tc.ttl
}

// Get retrieves the cached trips, fetching from the backend if stale or not cached.
// Concurrent misses share one fetch. The lock is never held across the
// request: a failed token refresh signs the user out, and the logout hooks
// invalidate this cache.
func (tc *TripCache) Get(ctx context.Context, lister TripLister) ([]*models.Trip, error) {
	tc.mu.RLock()
	if tc.fresh() {
		trips := cloneTrips(tc.trips)
		tc.mu.RUnlock()
		return trips, nil
	}
	gen := tc.gen
	tc.mu.RUnlock()

	v, err, _ := tc.fetches.Do("my-trips", func() (interface{}, error) {
		trips, err := lister.MyTrips(ctx)

		tc.mu.Lock()
		defer tc.mu.Unlock()
		if err != nil {
			// A stale list is better than none; an invalidated list is never served.
			if tc.trips != nil {
				return cloneTrips(tc.trips), nil
			}
			return nil, err
		}
		if trips == nil {
			trips = []*models.Trip{}
		}
		// An Invalidate or Apply during the fetch wins over what it returned.
		if tc.gen == gen {
			tc.trips = cloneTrips(trips)
			tc.lastFetched = tc.now()
		}
		return trips, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneTrips(v.([]*models.Trip)), nil
}

// Refresh forces a re-fetch regardless of TTL.
func (tc *TripCache) Refresh(ctx context.Context, lister TripLister) ([]*models.Trip, error) {
	tc.Invalidate()
	return tc.Get(ctx, lister)
}

// Find returns a cached trip without fetching.
func (tc *TripCache) Find(tripID int64) (*models.Trip, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	for _, t := range tc.trips {
		if t.ID == tripID {
			return t.Clone(), true
		}
	}
	return nil, false
}

// Apply mutates the cached list with a server-acknowledged transition and
// marks it stale so the next Get re-fetches. It does nothing when nothing is cached.
func (tc *TripCache) Apply(fn func(trips []*models.Trip) []*models.Trip) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.trips == nil {
		return
	}
	tc.trips = fn(tc.trips)
	tc.lastFetched = time.Time{}
	tc.gen++
}

// Invalidate clears the cached trips, forcing a full refresh on next access.
func (tc *TripCache) Invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.trips = nil
	tc.lastFetched = time.Time{}
	tc.gen++
}

// Cached reports whether any trip list is held, fresh or stale.
func (tc *TripCache) Cached() bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.trips != nil
}

func cloneTrips(trips []*models.Trip) []*models.Trip {
	out := make([]*models.Trip, len(trips))
	for i, t := range trips {
		out[i] = t.Clone()
	}
	return out
}
