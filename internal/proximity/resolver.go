package proximity

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/openrentals/rentals-backend/internal/cache"
	"github.com/openrentals/rentals-backend/internal/geo"
	"github.com/openrentals/rentals-backend/internal/logger"
	"github.com/openrentals/rentals-backend/internal/metrics"
	"github.com/paulmach/orb"
)

const missing = "N/A"

type NearbyPOI struct {
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Distance float64 `json:"distance_meters"`
}

// Resolver lists the POIs around a single location.
type Resolver struct {
	store *geo.Store
	cache cache.Cache
}

// NewResolver builds a resolver. c may be nil to disable caching.
func NewResolver(store *geo.Store, c cache.Cache) *Resolver {
	return &Resolver{store: store, cache: c}
}

// Resolve runs every request independently against the current snapshot.
// Results are keyed by the plural category name; categories with no hits are
// left out, and when two requests share a category the later non-empty list
// wins.
func (r *Resolver) Resolve(ctx context.Context, p orb.Point, reqs []Constraint) map[string][]NearbyPOI {
	out := map[string][]NearbyPOI{}
	if len(reqs) == 0 {
		return out
	}

	start := time.Now()
	defer func() { metrics.ObserveResolve(time.Since(start)) }()

	snap := r.store.Snapshot()
	for _, c := range reqs {
		if !c.Valid() {
			continue
		}
		if list := r.lookup(ctx, snap, p, c); len(list) > 0 {
			out[c.Kind.Plural()] = list
		}
	}
	return out
}

func (r *Resolver) lookup(ctx context.Context, snap *geo.Snapshot, p orb.Point, c Constraint) []NearbyPOI {
	if r.cache == nil {
		return project(c.Kind, snap.Within(c.Kind, p, c.Radius))
	}

	key := cacheKey(snap.Digest, p, c)
	if b, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		var list []NearbyPOI
		if err := json.Unmarshal(b, &list); err == nil {
			metrics.CacheResult("hit")
			return list
		}
	} else if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("key", key).Msg("nearby cache read failed")
	}
	metrics.CacheResult("miss")

	list := project(c.Kind, snap.Within(c.Kind, p, c.Radius))
	if b, err := json.Marshal(list); err == nil {
		if err := r.cache.Set(ctx, key, b); err != nil {
			logger.FromContext(ctx).Warn().Err(err).Str("key", key).Msg("nearby cache write failed")
		}
	}
	return list
}

// project turns sorted hits into response rows. Routes keep only the nearest
// occurrence of each long name.
func project(kind geo.Kind, hits []geo.Hit) []NearbyPOI {
	out := make([]NearbyPOI, 0, len(hits))
	seen := map[string]bool{}
	for _, h := range hits {
		row := NearbyPOI{Name: orMissing(h.Name), Distance: round2(h.Distance)}
		switch kind {
		case geo.KindShop:
			row.Category = orMissing(h.Category)
		case geo.KindRoute:
			if seen[h.Name] {
				continue
			}
			seen[h.Name] = true
		}
		out = append(out, row)
	}
	return out
}

// cacheKey is scoped by the snapshot digest, so entries written for other
// data (an older load, or another instance) are never read back.
func cacheKey(digest string, p orb.Point, c Constraint) string {
	return fmt.Sprintf("nearby:%s:%s:%s:%s:%s", digest,
		strconv.FormatFloat(p.Lon(), 'g', -1, 64),
		strconv.FormatFloat(p.Lat(), 'g', -1, 64),
		c.Kind,
		strconv.FormatFloat(c.Radius, 'g', -1, 64))
}

func orMissing(s string) string {
	if s == "" {
		return missing
	}
	return s
}

func round2(d float64) float64 { return math.Round(d*100) / 100 }
