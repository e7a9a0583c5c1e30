package geo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/text/cases"
)

// Source produces a full reference dataset, e.g. from PostGIS or from files.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
}

// Store holds the current immutable Snapshot of reference geometry. Readers
// never block; Replace swaps in a new snapshot atomically.
type Store struct {
	metric  Metric
	source  Source
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	mu      sync.Mutex
}

// NewStore returns a store with an empty snapshot. A nil metric means Sphere.
func NewStore(src Source, m Metric) *Store {
	if m == nil {
		m = Sphere{}
	}
	s := &Store{metric: m, source: src}
	s.current.Store(buildSnapshot(0, &Dataset{}, m))
	return s
}

// Load pulls a dataset from the configured source and installs it.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	if s.source == nil {
		return nil, fmt.Errorf("geo store: no source configured")
	}
	ds, err := s.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("geo store: load: %w", err)
	}
	return s.Replace(ds)
}

// Replace validates ds and makes it the current snapshot. On error the
// previous snapshot stays in place.
func (s *Store) Replace(ds *Dataset) (*Snapshot, error) {
	if ds == nil {
		ds = &Dataset{}
	}
	if err := ds.Check(); err != nil {
		return nil, fmt.Errorf("geo store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := buildSnapshot(s.version.Add(1), ds, s.metric)
	s.current.Store(snap)
	return snap, nil
}

func (s *Store) Snapshot() *Snapshot { return s.current.Load() }

func (s *Store) Metric() Metric { return s.metric }

// Snapshot is one immutable generation of reference data. Version counts
// reloads within this process; Digest identifies the content and is stable
// across processes.
type Snapshot struct {
	Version  uint64
	Digest   string
	LoadedAt time.Time

	metric    Metric
	districts []District
	byName    map[string]int
	byFold    map[string]int

	shops    []Shop
	stops    []BusStop
	routes   []Route
	shopIdx  *index
	stopIdx  *index
	routeIdx *index
}

func buildSnapshot(version uint64, ds *Dataset, m Metric) *Snapshot {
	snap := &Snapshot{
		Version:  version,
		Digest:   digest(ds),
		LoadedAt: time.Now().UTC(),
		metric:   m,
		byName:   make(map[string]int, len(ds.Districts)),
		byFold:   make(map[string]int, len(ds.Districts)),
	}

	snap.districts = append([]District(nil), ds.Districts...)
	sort.Slice(snap.districts, func(i, j int) bool { return snap.districts[i].Name < snap.districts[j].Name })
	for i, d := range snap.districts {
		snap.byName[d.Name] = i
		snap.byFold[foldName(d.Name)] = i
	}

	snap.shops = append([]Shop(nil), ds.Shops...)
	bounds := make([]orb.Bound, len(snap.shops))
	for i, sh := range snap.shops {
		bounds[i] = sh.Point.Bound()
	}
	snap.shopIdx = newIndex(bounds)

	snap.stops = append([]BusStop(nil), ds.BusStops...)
	bounds = make([]orb.Bound, len(snap.stops))
	for i, st := range snap.stops {
		bounds[i] = st.Point.Bound()
	}
	snap.stopIdx = newIndex(bounds)

	snap.routes = append([]Route(nil), ds.Routes...)
	bounds = make([]orb.Bound, len(snap.routes))
	for i, r := range snap.routes {
		bounds[i] = r.Line.Bound()
	}
	snap.routeIdx = newIndex(bounds)

	return snap
}

func foldName(s string) string { return cases.Fold().String(s) }

// District looks up a district by exact name.
func (s *Snapshot) District(name string) (District, bool) {
	i, ok := s.byName[name]
	if !ok {
		return District{}, false
	}
	return s.districts[i], true
}

// DistrictFold looks up a district ignoring case.
func (s *Snapshot) DistrictFold(name string) (District, bool) {
	i, ok := s.byFold[foldName(name)]
	if !ok {
		return District{}, false
	}
	return s.districts[i], true
}

// Districts returns all districts sorted by name.
func (s *Snapshot) Districts() []District { return s.districts }

func (s *Snapshot) Counts() Counts {
	return Counts{
		Districts: len(s.districts),
		Shops:     len(s.shops),
		BusStops:  len(s.stops),
		Routes:    len(s.routes),
	}
}

// Contains reports whether p lies inside or on the boundary of district d.
func (s *Snapshot) Contains(d District, p orb.Point) bool {
	return s.metric.Contains(d.Boundary, p)
}

// Hit is one feature found by Within.
type Hit struct {
	ID       int64
	Name     string
	Category string
	Distance float64
}

// Within returns every feature of kind within radius meters of p, nearest
// first. Ties keep name order so results are stable across calls.
func (s *Snapshot) Within(kind Kind, p orb.Point, radius float64) []Hit {
	var hits []Hit
	s.scan(kind, p, radius, func(h Hit) bool {
		hits = append(hits, h)
		return true
	})
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Name < hits[j].Name
	})
	return hits
}

// Any reports whether at least one feature of kind lies within radius meters
// of p. It stops at the first match.
func (s *Snapshot) Any(kind Kind, p orb.Point, radius float64) bool {
	found := false
	s.scan(kind, p, radius, func(Hit) bool {
		found = true
		return false
	})
	return found
}

func (s *Snapshot) scan(kind Kind, p orb.Point, radius float64, yield func(Hit) bool) {
	if !(radius > 0) {
		return
	}
	switch kind {
	case KindShop:
		for _, i := range s.shopIdx.near(p, radius) {
			sh := s.shops[i]
			d := s.metric.Distance(p, sh.Point)
			if d <= radius && !yield(Hit{ID: sh.ID, Name: sh.Name, Category: sh.Category, Distance: d}) {
				return
			}
		}
	case KindBusStop:
		for _, i := range s.stopIdx.near(p, radius) {
			st := s.stops[i]
			d := s.metric.Distance(p, st.Point)
			if d <= radius && !yield(Hit{ID: st.ID, Name: st.Name, Distance: d}) {
				return
			}
		}
	case KindRoute:
		for _, i := range s.routeIdx.near(p, radius) {
			r := s.routes[i]
			if !s.metric.DistanceWithin(p, r.Line, radius) {
				continue
			}
			if !yield(Hit{ID: r.ID, Name: r.RouteLongName, Distance: s.metric.Distance(p, r.Line)}) {
				return
			}
		}
	}
}
