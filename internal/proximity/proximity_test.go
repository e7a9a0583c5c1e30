package proximity

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/openrentals/rentals-backend/internal/cache"
	"github.com/openrentals/rentals-backend/internal/geo"
)

var origin = orb.Point{36.8219, -1.2921}

func east(p orb.Point, meters float64) orb.Point {
	return orb.Point{p.Lon() + meters/(geo.EarthRadius*math.Cos(p.Lat()*math.Pi/180))*180/math.Pi, p.Lat()}
}

func north(p orb.Point, meters float64) orb.Point {
	return orb.Point{p.Lon(), p.Lat() + meters/geo.EarthRadius*180/math.Pi}
}

// meridianAt is a north-south line passing meters east of p.
func meridianAt(p orb.Point, meters float64) orb.LineString {
	x := east(p, meters)
	return orb.LineString{north(x, -200), north(x, 200)}
}

func newStore(t *testing.T, ds *geo.Dataset) *geo.Store {
	t.Helper()
	s := geo.NewStore(nil, nil)
	_, err := s.Replace(ds)
	require.NoError(t, err)
	return s
}

// Shop at 80 m, nearest bus stop at 50 m.
func andFixture(t *testing.T) *geo.Store {
	return newStore(t, &geo.Dataset{
		Shops:    []geo.Shop{{ID: 1, Name: "Duka", Category: "kiosk", Point: east(origin, 80)}},
		BusStops: []geo.BusStop{{ID: 1, Name: "Stage", Point: north(origin, 50)}},
	})
}

func TestFilterConjunction(t *testing.T) {
	snap := andFixture(t).Snapshot()

	tight := Compile([]Constraint{{Kind: geo.KindShop, Radius: 100}, {Kind: geo.KindBusStop, Radius: 30}})
	assert.False(t, tight.Match(snap, origin), "bus stop is 50 m away")

	loose := Compile([]Constraint{{Kind: geo.KindShop, Radius: 100}, {Kind: geo.KindBusStop, Radius: 60}})
	assert.True(t, loose.Match(snap, origin))

	assert.True(t, Compile(nil).Match(snap, origin), "no constraints matches everything")
}

func TestFilterSameKindTwice(t *testing.T) {
	snap := andFixture(t).Snapshot()

	both := Compile([]Constraint{{Kind: geo.KindShop, Radius: 100}, {Kind: geo.KindShop, Radius: 10}})
	assert.False(t, both.Match(snap, origin), "each constraint is evaluated on its own")

	wide := Compile([]Constraint{{Kind: geo.KindShop, Radius: 100}, {Kind: geo.KindShop, Radius: 90}})
	assert.True(t, wide.Match(snap, origin))
}

func TestCompileDropsInvalid(t *testing.T) {
	f := Compile([]Constraint{
		{Kind: geo.KindShop, Radius: 0},
		{Kind: geo.KindShop, Radius: -5},
		{Kind: "park", Radius: 10},
		{Kind: geo.KindRoute, Radius: math.Inf(1)},
		{Kind: geo.KindRoute, Radius: 25},
	})
	assert.Equal(t, []Constraint{{Kind: geo.KindRoute, Radius: 25}}, f.Constraints())
}

func TestParseConstraints(t *testing.T) {
	q := url.Values{
		"poi_type":   {"shop", "bus_stop", "shops", "", "park"},
		"poi_radius": {"abc", "60", "100", "10", "10"},
	}
	got := ParseConstraints(q)
	assert.Equal(t, []Constraint{
		{Kind: geo.KindBusStop, Radius: 60},
		{Kind: geo.KindShop, Radius: 100},
	}, got)

	mismatched := url.Values{"poi_type": {"shop", "route"}, "poi_radius": {"100"}}
	assert.Empty(t, ParseConstraints(mismatched))
	assert.Empty(t, ParseConstraints(url.Values{}))
}

func TestMalformedRadiusOnlySkipsThatPair(t *testing.T) {
	store := andFixture(t)
	q := url.Values{"poi_type": {"shop", "bus_stop"}, "poi_radius": {"abc", "60"}}
	cs := ParseConstraints(q)

	assert.True(t, Compile(cs).Match(store.Snapshot(), origin))

	got := NewResolver(store, nil).Resolve(context.Background(), origin, cs)
	assert.NotContains(t, got, "shops")
	assert.Contains(t, got, "bus_stops")
}

func TestResolveRouteDedup(t *testing.T) {
	store := newStore(t, &geo.Dataset{Routes: []geo.Route{
		{ID: 1, RouteLongName: "R1", Line: orb.MultiLineString{meridianAt(origin, 45)}},
		{ID: 2, RouteLongName: "R1", Line: orb.MultiLineString{meridianAt(origin, -20)}},
		{ID: 3, RouteLongName: "R2", Line: orb.MultiLineString{meridianAt(origin, 30)}},
		{ID: 4, RouteLongName: "", Line: orb.MultiLineString{meridianAt(origin, 40)}},
		{ID: 5, RouteLongName: "Far", Line: orb.MultiLineString{meridianAt(origin, 500)}},
	}})

	got := NewResolver(store, nil).Resolve(context.Background(), origin,
		[]Constraint{{Kind: geo.KindRoute, Radius: 50}})

	require.Contains(t, got, "routes")
	assert.Equal(t, []NearbyPOI{
		{Name: "R1", Distance: 20},
		{Name: "R2", Distance: 30},
		{Name: "N/A", Distance: 40},
	}, got["routes"])
}

func TestResolveShopsAndStops(t *testing.T) {
	store := newStore(t, &geo.Dataset{
		Shops: []geo.Shop{
			{ID: 1, Name: "Far", Category: "bakery", Point: east(origin, 150)},
			{ID: 2, Name: "", Category: "", Point: east(origin, 12.3456)},
			{ID: 3, Name: "Duka", Category: "kiosk", Point: north(origin, 80)},
		},
		BusStops: []geo.BusStop{{ID: 1, Name: "Stage", Point: north(origin, 50)}},
	})

	got := NewResolver(store, nil).Resolve(context.Background(), origin, []Constraint{
		{Kind: geo.KindShop, Radius: 100},
		{Kind: geo.KindBusStop, Radius: 10},
	})

	assert.Equal(t, map[string][]NearbyPOI{
		"shops": {
			{Name: "N/A", Category: "N/A", Distance: 12.35},
			{Name: "Duka", Category: "kiosk", Distance: 80},
		},
	}, got, "empty categories are omitted")
}

func TestResolveLaterListWins(t *testing.T) {
	store := andFixture(t)
	got := NewResolver(store, nil).Resolve(context.Background(), origin, []Constraint{
		{Kind: geo.KindShop, Radius: 100},
		{Kind: geo.KindShop, Radius: 10},
	})
	require.Len(t, got["shops"], 1, "an empty later list does not replace an earlier one")

	store = newStore(t, &geo.Dataset{Shops: []geo.Shop{
		{ID: 1, Name: "A", Point: east(origin, 5)},
		{ID: 2, Name: "B", Point: east(origin, 70)},
	}})
	got = NewResolver(store, nil).Resolve(context.Background(), origin, []Constraint{
		{Kind: geo.KindShop, Radius: 100},
		{Kind: geo.KindShop, Radius: 10},
	})
	assert.Len(t, got["shops"], 1)
}

func TestResolveNoRequests(t *testing.T) {
	got := NewResolver(andFixture(t), nil).Resolve(context.Background(), origin, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestResolveCached(t *testing.T) {
	store := andFixture(t)
	lru, err := cache.NewLRU(16)
	require.NoError(t, err)
	r := NewResolver(store, lru)
	reqs := []Constraint{{Kind: geo.KindShop, Radius: 100}}

	first := r.Resolve(context.Background(), origin, reqs)
	assert.Equal(t, 1, lru.Len())
	second := r.Resolve(context.Background(), origin, reqs)
	assert.Equal(t, first, second)

	// New content gets a new digest, so the old entry is not reused.
	_, err = store.Replace(&geo.Dataset{})
	require.NoError(t, err)
	assert.Empty(t, r.Resolve(context.Background(), origin, reqs))
	assert.Equal(t, 2, lru.Len())
}

func TestResolveSharedCacheAcrossStores(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	ctx := context.Background()
	shared := func() cache.Cache {
		rc, err := cache.NewRedis(ctx, mr.Addr(), time.Minute)
		require.NoError(t, err)
		t.Cleanup(func() { _ = rc.Close() })
		return rc
	}
	reqs := []Constraint{{Kind: geo.KindShop, Radius: 100}}

	// Both stores are at version 1 but hold different data.
	withShop := andFixture(t)
	empty := newStore(t, &geo.Dataset{})
	require.Equal(t, withShop.Snapshot().Version, empty.Snapshot().Version)

	first := NewResolver(withShop, shared()).Resolve(ctx, origin, reqs)
	require.Len(t, first["shops"], 1)

	assert.Empty(t, NewResolver(empty, shared()).Resolve(ctx, origin, reqs))

	// Same data in another process reuses the entry.
	again := NewResolver(andFixture(t), shared()).Resolve(ctx, origin, reqs)
	assert.Equal(t, first, again)
	assert.Len(t, mr.Keys(), 2)
}

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test dbname=test sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return gdb
}

type listing struct {
	ID uint
}

func (listing) TableName() string { return "rentals.buildings" }

func TestFilterScopeSQL(t *testing.T) {
	f := Compile([]Constraint{{Kind: geo.KindShop, Radius: 100}, {Kind: geo.KindShop, Radius: 10}, {Kind: geo.KindRoute, Radius: 60}})

	var rows []listing
	stmt := dryRunDB(t).Model(&listing{}).Scopes(f.Scope("rentals.buildings.location")).Find(&rows).Statement
	sql := stmt.SQL.String()

	assert.Equal(t, 3, strings.Count(sql, "EXISTS (SELECT 1 FROM"))
	assert.Contains(t, sql, "FROM rentals.shops AS poi_0 WHERE ST_DWithin(poi_0.geometry, rentals.buildings.location, $1, false)")
	assert.Contains(t, sql, "FROM rentals.shops AS poi_1 WHERE ST_DWithin(poi_1.geometry, rentals.buildings.location, $2, false)")
	assert.Contains(t, sql, "FROM rentals.routes AS poi_2")
	assert.Equal(t, []interface{}{100.0, 10.0, 60.0}, stmt.Vars)

	var plain []listing
	stmt = dryRunDB(t).Model(&listing{}).Scopes(Compile(nil).Scope("location")).Find(&plain).Statement
	assert.NotContains(t, stmt.SQL.String(), "EXISTS")
}

func TestNearbyHandler(t *testing.T) {
	h := &Handler{Resolver: NewResolver(andFixture(t), nil)}
	srv := httptest.NewServer(h.SetupRoutes())
	defer srv.Close()

	q := url.Values{
		"location":   {geo.FormatCoordinate(origin)},
		"poi_type":   {"bus_stop"},
		"poi_radius": {"60"},
	}
	resp, err := http.Get(srv.URL + "/nearby?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body NearbyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "-1.2921,36.8219", body.Location)
	assert.Equal(t, []NearbyPOI{{Name: "Stage", Distance: 50}}, body.NearbyPOIs["bus_stops"])

	bad, err := http.Get(srv.URL + "/nearby?location=95,0")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}
