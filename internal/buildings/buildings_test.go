package buildings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/openrentals/rentals-backend/internal/db"
	"github.com/openrentals/rentals-backend/internal/geo"
	"github.com/openrentals/rentals-backend/internal/proximity"
	"github.com/openrentals/rentals-backend/internal/utils"
)

var origin = orb.Point{36.8219, -1.2921}

func east(p orb.Point, meters float64) orb.Point {
	return orb.Point{p.Lon() + meters/(geo.EarthRadius*math.Cos(p.Lat()*math.Pi/180))*180/math.Pi, p.Lat()}
}

func north(p orb.Point, meters float64) orb.Point {
	return orb.Point{p.Lon(), p.Lat() + meters/geo.EarthRadius*180/math.Pi}
}

// memRepo evaluates list queries in memory against a geometry snapshot.
type memRepo struct {
	store *geo.Store
	rows  []Building
}

func (m *memRepo) List(_ context.Context, q ListQuery) ([]Building, int64, error) {
	var hits []Building
	for _, b := range m.rows {
		if d := strings.TrimSpace(q.District); d != "" && !strings.EqualFold(b.DistrictName, d) {
			continue
		}
		if q.PriceMin != nil && b.RentalPrice < *q.PriceMin {
			continue
		}
		if q.PriceMax != nil && b.RentalPrice > *q.PriceMax {
			continue
		}
		if !q.Filter.Match(m.store.Snapshot(), b.Location.Geom) {
			continue
		}
		hits = append(hits, b)
	}
	slices.SortFunc(hits, func(a, b Building) int { return int(a.ID) - int(b.ID) })

	total := int64(len(hits))
	if q.Offset >= len(hits) {
		return nil, total, nil
	}
	hits = hits[q.Offset:]
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, total, nil
}

func (m *memRepo) All(context.Context) ([]Building, error) { return m.rows, nil }

func square(center orb.Point, halfDeg float64) orb.MultiPolygon {
	x, y := center.Lon(), center.Lat()
	return orb.MultiPolygon{{{
		{x - halfDeg, y - halfDeg}, {x + halfDeg, y - halfDeg},
		{x + halfDeg, y + halfDeg}, {x - halfDeg, y + halfDeg},
		{x - halfDeg, y - halfDeg},
	}}}
}

// Building 1 sits at the origin with a shop 80 m east and a stop 50 m
// north. Building 2 is 1 km east, far from both. Building 3 is in another
// district.
func fixture(t *testing.T) *memRepo {
	t.Helper()
	store := geo.NewStore(nil, nil)
	_, err := store.Replace(&geo.Dataset{
		Districts: []geo.District{
			{Name: "Westlands", County: "Nairobi", Boundary: square(origin, 0.05)},
			{Name: "Kasarani", County: "Nairobi", Boundary: square(orb.Point{36.9, -1.22}, 0.02)},
		},
		Shops:    []geo.Shop{{ID: 1, Name: "Duka", Category: "kiosk", Point: east(origin, 80)}},
		BusStops: []geo.BusStop{{ID: 1, Name: "Stage", Point: north(origin, 50)}},
	})
	require.NoError(t, err)

	return &memRepo{store: store, rows: []Building{
		{ID: 3, Title: "C", DistrictName: "Kasarani", RentalPrice: 30000, Location: db.Point{Geom: orb.Point{36.9, -1.22}}},
		{ID: 1, Title: "A", DistrictName: "Westlands", RentalPrice: 25000, Location: db.Point{Geom: origin}},
		{ID: 2, Title: "B", DistrictName: "Westlands", RentalPrice: 40000, Location: db.Point{Geom: east(origin, 1000)}},
	}}
}

func TestParseParams(t *testing.T) {
	q, _ := url.ParseQuery("district=%20Westlands%20&price_min=abc&price_max=50000&poi_type=shop&poi_radius=100&page=2&page_size=500&geojson=TRUE")
	p := ParseParams(q)

	assert.Equal(t, "Westlands", p.District)
	assert.Nil(t, p.PriceMin, "malformed bounds are ignored")
	require.NotNil(t, p.PriceMax)
	assert.Equal(t, 50000.0, *p.PriceMax)
	assert.Equal(t, []proximity.Constraint{{Kind: geo.KindShop, Radius: 100}}, p.Constraints)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, utils.MaxPageSize, p.PageSize)
	assert.True(t, p.GeoJSON)

	q, _ = url.ParseQuery("price_min=NaN")
	assert.Nil(t, ParseParams(q).PriceMin)
}

func featureIDs(page utils.Page[*geojson.Feature]) []any {
	var out []any
	for _, f := range page.Results {
		out = append(out, f.ID)
	}
	return out
}

func TestListerFiltersAndResolves(t *testing.T) {
	repo := fixture(t)
	l := &Lister{Repo: repo, Resolver: proximity.NewResolver(repo.store, nil)}

	q, _ := url.ParseQuery("poi_type=shop&poi_radius=100&poi_type=bus_stop&poi_radius=60")
	page, err := l.List(context.Background(), ParseParams(q))
	require.NoError(t, err)

	assert.Equal(t, int64(1), page.Count)
	assert.Equal(t, []any{uint(1)}, featureIDs(page))
	nearby, ok := page.Results[0].Properties["nearby_pois"].(map[string][]proximity.NearbyPOI)
	require.True(t, ok)
	assert.Equal(t, []proximity.NearbyPOI{{Name: "Stage", Distance: 50}}, nearby["bus_stops"])
	assert.Equal(t, []proximity.NearbyPOI{{Name: "Duka", Category: "kiosk", Distance: 80}}, nearby["shops"])

	q, _ = url.ParseQuery("poi_type=shop&poi_radius=100&poi_type=bus_stop&poi_radius=30")
	page, err = l.List(context.Background(), ParseParams(q))
	require.NoError(t, err)
	assert.Zero(t, page.Count, "the stop is 50 m away")
	assert.NotNil(t, page.Results)
}

func TestListerWithoutConstraints(t *testing.T) {
	repo := fixture(t)
	l := &Lister{Repo: repo, Resolver: proximity.NewResolver(repo.store, nil)}

	page, err := l.List(context.Background(), ParseParams(url.Values{"district": {"westlands"}}))
	require.NoError(t, err)
	assert.Equal(t, []any{uint(1), uint(2)}, featureIDs(page), "district match ignores case and rows come in id order")
	for _, f := range page.Results {
		assert.NotContains(t, f.Properties, "nearby_pois")
	}

	page, err = l.List(context.Background(), ParseParams(url.Values{"price_min": {"26000"}, "price_max": {"35000"}}))
	require.NoError(t, err)
	assert.Equal(t, []any{uint(3)}, featureIDs(page))
}

func TestListerMismatchedConstraintCounts(t *testing.T) {
	repo := fixture(t)
	l := &Lister{Repo: repo, Resolver: proximity.NewResolver(repo.store, nil)}

	q := url.Values{"poi_type": {"shop", "bus_stop"}, "poi_radius": {"1"}}
	page, err := l.List(context.Background(), ParseParams(q))
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Count, "no proximity filtering")
	for _, f := range page.Results {
		assert.NotContains(t, f.Properties, "nearby_pois")
	}
}

func TestListerNearbyOnlyWhenNonEmpty(t *testing.T) {
	repo := fixture(t)
	l := &Lister{Repo: repo, Resolver: proximity.NewResolver(repo.store, nil)}

	q := url.Values{"district": {"Westlands"}, "poi_type": {"route"}, "poi_radius": {"500"}}
	page, err := l.List(context.Background(), ParseParams(q))
	require.NoError(t, err)
	assert.Zero(t, page.Count, "no routes in the dataset")

	q = url.Values{"district": {"Westlands"}, "page_size": {"1"}, "page": {"2"}}
	page, err = l.List(context.Background(), ParseParams(q))
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Count)
	assert.Equal(t, []any{uint(2)}, featureIDs(page))
}

func TestListHandler(t *testing.T) {
	repo := fixture(t)
	h := &Handler{Repo: repo, Resolver: proximity.NewResolver(repo.store, nil)}
	srv := httptest.NewServer(h.SetupRoutes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?district=Kasarani&page_size=5")
	require.NoError(t, err)
	var page struct {
		Count    int64             `json:"count"`
		Page     int               `json:"page"`
		PageSize int               `json:"page_size"`
		Results  []json.RawMessage `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	resp.Body.Close()
	assert.Equal(t, int64(1), page.Count)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 5, page.PageSize)
	require.Len(t, page.Results, 1)

	f, err := geojson.UnmarshalFeature(page.Results[0])
	require.NoError(t, err)
	assert.Equal(t, "Kasarani", f.Properties["district"])
	assert.Equal(t, "-1.22,36.9", f.Properties["location"])

	// geojson=true ignores every filter.
	resp, err = http.Get(srv.URL + "/?district=Kasarani&geojson=true")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))
	var fc geojson.FeatureCollection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	assert.Len(t, fc.Features, 3)
}

type userFetcher struct{}

func (userFetcher) FindSessionByID(string) (utils.SessionData, error) {
	return utils.SessionData{UserID: "u1", Role: "user", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func TestCreateRejectsBadPayload(t *testing.T) {
	repo := fixture(t)
	h := &Handler{Repo: repo, Validator: geo.NewValidator(repo.store), Sessions: userFetcher{}}
	routes := h.SetupRoutes()

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer t")
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"title":"A","district":"Westlands","location":"-1.2921,36.8219","rental_price":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fe FieldErrors
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fe))
	assert.Equal(t, FieldErrors{"rental_price": {"Rental price must be greater than 0."}}, fe)

	rec = post(`{"title":"A","district":"Kasarani","location":"-1.2921,36.8219"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "building location must be within Kasarani district boundary")

	rec = post(`{"title":"A","image":"x.png"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func str(s string) *string { return &s }

func TestPatchCheck(t *testing.T) {
	repo := fixture(t)
	v := geo.NewValidator(repo.store)

	fe := (&Patch{}).Check(v, nil)
	assert.ElementsMatch(t, []string{"title", "location", "district"}, mapsKeys(fe))

	p := &Patch{Title: str("A"), District: str("Nowhere"), Location: str("-1.2921,36.8219")}
	fe = p.Check(v, nil)
	assert.Equal(t, FieldErrors{"district": {"district 'Nowhere' does not exist"}}, fe)

	p = &Patch{Title: str("A"), District: str("Westlands"), Location: str("95,36.8")}
	fe = p.Check(v, nil)
	assert.Equal(t, FieldErrors{"location": {"latitude must be between -90 and 90 degrees"}}, fe)

	p = &Patch{Title: str("A"), District: str("Westlands"), Location: str(" -1.2921 , 36.8219 ")}
	require.Empty(t, p.Check(v, nil))
	b := p.Building()
	assert.Equal(t, origin, b.Location.Geom)
	assert.True(t, b.IsAvailable, "new listings default to available")
	assert.NotNil(t, b.Amenities)
}

func TestPatchRevalidatesAgainstStoredDistrict(t *testing.T) {
	repo := fixture(t)
	v := geo.NewValidator(repo.store)
	current := &Building{ID: 1, DistrictName: "Westlands", Location: db.Point{Geom: origin}}

	// Moving into Kasarani while still assigned to Westlands fails.
	p := &Patch{Location: str("-1.22,36.9")}
	fe := p.Check(v, current)
	assert.Contains(t, fe, "location")

	// Changing only the district re-checks the stored point.
	p = &Patch{District: str("Kasarani")}
	assert.Contains(t, p.Check(v, current), "location")

	p = &Patch{District: str("Kasarani"), Location: str("-1.22,36.9")}
	require.Empty(t, p.Check(v, current))
	cols := p.Columns()
	assert.Equal(t, "Kasarani", cols["district"])
	assert.Equal(t, db.Point{Geom: orb.Point{36.9, -1.22}}, cols["location"])

	p = &Patch{Description: str("quiet street")}
	require.Empty(t, p.Check(v, current))
	assert.Equal(t, map[string]any{"description": "quiet street"}, p.Columns())
}

func mapsKeys(fe FieldErrors) []string {
	var out []string
	for k := range fe {
		out = append(out, k)
	}
	return out
}

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test dbname=test sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return gdb
}

func TestListQuerySQL(t *testing.T) {
	lo, hi := 1000.0, 5000.0
	q := ListQuery{
		District: "Westlands",
		PriceMin: &lo,
		PriceMax: &hi,
		Filter:   proximity.Compile([]proximity.Constraint{{Kind: geo.KindBusStop, Radius: 60}}),
	}

	var rows []Building
	stmt := dryRunDB(t).Scopes(q.scope).Order("rentals.buildings.id").Find(&rows).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "lower(rentals.buildings.district) = lower($1)")
	assert.Contains(t, sql, "rentals.buildings.rental_price >= $2")
	assert.Contains(t, sql, "rentals.buildings.rental_price <= $3")
	assert.Contains(t, sql, "FROM rentals.bus_stops AS poi_0 WHERE ST_DWithin(poi_0.geometry, rentals.buildings.location, $4, false)")
	assert.Contains(t, sql, "ORDER BY rentals.buildings.id")
	assert.Equal(t, []interface{}{"Westlands", 1000.0, 5000.0, 60.0}, stmt.Vars)
}

func TestFeature(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	b := &Building{ID: 7, Title: "A", DistrictName: "Westlands", AvailableFrom: &day, Location: db.Point{Geom: origin}}
	f := b.Feature()

	assert.Equal(t, origin, f.Geometry)
	assert.Equal(t, "2026-03-01", f.Properties["available_from"])
	assert.Equal(t, []string{}, f.Properties["amenities"])
	assert.Equal(t, "-1.2921,36.8219", f.Properties["location"])
}
