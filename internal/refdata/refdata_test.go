package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrentals/rentals-backend/internal/geo"
	"github.com/openrentals/rentals-backend/internal/utils"
)

const districtsJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"adm2_name":"Westlands","adm1_name":"Nairobi"},
  "geometry":{"type":"Polygon","coordinates":[[[36.7,-1.3],[36.9,-1.3],[36.9,-1.2],[36.7,-1.2],[36.7,-1.3]]]}}
]}`

const shopsJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"label":"Duka","shop":"kiosk"},"geometry":{"type":"Point","coordinates":[36.8,-1.25]}},
 {"type":"Feature","properties":{"label":7,"shop":null},"geometry":{"type":"Point","coordinates":[36.81,-1.25]}}
]}`

const routesJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"route_name":"46","headsign":"CBD","route_long":"Kawangware - CBD"},
  "geometry":{"type":"LineString","coordinates":[[36.75,-1.28],[36.82,-1.28]]}}
]}`

func writeManifest(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"districts.geojson": districtsJSON,
		"shops.geojson":     shopsJSON,
		"routes.geojson":    routesJSON,
		"refdata.yaml": `districts:
  path: districts.geojson
shops:
  path: shops.geojson
  fields:
    name: label
routes:
  path: routes.geojson
`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return filepath.Join(dir, "refdata.yaml")
}

func TestManifestSourceLoad(t *testing.T) {
	ds, err := ManifestSource{Path: writeManifest(t)}.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, ds.Districts, 1)
	assert.Equal(t, "Westlands", ds.Districts[0].Name)
	assert.Equal(t, "Nairobi", ds.Districts[0].County)
	assert.Len(t, ds.Districts[0].Boundary, 1, "polygons are widened to multipolygons")

	require.Len(t, ds.Shops, 2)
	assert.Equal(t, "Duka", ds.Shops[0].Name)
	assert.Equal(t, "kiosk", ds.Shops[0].Category)
	assert.Equal(t, "7", ds.Shops[1].Name)
	assert.Equal(t, "", ds.Shops[1].Category)

	assert.Empty(t, ds.BusStops)
	require.Len(t, ds.Routes, 1)
	assert.Equal(t, "Kawangware - CBD", ds.Routes[0].RouteLongName)
	assert.Equal(t, "46", ds.Routes[0].RouteName)

	require.NoError(t, ds.Check())
}

func TestManifestMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refdata.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shops:\n  path: nope.geojson\n"), 0o644))

	_, err := ManifestSource{Path: path}.Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type staticSource struct {
	ds  *geo.Dataset
	err error
}

func (s staticSource) Load(context.Context) (*geo.Dataset, error) { return s.ds, s.err }

type adminFetcher struct{ role string }

func (f adminFetcher) FindSessionByID(string) (utils.SessionData, error) {
	return utils.SessionData{UserID: "u1", Role: f.role, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func newHandler(t *testing.T, src geo.Source, role string) *Handler {
	t.Helper()
	store := geo.NewStore(src, nil)
	_, err := store.Replace(&geo.Dataset{Districts: []geo.District{{
		Name: "Square", County: "Test",
		Boundary: orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}},
	}}})
	require.NoError(t, err)
	return &Handler{Store: store, Sessions: adminFetcher{role: role}}
}

func TestDistrictRoutes(t *testing.T) {
	srv := httptest.NewServer(newHandler(t, nil, "user").SetupRoutes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	var list []DistrictOut
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.Equal(t, []DistrictOut{{Name: "Square", County: "Test"}}, list)

	resp, err = http.Get(srv.URL + "/Square")
	require.NoError(t, err)
	var feature map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&feature))
	resp.Body.Close()
	assert.Equal(t, "Feature", feature["type"])
	assert.Equal(t, "MultiPolygon", feature["geometry"].(map[string]any)["type"])

	resp, err = http.Get(srv.URL + "/square")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "lookup falls back to case-insensitive")

	resp, err = http.Get(srv.URL + "/Circle")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReloadRequiresAdmin(t *testing.T) {
	h := newHandler(t, staticSource{ds: &geo.Dataset{}}, "user")
	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	h.SetupRoutes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReloadSwapsSnapshot(t *testing.T) {
	h := newHandler(t, staticSource{ds: &geo.Dataset{
		Shops: []geo.Shop{{ID: 1, Name: "Duka", Point: orb.Point{0.5, 0.5}}},
	}}, "admin")

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	h.SetupRoutes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out ReloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, uint64(2), out.Version)
	assert.Equal(t, geo.Counts{Shops: 1}, out.Counts)
}

func TestReloadFailureKeepsSnapshot(t *testing.T) {
	h := newHandler(t, staticSource{err: errors.New("db down")}, "admin")
	before := h.Store.Snapshot()

	_, err := Reload(context.Background(), h.Store)
	require.Error(t, err)
	assert.Same(t, before, h.Store.Snapshot())
}

func TestTableFor(t *testing.T) {
	assert.Equal(t, "rentals.shops", TableFor(geo.KindShop))
	assert.Equal(t, "rentals.bus_stops", TableFor(geo.KindBusStop))
	assert.Equal(t, "rentals.routes", TableFor(geo.KindRoute))
	assert.Equal(t, "", TableFor("park"))
}
