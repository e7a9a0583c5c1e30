package refdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/openrentals/rentals-backend/internal/geo"
)

// Layer points at one GeoJSON file. Fields maps model fields to the
// property names used in that file.
type Layer struct {
	Path   string            `yaml:"path"`
	Fields map[string]string `yaml:"fields"`
}

// Manifest lists the files that make up a reference dataset. Empty layers
// are skipped.
type Manifest struct {
	Districts Layer `yaml:"districts"`
	Shops     Layer `yaml:"shops"`
	BusStops  Layer `yaml:"bus_stops"`
	Routes    Layer `yaml:"routes"`

	dir string
}

var defaultFields = map[string]map[string]string{
	"districts": {"name": "adm2_name", "county": "adm1_name"},
	"shops":     {"name": "name", "category": "shop"},
	"bus_stops": {"name": "stop_name"},
	"routes":    {"route_name": "route_name", "headsign": "headsign", "route_long_name": "route_long"},
}

func LoadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	return &m, nil
}

// ManifestSource loads a dataset from the files named in a manifest.
type ManifestSource struct {
	Path string
}

func (s ManifestSource) Load(ctx context.Context) (*geo.Dataset, error) {
	m, err := LoadManifest(s.Path)
	if err != nil {
		return nil, err
	}
	return m.Dataset(ctx)
}

func (m *Manifest) Dataset(ctx context.Context) (*geo.Dataset, error) {
	ds := &geo.Dataset{}

	fc, err := m.read("districts", m.Districts)
	if err != nil {
		return nil, err
	}
	for i, f := range fc {
		mp, ok := asMultiPolygon(f.Geometry)
		if !ok {
			return nil, fmt.Errorf("districts feature %d: unsupported geometry %T", i, f.Geometry)
		}
		ds.Districts = append(ds.Districts, geo.District{
			Name:     m.prop(f, "districts", m.Districts, "name"),
			County:   m.prop(f, "districts", m.Districts, "county"),
			Boundary: mp,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fc, err = m.read("shops", m.Shops)
	if err != nil {
		return nil, err
	}
	for i, f := range fc {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("shops feature %d: expected Point, got %T", i, f.Geometry)
		}
		ds.Shops = append(ds.Shops, geo.Shop{
			ID:       int64(i + 1),
			Name:     m.prop(f, "shops", m.Shops, "name"),
			Category: m.prop(f, "shops", m.Shops, "category"),
			Point:    p,
		})
	}

	fc, err = m.read("bus_stops", m.BusStops)
	if err != nil {
		return nil, err
	}
	for i, f := range fc {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("bus_stops feature %d: expected Point, got %T", i, f.Geometry)
		}
		ds.BusStops = append(ds.BusStops, geo.BusStop{
			ID:    int64(i + 1),
			Name:  m.prop(f, "bus_stops", m.BusStops, "name"),
			Point: p,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fc, err = m.read("routes", m.Routes)
	if err != nil {
		return nil, err
	}
	for i, f := range fc {
		ml, ok := asMultiLineString(f.Geometry)
		if !ok {
			return nil, fmt.Errorf("routes feature %d: unsupported geometry %T", i, f.Geometry)
		}
		ds.Routes = append(ds.Routes, geo.Route{
			ID:            int64(i + 1),
			RouteName:     m.prop(f, "routes", m.Routes, "route_name"),
			Headsign:      m.prop(f, "routes", m.Routes, "headsign"),
			RouteLongName: m.prop(f, "routes", m.Routes, "route_long_name"),
			Line:          ml,
		})
	}

	return ds, nil
}

func (m *Manifest) read(layer string, l Layer) ([]*geojson.Feature, error) {
	if l.Path == "" {
		return nil, nil
	}
	path := l.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.dir, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", layer, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("%s: parse %s: %w", layer, path, err)
	}
	return fc.Features, nil
}

func (m *Manifest) prop(f *geojson.Feature, layer string, l Layer, field string) string {
	key, ok := l.Fields[field]
	if !ok {
		key = defaultFields[layer][field]
	}
	switch v := f.Properties[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func asMultiPolygon(g orb.Geometry) (orb.MultiPolygon, bool) {
	switch v := g.(type) {
	case orb.MultiPolygon:
		return v, true
	case orb.Polygon:
		return orb.MultiPolygon{v}, true
	}
	return nil, false
}

func asMultiLineString(g orb.Geometry) (orb.MultiLineString, bool) {
	switch v := g.(type) {
	case orb.MultiLineString:
		return v, true
	case orb.LineString:
		return orb.MultiLineString{v}, true
	}
	return nil, false
}
