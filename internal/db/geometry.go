package db

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
)

// SRID of every geometry/geography column.
const SRID = 4326

// Geometry maps a PostGIS column to an orb geometry. Values are written as
// hex EWKB, which Postgres accepts for both geometry and geography input, and
// read back from either binary or hex EWKB.
type Geometry[T orb.Geometry] struct {
	Geom T
}

type (
	Point           = Geometry[orb.Point]
	MultiPolygon    = Geometry[orb.MultiPolygon]
	MultiLineString = Geometry[orb.MultiLineString]
)

func (g *Geometry[T]) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		var zero T
		g.Geom = zero
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("geometry: cannot scan %T", src)
	}

	if looksHex(data) {
		raw := make([]byte, hex.DecodedLen(len(data)))
		n, err := hex.Decode(raw, data)
		if err != nil {
			return fmt.Errorf("geometry: %w", err)
		}
		data = raw[:n]
	}

	geom, _, err := ewkb.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("geometry: %w", err)
	}
	t, ok := promote(geom).(T)
	if !ok {
		// Columns declared with a single geometry type.
		if t, ok = geom.(T); !ok {
			return fmt.Errorf("geometry: got %s, want %T", geom.GeoJSONType(), g.Geom)
		}
	}
	g.Geom = t
	return nil
}

func (g Geometry[T]) Value() (driver.Value, error) {
	b, err := ewkb.Marshal(g.Geom, SRID)
	if err != nil {
		return nil, fmt.Errorf("geometry: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// promote widens single geometries to their multi form so a column declared
// MultiPolygon can still hold rows written as Polygon.
func promote(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{v}
	case orb.LineString:
		return orb.MultiLineString{v}
	}
	return g
}

// Binary EWKB starts with a 0x00/0x01 byte order marker; hex EWKB with the
// ASCII digits "00" or "01".
func looksHex(b []byte) bool {
	return len(b) >= 2 && b[0] == '0' && (b[1] == '0' || b[1] == '1')
}
