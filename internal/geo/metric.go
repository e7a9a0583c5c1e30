package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// EarthRadius is the mean earth radius in meters used by Sphere.
const EarthRadius = 6371008.8

// Metric answers the three geometric questions the engine asks. Distances are
// in meters, coordinates are WGS84 lon/lat.
type Metric interface {
	Contains(boundary orb.Geometry, p orb.Point) bool
	Distance(p orb.Point, g orb.Geometry) float64
	DistanceWithin(p orb.Point, g orb.Geometry, radius float64) bool
}

// Sphere measures geodesic distance on a sphere of radius EarthRadius and
// tests containment in lon/lat space. Points on a boundary edge count as
// contained.
type Sphere struct{}

func (Sphere) Contains(boundary orb.Geometry, p orb.Point) bool {
	switch b := boundary.(type) {
	case orb.MultiPolygon:
		for _, poly := range b {
			if polygonContains(poly, p) {
				return true
			}
		}
		return false
	case orb.Polygon:
		return polygonContains(b, p)
	case orb.Ring:
		return len(b) > 0 && planar.RingContains(b, p)
	case orb.Bound:
		return b.Contains(p)
	}
	return false
}

func polygonContains(poly orb.Polygon, p orb.Point) bool {
	if len(poly) == 0 || len(poly[0]) == 0 {
		return false
	}
	if !planar.RingContains(poly[0], p) {
		return false
	}
	// planar treats a point on a hole's edge as inside the hole; that edge is
	// still part of the polygon boundary.
	for _, hole := range poly[1:] {
		if planar.RingContains(hole, p) && !onRing(hole, p) {
			return false
		}
	}
	return true
}

func onRing(r orb.Ring, p orb.Point) bool {
	for i := 0; i+1 < len(r); i++ {
		if onSegment(r[i], r[i+1], p) {
			return true
		}
	}
	return len(r) > 1 && onSegment(r[len(r)-1], r[0], p)
}

func onSegment(a, b, p orb.Point) bool {
	cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
	if math.Abs(cross) > 1e-12 {
		return false
	}
	return p[0] >= math.Min(a[0], b[0]) && p[0] <= math.Max(a[0], b[0]) &&
		p[1] >= math.Min(a[1], b[1]) && p[1] <= math.Max(a[1], b[1])
}

func (s Sphere) Distance(p orb.Point, g orb.Geometry) float64 {
	switch g := g.(type) {
	case orb.Point:
		return haversine(p, g)
	case orb.MultiPoint:
		best := math.Inf(1)
		for _, q := range g {
			best = math.Min(best, haversine(p, q))
		}
		return best
	case orb.LineString:
		return lineDistance(p, g)
	case orb.MultiLineString:
		best := math.Inf(1)
		for _, ls := range g {
			best = math.Min(best, lineDistance(p, ls))
		}
		return best
	case orb.Ring:
		return lineDistance(p, orb.LineString(g))
	case orb.Polygon:
		if s.Contains(g, p) {
			return 0
		}
		best := math.Inf(1)
		for _, r := range g {
			best = math.Min(best, lineDistance(p, orb.LineString(r)))
		}
		return best
	case orb.MultiPolygon:
		best := math.Inf(1)
		for _, poly := range g {
			best = math.Min(best, s.Distance(p, poly))
		}
		return best
	}
	return math.Inf(1)
}

func (s Sphere) DistanceWithin(p orb.Point, g orb.Geometry, radius float64) bool {
	if !(radius >= 0) || g == nil {
		return false
	}
	if latGap(p, g.Bound()) > radius {
		return false
	}
	return s.Distance(p, g) <= radius
}

// latGap is a lower bound on the distance from p to anything inside b, using
// only the latitude difference.
func latGap(p orb.Point, b orb.Bound) float64 {
	lat := p.Lat()
	switch {
	case lat < b.Min.Lat():
		return toRad(b.Min.Lat()-lat) * EarthRadius
	case lat > b.Max.Lat():
		return toRad(lat-b.Max.Lat()) * EarthRadius
	}
	return 0
}

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }

func haversine(a, b orb.Point) float64 {
	return EarthRadius * angular(a, b)
}

// angular returns the central angle between a and b in radians.
func angular(a, b orb.Point) float64 {
	lat1, lat2 := toRad(a.Lat()), toRad(b.Lat())
	dLat := lat2 - lat1
	dLon := toRad(b.Lon() - a.Lon())
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * math.Asin(math.Min(1, math.Sqrt(h)))
}

// bearing is the initial great-circle bearing from a to b in radians.
func bearing(a, b orb.Point) float64 {
	lat1, lat2 := toRad(a.Lat()), toRad(b.Lat())
	dLon := toRad(b.Lon() - a.Lon())
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Atan2(y, x)
}

func lineDistance(p orb.Point, ls orb.LineString) float64 {
	switch len(ls) {
	case 0:
		return math.Inf(1)
	case 1:
		return haversine(p, ls[0])
	}
	best := math.Inf(1)
	for i := 0; i < len(ls)-1; i++ {
		best = math.Min(best, segmentDistance(p, ls[i], ls[i+1]))
	}
	return best
}

// segmentDistance is the great-circle distance from p to the arc a-b. When the
// perpendicular foot falls outside the arc the nearer endpoint wins.
func segmentDistance(p, a, b orb.Point) float64 {
	d13 := angular(a, p)
	if d13 == 0 {
		return 0
	}
	d12 := angular(a, b)
	if d12 == 0 {
		return d13 * EarthRadius
	}

	delta := bearing(a, p) - bearing(a, b)
	if d13 >= math.Pi/2 {
		return math.Min(d13*EarthRadius, haversine(p, b))
	}
	if math.Cos(delta) < 0 {
		return d13 * EarthRadius
	}

	xt := math.Asin(math.Sin(d13) * math.Sin(delta))
	at := math.Atan(math.Cos(delta) * math.Tan(d13))
	if at > d12 {
		return haversine(p, b)
	}
	return math.Abs(xt) * EarthRadius
}
