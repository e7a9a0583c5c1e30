package geo

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// rectPad keeps degenerate bounds (points, axis-aligned lines) from producing
// zero-width rectangles, which rtreego rejects.
const rectPad = 1e-9

type indexEntry struct {
	rect rtreego.Rect
	pos  int
}

func (e *indexEntry) Bounds() rtreego.Rect { return e.rect }

// index is a bulk-loaded R-tree over the bounds of one feature slice. Queries
// return candidate positions into that slice; callers apply the exact metric.
type index struct {
	tree *rtreego.Rtree
}

func newIndex(bounds []orb.Bound) *index {
	objs := make([]rtreego.Spatial, 0, len(bounds))
	for i, b := range bounds {
		r, ok := boundRect(b.Min, b.Max)
		if !ok {
			continue
		}
		objs = append(objs, &indexEntry{rect: r, pos: i})
	}
	return &index{tree: rtreego.NewTree(2, 25, 50, objs...)}
}

func boundRect(min, max orb.Point) (rtreego.Rect, bool) {
	r, err := rtreego.NewRectFromPoints(
		rtreego.Point{min.Lon() - rectPad, min.Lat() - rectPad},
		rtreego.Point{max.Lon() + rectPad, max.Lat() + rectPad},
	)
	return r, err == nil
}

// near returns positions whose bounds intersect a box of radius meters
// around p. A box that crosses the antimeridian is searched as two halves.
func (ix *index) near(p orb.Point, radius float64) []int {
	if ix == nil || ix.tree.Size() == 0 {
		return nil
	}
	var out []int
	seen := map[int]bool{}
	for _, box := range searchBoxes(p, radius) {
		r, ok := boundRect(box.Min, box.Max)
		if !ok {
			continue
		}
		for _, h := range ix.tree.SearchIntersect(r) {
			pos := h.(*indexEntry).pos
			if !seen[pos] {
				seen[pos] = true
				out = append(out, pos)
			}
		}
	}
	return out
}

// searchBoxes covers every point within radius meters of p with at most two
// lon/lat boxes inside [-180, 180]. When the circle reaches a pole, or is
// wider than the longitude range, the box spans every longitude.
func searchBoxes(p orb.Point, radius float64) []orb.Bound {
	dLat := toDeg(radius / EarthRadius)
	minLat := math.Max(-90, p.Lat()-dLat)
	maxLat := math.Min(90, p.Lat()+dLat)

	dLon := 180.0
	if minLat > -90 && maxLat < 90 {
		if c := math.Cos(toRad(math.Max(math.Abs(minLat), math.Abs(maxLat)))); c > 1e-9 {
			dLon = toDeg(radius / (EarthRadius * c))
		}
	}
	if dLon >= 180 {
		return []orb.Bound{{Min: orb.Point{-180, minLat}, Max: orb.Point{180, maxLat}}}
	}

	minLon, maxLon := p.Lon()-dLon, p.Lon()+dLon
	switch {
	case minLon < -180:
		return []orb.Bound{
			{Min: orb.Point{-180, minLat}, Max: orb.Point{maxLon, maxLat}},
			{Min: orb.Point{minLon + 360, minLat}, Max: orb.Point{180, maxLat}},
		}
	case maxLon > 180:
		return []orb.Bound{
			{Min: orb.Point{minLon, minLat}, Max: orb.Point{180, maxLat}},
			{Min: orb.Point{-180, minLat}, Max: orb.Point{maxLon - 360, maxLat}},
		}
	}
	return []orb.Bound{{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}}
}
