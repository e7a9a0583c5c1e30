package proximity

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/openrentals/rentals-backend/internal/geo"
)

// Constraint asks for at least one POI of Kind within Radius meters.
type Constraint struct {
	Kind   geo.Kind
	Radius float64
}

func (c Constraint) Valid() bool {
	switch c.Kind {
	case geo.KindShop, geo.KindBusStop, geo.KindRoute:
	default:
		return false
	}
	return c.Radius > 0 && !math.IsInf(c.Radius, 0)
}

// NewConstraint parses one poi_type/poi_radius pair. ok is false for blank or
// unknown types and for radii that are not positive finite numbers.
func NewConstraint(kind, radius string) (Constraint, bool) {
	k, ok := geo.ParseKind(kind)
	if !ok {
		return Constraint{}, false
	}
	r, err := strconv.ParseFloat(strings.TrimSpace(radius), 64)
	if err != nil {
		return Constraint{}, false
	}
	c := Constraint{Kind: k, Radius: r}
	return c, c.Valid()
}

// ParseConstraints zips the repeated poi_type and poi_radius parameters.
// Mismatched counts yield no constraints at all; individual bad pairs are
// dropped while the rest still apply.
func ParseConstraints(q url.Values) []Constraint {
	types, radii := q["poi_type"], q["poi_radius"]
	if len(types) == 0 || len(types) != len(radii) {
		return nil
	}
	out := make([]Constraint, 0, len(types))
	for i := range types {
		if c, ok := NewConstraint(types[i], radii[i]); ok {
			out = append(out, c)
		}
	}
	return out
}
