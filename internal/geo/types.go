package geo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// Kind identifies one of the point-of-interest categories kept in the store.
type Kind string

const (
	KindShop    Kind = "shop"
	KindBusStop Kind = "bus_stop"
	KindRoute   Kind = "route"
)

// Kinds lists every category in the order results are reported.
var Kinds = []Kind{KindShop, KindBusStop, KindRoute}

// ParseKind accepts a category name from a query string. "shops" is kept as
// an alias for "shop" because older clients send the plural.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shop", "shops":
		return KindShop, true
	case "bus_stop":
		return KindBusStop, true
	case "route":
		return KindRoute, true
	}
	return "", false
}

// Plural is the key used for the category in nearby_pois payloads.
func (k Kind) Plural() string {
	switch k {
	case KindShop:
		return "shops"
	case KindBusStop:
		return "bus_stops"
	case KindRoute:
		return "routes"
	}
	return string(k)
}

type District struct {
	Name     string
	County   string
	Boundary orb.MultiPolygon
}

type Shop struct {
	ID       int64
	Name     string
	Category string
	Point    orb.Point
}

type BusStop struct {
	ID    int64
	Name  string
	Point orb.Point
}

type Route struct {
	ID            int64
	RouteName     string
	Headsign      string
	RouteLongName string
	Line          orb.MultiLineString
}

// Dataset is a full set of reference geometry as handed to Store.Replace.
type Dataset struct {
	Districts []District
	Shops     []Shop
	BusStops  []BusStop
	Routes    []Route
}

var errEmptyBoundary = errors.New("empty boundary")

// Check reports the first structural problem in the dataset: unnamed or
// duplicate districts, boundaries without a closed outer ring, and empty
// route geometry. Duplicate names are compared case-insensitively.
func (d *Dataset) Check() error {
	seen := make(map[string]string, len(d.Districts))
	for i, dist := range d.Districts {
		if strings.TrimSpace(dist.Name) == "" {
			return fmt.Errorf("district %d: missing name", i)
		}
		key := foldName(dist.Name)
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("district %q: duplicates %q", dist.Name, prev)
		}
		seen[key] = dist.Name
		if err := checkBoundary(dist.Boundary); err != nil {
			return fmt.Errorf("district %q: %w", dist.Name, err)
		}
	}
	for _, r := range d.Routes {
		if len(r.Line) == 0 {
			return fmt.Errorf("route %d: empty geometry", r.ID)
		}
	}
	return nil
}

func checkBoundary(mp orb.MultiPolygon) error {
	if len(mp) == 0 {
		return errEmptyBoundary
	}
	for _, poly := range mp {
		if len(poly) == 0 || len(poly[0]) < 4 {
			return errEmptyBoundary
		}
		if !poly[0].Closed() {
			return errors.New("outer ring is not closed")
		}
	}
	return nil
}

// Counts is the per-kind feature tally of a snapshot.
type Counts struct {
	Districts int `json:"districts"`
	Shops     int `json:"shops"`
	BusStops  int `json:"bus_stops"`
	Routes    int `json:"routes"`
}
