package buildings

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/openrentals/rentals-backend/internal/proximity"
	"github.com/openrentals/rentals-backend/internal/utils"
)

// Params is a parsed building list request. Malformed values are dropped
// rather than rejected.
type Params struct {
	District    string
	PriceMin    *float64
	PriceMax    *float64
	Constraints []proximity.Constraint
	Page        int
	PageSize    int
	GeoJSON     bool
}

func ParseParams(q url.Values) Params {
	p := Params{
		District:    strings.TrimSpace(q.Get("district")),
		PriceMin:    parsePrice(q.Get("price_min")),
		PriceMax:    parsePrice(q.Get("price_max")),
		Constraints: proximity.ParseConstraints(q),
		GeoJSON:     strings.EqualFold(q.Get("geojson"), "true"),
	}
	p.Page, p.PageSize = utils.ParsePage(q)
	return p
}

func parsePrice(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Lister runs the building list pipeline: filter, order, paginate, then
// resolve nearby POIs for the returned page only.
type Lister struct {
	Repo     Repository
	Resolver *proximity.Resolver
}

func (l *Lister) List(ctx context.Context, p Params) (utils.Page[*geojson.Feature], error) {
	out := utils.Page[*geojson.Feature]{Page: p.Page, PageSize: p.PageSize, Results: []*geojson.Feature{}}

	rows, total, err := l.Repo.List(ctx, ListQuery{
		District: p.District,
		PriceMin: p.PriceMin,
		PriceMax: p.PriceMax,
		Filter:   proximity.Compile(p.Constraints),
		Offset:   utils.Offset(p.Page, p.PageSize),
		Limit:    p.PageSize,
	})
	if err != nil {
		return out, fmt.Errorf("list buildings: %w", err)
	}
	out.Count = total

	for i := range rows {
		out.Results = append(out.Results, l.feature(ctx, &rows[i], p.Constraints))
	}
	return out, nil
}

func (l *Lister) feature(ctx context.Context, b *Building, cs []proximity.Constraint) *geojson.Feature {
	f := b.Feature()
	if l.Resolver == nil || len(cs) == 0 {
		return f
	}
	if nearby := l.Resolver.Resolve(ctx, b.Location.Geom, cs); len(nearby) > 0 {
		f.Properties["nearby_pois"] = nearby
	}
	return f
}
