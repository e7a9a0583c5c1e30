package refdata

import (
	"github.com/openrentals/rentals-backend/internal/db"
	"github.com/openrentals/rentals-backend/internal/geo"
)

type District struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	Name     string          `gorm:"size:100;not null;uniqueIndex" json:"name"`
	County   string          `gorm:"size:100" json:"county"`
	Boundary db.MultiPolygon `gorm:"type:geography(MultiPolygon,4326);not null;index:idx_districts_boundary,type:gist" json:"-"`
}

type Shop struct {
	ID       int64    `gorm:"primaryKey" json:"id"`
	Name     string   `gorm:"size:255" json:"name"`
	Category string   `gorm:"size:100" json:"category"`
	Geometry db.Point `gorm:"type:geography(Point,4326);not null;index:idx_shops_geometry,type:gist" json:"-"`
}

type BusStop struct {
	ID       int64    `gorm:"primaryKey" json:"id"`
	Name     string   `gorm:"size:255" json:"name"`
	Geometry db.Point `gorm:"type:geography(Point,4326);not null;index:idx_bus_stops_geometry,type:gist" json:"-"`
}

type Route struct {
	ID            int64              `gorm:"primaryKey" json:"id"`
	RouteName     string             `gorm:"size:255" json:"route_name"`
	Headsign      string             `gorm:"size:255" json:"headsign"`
	RouteLongName string             `gorm:"size:255" json:"route_long_name"`
	Geometry      db.MultiLineString `gorm:"type:geography(MultiLineString,4326);not null;index:idx_routes_geometry,type:gist" json:"-"`
}

func (District) TableName() string { return "rentals.districts" }
func (Shop) TableName() string     { return "rentals.shops" }
func (BusStop) TableName() string  { return "rentals.bus_stops" }
func (Route) TableName() string    { return "rentals.routes" }

// TableFor names the table holding POIs of kind k.
func TableFor(k geo.Kind) string {
	switch k {
	case geo.KindShop:
		return Shop{}.TableName()
	case geo.KindBusStop:
		return BusStop{}.TableName()
	case geo.KindRoute:
		return Route{}.TableName()
	}
	return ""
}

func toDataset(districts []District, shops []Shop, stops []BusStop, routes []Route) *geo.Dataset {
	ds := &geo.Dataset{
		Districts: make([]geo.District, 0, len(districts)),
		Shops:     make([]geo.Shop, 0, len(shops)),
		BusStops:  make([]geo.BusStop, 0, len(stops)),
		Routes:    make([]geo.Route, 0, len(routes)),
	}
	for _, d := range districts {
		ds.Districts = append(ds.Districts, geo.District{Name: d.Name, County: d.County, Boundary: d.Boundary.Geom})
	}
	for _, s := range shops {
		ds.Shops = append(ds.Shops, geo.Shop{ID: s.ID, Name: s.Name, Category: s.Category, Point: s.Geometry.Geom})
	}
	for _, s := range stops {
		ds.BusStops = append(ds.BusStops, geo.BusStop{ID: s.ID, Name: s.Name, Point: s.Geometry.Geom})
	}
	for _, r := range routes {
		ds.Routes = append(ds.Routes, geo.Route{
			ID: r.ID, RouteName: r.RouteName, Headsign: r.Headsign,
			RouteLongName: r.RouteLongName, Line: r.Geometry.Geom,
		})
	}
	return ds
}

func fromDataset(ds *geo.Dataset) ([]District, []Shop, []BusStop, []Route) {
	districts := make([]District, 0, len(ds.Districts))
	for _, d := range ds.Districts {
		districts = append(districts, District{Name: d.Name, County: d.County, Boundary: db.MultiPolygon{Geom: d.Boundary}})
	}
	shops := make([]Shop, 0, len(ds.Shops))
	for _, s := range ds.Shops {
		shops = append(shops, Shop{Name: s.Name, Category: s.Category, Geometry: db.Point{Geom: s.Point}})
	}
	stops := make([]BusStop, 0, len(ds.BusStops))
	for _, s := range ds.BusStops {
		stops = append(stops, BusStop{Name: s.Name, Geometry: db.Point{Geom: s.Point}})
	}
	routes := make([]Route, 0, len(ds.Routes))
	for _, r := range ds.Routes {
		routes = append(routes, Route{
			RouteName: r.RouteName, Headsign: r.Headsign, RouteLongName: r.RouteLongName,
			Geometry: db.MultiLineString{Geom: r.Line},
		})
	}
	return districts, shops, stops, routes
}
