package buildings

import (
	"time"

	"github.com/lib/pq"
	"github.com/paulmach/orb/geojson"

	"github.com/openrentals/rentals-backend/internal/auth"
	"github.com/openrentals/rentals-backend/internal/db"
	"github.com/openrentals/rentals-backend/internal/geo"
	"github.com/openrentals/rentals-backend/internal/refdata"
)

const dateLayout = "2006-01-02"

type Building struct {
	ID            uint              `gorm:"primaryKey"`
	Title         string            `gorm:"size:255;not null"`
	County        string            `gorm:"size:100"`
	DistrictName  string            `gorm:"column:district;size:100;not null;index"`
	District      *refdata.District `gorm:"foreignKey:DistrictName;references:Name;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Address       string            `gorm:"size:255"`
	Location      db.Point          `gorm:"type:geography(Point,4326);not null;index:idx_buildings_location,type:gist"`
	PetsAllowed   bool              `gorm:"not null"`
	AvailableFrom *time.Time        `gorm:"type:date"`
	RentalPrice   float64           `gorm:"type:numeric(10,2)"`
	NumBedrooms   int
	NumBathrooms  int
	SquareMeters  float64 `gorm:"type:numeric(10,2)"`
	IsAvailable   bool    `gorm:"not null"`
	Description   string
	Amenities     pq.StringArray `gorm:"type:text[]"`
	OwnerContact  string         `gorm:"size:255"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProfileBuilding links a profile to a building it may manage.
type ProfileBuilding struct {
	ID         uint          `gorm:"primaryKey"`
	UserID     string        `gorm:"not null;uniqueIndex:idx_profile_building"`
	BuildingID uint          `gorm:"not null;uniqueIndex:idx_profile_building;index"`
	Profile    *auth.Profile `gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE"`
	Building   *Building     `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time
}

func (Building) TableName() string        { return "rentals.buildings" }
func (ProfileBuilding) TableName() string { return "rentals.profile_buildings" }

// Feature renders b as a GeoJSON point feature. The location is also
// repeated in properties as "lat,lon".
func (b *Building) Feature() *geojson.Feature {
	f := geojson.NewFeature(b.Location.Geom)
	f.ID = b.ID

	var available any
	if b.AvailableFrom != nil {
		available = b.AvailableFrom.Format(dateLayout)
	}
	amenities := []string(b.Amenities)
	if amenities == nil {
		amenities = []string{}
	}

	f.Properties = geojson.Properties{
		"pk":             b.ID,
		"title":          b.Title,
		"county":         b.County,
		"district":       b.DistrictName,
		"address":        b.Address,
		"location":       geo.FormatCoordinate(b.Location.Geom),
		"pets_allowed":   b.PetsAllowed,
		"available_from": available,
		"rental_price":   b.RentalPrice,
		"num_bedrooms":   b.NumBedrooms,
		"num_bathrooms":  b.NumBathrooms,
		"square_meters":  b.SquareMeters,
		"is_available":   b.IsAvailable,
		"description":    b.Description,
		"amenities":      amenities,
		"owner_contact":  b.OwnerContact,
		"created_at":     b.CreatedAt,
		"updated_at":     b.UpdatedAt,
	}
	return f
}

func featureCollection(bs []Building) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range bs {
		fc.Append(bs[i].Feature())
	}
	return fc
}
