package buildings

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/paulmach/orb"

	"github.com/openrentals/rentals-backend/internal/db"
	"github.com/openrentals/rentals-backend/internal/geo"
	"github.com/openrentals/rentals-backend/internal/metrics"
)

// Patch is the allow-listed write payload for both create and update. Nil
// fields are left alone.
type Patch struct {
	Title         *string   `json:"title"`
	County        *string   `json:"county"`
	District      *string   `json:"district"`
	Address       *string   `json:"address"`
	Location      *string   `json:"location"`
	PetsAllowed   *bool     `json:"pets_allowed"`
	AvailableFrom *string   `json:"available_from"`
	RentalPrice   *float64  `json:"rental_price"`
	NumBedrooms   *int      `json:"num_bedrooms"`
	NumBathrooms  *int      `json:"num_bathrooms"`
	SquareMeters  *float64  `json:"square_meters"`
	IsAvailable   *bool     `json:"is_available"`
	Description   *string   `json:"description"`
	Amenities     *[]string `json:"amenities"`
	OwnerContact  *string   `json:"owner_contact"`

	point     orb.Point
	available *time.Time
}

type Validator interface {
	Validate(raw, district string) (orb.Point, error)
}

// FieldErrors maps a payload field to its problems.
type FieldErrors map[string][]string

func (fe FieldErrors) add(field, msg string) { fe[field] = append(fe[field], msg) }

func DecodePatch(r io.Reader) (*Patch, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var p Patch
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

const required = "This field is required."

// Check validates the payload. For an update, current is the stored row;
// the location is re-validated whenever it or the district changes, using
// the incoming district or else the stored one.
func (p *Patch) Check(v Validator, current *Building) FieldErrors {
	fe := FieldErrors{}
	creating := current == nil

	if creating {
		if p.Title == nil || strings.TrimSpace(*p.Title) == "" {
			fe.add("title", required)
		}
		if p.Location == nil {
			fe.add("location", required)
		}
		if p.District == nil || *p.District == "" {
			fe.add("district", required)
		}
	} else if p.District != nil && *p.District == "" {
		fe.add("district", "This field may not be blank.")
	}

	if p.RentalPrice != nil && *p.RentalPrice <= 0 {
		fe.add("rental_price", "Rental price must be greater than 0.")
	}
	if p.NumBedrooms != nil && *p.NumBedrooms < 0 {
		fe.add("num_bedrooms", "Number of bedrooms cannot be negative.")
	}
	if p.NumBathrooms != nil && *p.NumBathrooms < 0 {
		fe.add("num_bathrooms", "Number of bathrooms cannot be negative.")
	}
	if p.SquareMeters != nil && *p.SquareMeters <= 0 {
		fe.add("square_meters", "Square meters must be greater than 0.")
	}
	if p.AvailableFrom != nil && *p.AvailableFrom != "" {
		t, err := time.Parse(dateLayout, *p.AvailableFrom)
		if err != nil {
			fe.add("available_from", "Date has wrong format. Use YYYY-MM-DD.")
		} else {
			p.available = &t
		}
	}
	if len(fe) > 0 {
		return fe
	}

	if p.Location == nil && p.District == nil {
		return nil
	}

	raw, district := "", ""
	if p.Location != nil {
		raw = *p.Location
	} else {
		raw = geo.FormatCoordinate(current.Location.Geom)
	}
	if p.District != nil {
		district = *p.District
	} else {
		district = current.DistrictName
	}

	pt, err := v.Validate(raw, district)
	if err != nil {
		metrics.ValidationFailure(geo.Reason(err))
		var unknown *geo.UnknownDistrictError
		if errors.As(err, &unknown) {
			fe.add("district", err.Error())
		} else {
			fe.add("location", err.Error())
		}
		return fe
	}
	p.point = pt
	return nil
}

// Building builds a new row from a checked payload.
func (p *Patch) Building() *Building {
	b := &Building{
		Title:         deref(p.Title),
		County:        deref(p.County),
		DistrictName:  deref(p.District),
		Address:       deref(p.Address),
		Location:      db.Point{Geom: p.point},
		PetsAllowed:   p.PetsAllowed != nil && *p.PetsAllowed,
		IsAvailable:   p.IsAvailable == nil || *p.IsAvailable,
		AvailableFrom: p.available,
		Description:   deref(p.Description),
		OwnerContact:  deref(p.OwnerContact),
		Amenities:     pq.StringArray{},
	}
	if p.RentalPrice != nil {
		b.RentalPrice = *p.RentalPrice
	}
	if p.NumBedrooms != nil {
		b.NumBedrooms = *p.NumBedrooms
	}
	if p.NumBathrooms != nil {
		b.NumBathrooms = *p.NumBathrooms
	}
	if p.SquareMeters != nil {
		b.SquareMeters = *p.SquareMeters
	}
	if p.Amenities != nil {
		b.Amenities = pq.StringArray(*p.Amenities)
	}
	return b
}

// Columns lists the columns a checked payload updates.
func (p *Patch) Columns() map[string]any {
	cols := map[string]any{}
	set := func(col string, ok bool, v any) {
		if ok {
			cols[col] = v
		}
	}
	set("title", p.Title != nil, deref(p.Title))
	set("county", p.County != nil, deref(p.County))
	set("district", p.District != nil, deref(p.District))
	set("address", p.Address != nil, deref(p.Address))
	set("location", p.Location != nil || p.District != nil, db.Point{Geom: p.point})
	set("pets_allowed", p.PetsAllowed != nil, p.PetsAllowed != nil && *p.PetsAllowed)
	set("rental_price", p.RentalPrice != nil, p.RentalPrice)
	set("num_bedrooms", p.NumBedrooms != nil, p.NumBedrooms)
	set("num_bathrooms", p.NumBathrooms != nil, p.NumBathrooms)
	set("square_meters", p.SquareMeters != nil, p.SquareMeters)
	set("is_available", p.IsAvailable != nil, p.IsAvailable != nil && *p.IsAvailable)
	set("description", p.Description != nil, deref(p.Description))
	set("owner_contact", p.OwnerContact != nil, deref(p.OwnerContact))
	if p.AvailableFrom != nil {
		cols["available_from"] = p.available
	}
	if p.Amenities != nil {
		cols["amenities"] = pq.StringArray(*p.Amenities)
	}
	return cols
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
