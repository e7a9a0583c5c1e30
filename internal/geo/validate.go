package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/paulmach/orb"
)

// ErrInvalidCoordinate is matched by every error Validate returns.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

var ErrMalformedCoordinate = fmt.Errorf("%w: coordinate format cannot be parsed, expected two float values separated by a comma", ErrInvalidCoordinate)

type OutOfRangeError struct {
	Field string
	Value float64
}

func (e *OutOfRangeError) Error() string {
	limit := 90
	if e.Field == "longitude" {
		limit = 180
	}
	return fmt.Sprintf("%s must be between -%d and %d degrees", e.Field, limit, limit)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrInvalidCoordinate }

type UnknownDistrictError struct{ Name string }

func (e *UnknownDistrictError) Error() string {
	return fmt.Sprintf("district '%s' does not exist", e.Name)
}

func (e *UnknownDistrictError) Is(target error) bool { return target == ErrInvalidCoordinate }

type OutsideDistrictError struct{ Name string }

func (e *OutsideDistrictError) Error() string {
	return fmt.Sprintf("building location must be within %s district boundary", e.Name)
}

func (e *OutsideDistrictError) Is(target error) bool { return target == ErrInvalidCoordinate }

// Reason is a short label for err, used as a metrics dimension.
func Reason(err error) string {
	var (
		rangeErr   *OutOfRangeError
		unknownErr *UnknownDistrictError
		outsideErr *OutsideDistrictError
	)
	switch {
	case errors.As(err, &rangeErr):
		return "out_of_range"
	case errors.As(err, &unknownErr):
		return "unknown_district"
	case errors.As(err, &outsideErr):
		return "outside_district"
	case errors.Is(err, ErrMalformedCoordinate):
		return "malformed"
	}
	return "other"
}

// ParseCoordinate reads a "lat,lon" string. All whitespace is ignored.
// Latitude is range-checked before longitude.
func ParseCoordinate(raw string) (orb.Point, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	parts := strings.Split(compact, ",")
	if len(parts) != 2 {
		return orb.Point{}, ErrMalformedCoordinate
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return orb.Point{}, ErrMalformedCoordinate
	}
	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return orb.Point{}, ErrMalformedCoordinate
	}

	// Negated so NaN fails too.
	if !(lat >= -90 && lat <= 90) {
		return orb.Point{}, &OutOfRangeError{Field: "latitude", Value: lat}
	}
	if !(lon >= -180 && lon <= 180) {
		return orb.Point{}, &OutOfRangeError{Field: "longitude", Value: lon}
	}
	return orb.Point{lon, lat}, nil
}

// FormatCoordinate renders p as "lat,lon" using the shortest representation
// that parses back to the same floats.
func FormatCoordinate(p orb.Point) string {
	return strconv.FormatFloat(p.Lat(), 'g', -1, 64) + "," + strconv.FormatFloat(p.Lon(), 'g', -1, 64)
}

// Validator checks building coordinates against the districts in a Store.
type Validator struct {
	store *Store
}

func NewValidator(s *Store) *Validator { return &Validator{store: s} }

// Validate parses raw and, when district is non-empty, requires the point to
// lie inside that district's boundary. District names match exactly.
func (v *Validator) Validate(raw, district string) (orb.Point, error) {
	p, err := ParseCoordinate(raw)
	if err != nil {
		return orb.Point{}, err
	}
	if district == "" {
		return p, nil
	}

	snap := v.store.Snapshot()
	d, ok := snap.District(district)
	if !ok {
		return orb.Point{}, &UnknownDistrictError{Name: district}
	}
	if !snap.Contains(d, p) {
		return orb.Point{}, &OutsideDistrictError{Name: district}
	}
	return p, nil
}
