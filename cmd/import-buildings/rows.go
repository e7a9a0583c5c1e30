package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/openrentals/rentals-backend/internal/geo"
)

// Row is one building parsed from the CSV. Nil fields were absent or blank.
type Row struct {
	Line          int
	Title         string
	County        string
	District      string
	Address       string
	Lat, Lon      float64
	PetsAllowed   *bool
	AvailableFrom *time.Time
	RentalPrice   *float64
	NumBedrooms   *int
	NumBathrooms  *int
	SquareMeters  *float64
	IsAvailable   *bool
	Description   string
	Amenities     []string
	OwnerContact  string
}

// Skip records a row that could not be imported.
type Skip struct {
	Line   int
	Reason string
}

func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

type record struct {
	cols map[string]int
	rec  []string
}

// get returns the first non-blank value among keys.
func (r record) get(keys ...string) string {
	for _, k := range keys {
		i, ok := r.cols[k]
		if !ok || i >= len(r.rec) {
			continue
		}
		if v := strings.TrimSpace(r.rec[i]); v != "" {
			return v
		}
	}
	return ""
}

func readRows(in io.Reader) ([]Row, []Skip, error) {
	cr := csv.NewReader(in)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[normalize(h)] = i
	}

	var (
		rows  []Row
		skips []Skip
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("csv read: %w", err)
		}
		row, err := parseRow(record{cols: cols, rec: rec})
		if err != nil {
			skips = append(skips, Skip{Line: line, Reason: err.Error()})
			continue
		}
		row.Line = line
		rows = append(rows, row)
	}
	return rows, skips, nil
}

func parseRow(r record) (Row, error) {
	lat, lon := r.get("latitude"), r.get("longitude")
	if lat == "" || lon == "" {
		if loc := r.get("location"); loc != "" {
			parts := strings.Split(strings.ReplaceAll(loc, " ", ""), ",")
			if len(parts) == 2 {
				lat, lon = parts[0], parts[1]
			}
		}
	}
	if lat == "" || lon == "" {
		return Row{}, errors.New("row without valid coordinates")
	}
	p, err := geo.ParseCoordinate(lat + "," + lon)
	if err != nil {
		return Row{}, fmt.Errorf("invalid coordinates: %w", err)
	}

	row := Row{
		Title:        r.get("title"),
		County:       r.get("county"),
		District:     r.get("district"),
		Address:      r.get("address"),
		Lat:          p.Lat(),
		Lon:          p.Lon(),
		Description:  r.get("description"),
		OwnerContact: r.get("owner_contact"),
		Amenities:    parseAmenities(r.get("amenities")),
	}
	if row.District == "" {
		return Row{}, errors.New("row without district")
	}

	row.PetsAllowed = parseBool(r.get("pets_allowed"))
	row.IsAvailable = parseBool(r.get("is_available"))
	if row.RentalPrice, err = parseFloat(r.get("rental_price", "rent")); err != nil {
		return Row{}, fmt.Errorf("rental_price: %w", err)
	}
	if row.SquareMeters, err = parseFloat(r.get("square_meters", "area")); err != nil {
		return Row{}, fmt.Errorf("square_meters: %w", err)
	}
	if row.NumBedrooms, err = parseInt(r.get("num_bedrooms", "bedroom")); err != nil {
		return Row{}, fmt.Errorf("num_bedrooms: %w", err)
	}
	if row.NumBathrooms, err = parseInt(r.get("num_bathrooms", "bathroom")); err != nil {
		return Row{}, fmt.Errorf("num_bathrooms: %w", err)
	}
	if s := r.get("available_from"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			row.AvailableFrom = &t
		}
	}
	return row, nil
}

func parseBool(s string) *bool {
	var v bool
	switch strings.ToLower(s) {
	case "true", "1", "yes", "y":
		v = true
	case "false", "0", "no", "n":
		v = false
	default:
		return nil
	}
	return &v
}

func parseFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseInt accepts "3" and "3.0", which spreadsheet exports produce.
func parseInt(s string) (*int, error) {
	f, err := parseFloat(s)
	if f == nil || err != nil {
		return nil, err
	}
	v := int(*f)
	return &v, nil
}

// parseAmenities reads a JSON list or a ';' separated string.
func parseAmenities(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
		out = []string{}
	}
	for _, a := range strings.Split(s, ";") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
