package utils

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is the envelope every paginated list is returned in.
type Page[T any] struct {
	Count    int64 `json:"count"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Results  []T   `json:"results"`
}

// ParsePage reads page and page_size. Missing or malformed values fall back
// to the first page of DefaultPageSize; page_size is capped at MaxPageSize.
func ParsePage(q url.Values) (page, size int) {
	page, size = 1, DefaultPageSize
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		page = n
	}
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil && n > 0 {
		size = min(n, MaxPageSize)
	}
	return page, size
}

func Offset(page, size int) int { return (page - 1) * size }

// WriteJSON encodes v before touching the response, so an encoding failure
// still produces a clean 500.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	write(w, status, "application/json", v)
}

func WriteGeoJSON(w http.ResponseWriter, status int, v any) {
	write(w, status, "application/geo+json", v)
}

func write(w http.ResponseWriter, status int, contentType string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}
