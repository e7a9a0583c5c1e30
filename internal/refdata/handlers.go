package refdata

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"

	"github.com/openrentals/rentals-backend/internal/geo"
	"github.com/openrentals/rentals-backend/internal/logger"
	"github.com/openrentals/rentals-backend/internal/middleware"
	"github.com/openrentals/rentals-backend/internal/utils"
)

type Handler struct {
	DB       *gorm.DB
	Store    *geo.Store
	Sessions middleware.SessionFetcher
}

type DistrictOut struct {
	Name   string `json:"name"`
	County string `json:"county"`
}

func (h *Handler) ListDistricts(w http.ResponseWriter, r *http.Request) {
	districts := h.Store.Snapshot().Districts()
	out := make([]DistrictOut, 0, len(districts))
	for _, d := range districts {
		out = append(out, DistrictOut{Name: d.Name, County: d.County})
	}

	utils.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) GetDistrict(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap := h.Store.Snapshot()
	d, ok := snap.District(name)
	if !ok {
		d, ok = snap.DistrictFold(name)
	}
	if !ok {
		http.Error(w, "District not found", http.StatusNotFound)
		return
	}

	f := geojson.NewFeature(d.Boundary)
	f.Properties["name"] = d.Name
	f.Properties["county"] = d.County

	utils.WriteGeoJSON(w, http.StatusOK, f)
}

func (h *Handler) DeleteDistrict(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := DeleteDistrict(r.Context(), h.DB, name)
	switch {
	case errors.Is(err, ErrDistrictNotFound):
		http.Error(w, "District not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrDistrictInUse):
		http.Error(w, "District is still referenced by buildings", http.StatusConflict)
		return
	case err != nil:
		logger.FromContext(r.Context()).Error().Err(err).Str("district", name).Msg("delete district")
		http.Error(w, "Failed to delete district", http.StatusInternalServerError)
		return
	}

	if _, err := Reload(r.Context(), h.Store); err != nil {
		http.Error(w, "District deleted but reload failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ReloadResponse struct {
	Version uint64     `json:"version"`
	Counts  geo.Counts `json:"counts"`
}

func (h *Handler) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := Reload(r.Context(), h.Store)
	if err != nil {
		http.Error(w, "Reload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, ReloadResponse{Version: snap.Version, Counts: snap.Counts()})
}
