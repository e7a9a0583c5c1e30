package buildings

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"

	"github.com/openrentals/rentals-backend/internal/auth"
	"github.com/openrentals/rentals-backend/internal/db"
	"github.com/openrentals/rentals-backend/internal/logger"
	"github.com/openrentals/rentals-backend/internal/middleware"
	"github.com/openrentals/rentals-backend/internal/proximity"
	"github.com/openrentals/rentals-backend/internal/utils"
)

type Handler struct {
	DB        *gorm.DB
	Repo      Repository
	Resolver  *proximity.Resolver
	Validator Validator
	Sessions  middleware.SessionFetcher
}

func (h *Handler) lister() *Lister { return &Lister{Repo: h.Repo, Resolver: h.Resolver} }

// ListHandler serves the paginated, filtered list. With geojson=true it
// returns every building as one FeatureCollection and ignores all filters.
func (h *Handler) ListHandler(w http.ResponseWriter, r *http.Request) {
	p := ParseParams(r.URL.Query())

	if p.GeoJSON {
		all, err := h.Repo.All(r.Context())
		if err != nil {
			logger.FromContext(r.Context()).Error().Err(err).Msg("export buildings")
			http.Error(w, "Failed to list buildings", http.StatusInternalServerError)
			return
		}
		utils.WriteGeoJSON(w, http.StatusOK, featureCollection(all))
		return
	}

	page, err := h.lister().List(r.Context(), p)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("list buildings")
		http.Error(w, "Failed to list buildings", http.StatusInternalServerError)
		return
	}
	utils.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Authentication credentials were not provided.", http.StatusUnauthorized)
		return
	}

	patch, err := DecodePatch(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid Request Format: %v", err), http.StatusBadRequest)
		return
	}
	if fe := patch.Check(h.Validator, nil); len(fe) > 0 {
		utils.WriteJSON(w, http.StatusBadRequest, fe)
		return
	}

	b := patch.Building()
	err = h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		var profile auth.Profile
		if err := tx.First(&profile, "user_id = ?", userID).Error; err != nil {
			return err
		}
		if err := tx.Omit("District").Create(b).Error; err != nil {
			return err
		}
		return tx.Create(&ProfileBuilding{UserID: userID, BuildingID: b.ID}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Profile not found for the user", http.StatusNotFound)
		return
	}
	if db.IsForeignKeyViolation(err) {
		districtMissing(w)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Str("user_id", userID).Msg("create building")
		http.Error(w, "Failed to create building", http.StatusInternalServerError)
		return
	}

	logger.FromContext(r.Context()).Info().Uint("building_id", b.ID).Str("district", b.DistrictName).Msg("building created")
	utils.WriteGeoJSON(w, http.StatusCreated, b.Feature())
}

// GetHandler returns one building as a Feature. Proximity parameters add
// nearby_pois; geojson=true wraps the feature in a FeatureCollection.
func (h *Handler) GetHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := h.load(w, r)
	if !ok {
		return
	}

	p := ParseParams(r.URL.Query())
	f := h.lister().feature(r.Context(), b, p.Constraints)
	if p.GeoJSON {
		fc := geojson.NewFeatureCollection()
		fc.Append(f)
		utils.WriteGeoJSON(w, http.StatusOK, fc)
		return
	}
	utils.WriteGeoJSON(w, http.StatusOK, f)
}

func (h *Handler) PatchHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := h.load(w, r)
	if !ok || !h.authorize(w, r, b.ID) {
		return
	}

	patch, err := DecodePatch(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid Request Format: %v", err), http.StatusBadRequest)
		return
	}
	if fe := patch.Check(h.Validator, b); len(fe) > 0 {
		utils.WriteJSON(w, http.StatusBadRequest, fe)
		return
	}

	cols := patch.Columns()
	err = h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if len(cols) > 0 {
			if err := tx.Model(&Building{}).Where("id = ?", b.ID).Updates(cols).Error; err != nil {
				return err
			}
		}
		return tx.First(b, b.ID).Error
	})
	if db.IsForeignKeyViolation(err) {
		districtMissing(w)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Uint("building_id", b.ID).Msg("update building")
		http.Error(w, "Failed to update building", http.StatusInternalServerError)
		return
	}
	utils.WriteGeoJSON(w, http.StatusOK, b.Feature())
}

func (h *Handler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := h.load(w, r)
	if !ok || !h.authorize(w, r, b.ID) {
		return
	}
	if err := h.DB.WithContext(r.Context()).Delete(&Building{}, b.ID).Error; err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Uint("building_id", b.ID).Msg("delete building")
		http.Error(w, "Failed to delete building", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildingID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	return uint(id), err == nil
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Building, bool) {
	id, ok := buildingID(r)
	if !ok {
		http.Error(w, "Building not found", http.StatusNotFound)
		return nil, false
	}
	var b Building
	err := h.DB.WithContext(r.Context()).First(&b, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Building not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "Failed to load building", http.StatusInternalServerError)
		return nil, false
	}
	return &b, true
}

// authorize lets admins and users linked to the building through.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, buildingID uint) bool {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Authentication credentials were not provided.", http.StatusUnauthorized)
		return false
	}
	if utils.IsAdmin(r.Context()) {
		return true
	}
	var n int64
	err := h.DB.WithContext(r.Context()).Model(&ProfileBuilding{}).
		Where("user_id = ? AND building_id = ?", userID, buildingID).
		Count(&n).Error
	if err != nil {
		http.Error(w, "Failed to check permissions", http.StatusInternalServerError)
		return false
	}
	if n == 0 {
		http.Error(w, "You do not have permission to modify this building.", http.StatusForbidden)
		return false
	}
	return true
}

func districtMissing(w http.ResponseWriter) {
	utils.WriteJSON(w, http.StatusBadRequest, FieldErrors{"district": {"District does not exist."}})
}
