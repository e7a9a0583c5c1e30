package buildings

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"

	"github.com/openrentals/rentals-backend/internal/auth"
	"github.com/openrentals/rentals-backend/internal/logger"
	"github.com/openrentals/rentals-backend/internal/utils"
)

type LinkedProfile struct {
	UserID    string        `json:"user_id"`
	Username  string        `json:"username"`
	Email     string        `json:"email"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Profile   *auth.Profile `json:"profile"`
}

func (h *Handler) ListProfilesHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := h.load(w, r)
	if !ok {
		return
	}
	page, size := utils.ParsePage(r.URL.Query())
	out := utils.Page[LinkedProfile]{Page: page, PageSize: size, Results: []LinkedProfile{}}

	q := h.DB.WithContext(r.Context()).Model(&ProfileBuilding{}).Where("building_id = ?", b.ID).Session(&gorm.Session{})
	if err := q.Count(&out.Count).Error; err != nil {
		http.Error(w, "Failed to count profiles", http.StatusInternalServerError)
		return
	}

	var ids []string
	err := q.Order("user_id").Offset(utils.Offset(page, size)).Limit(size).Pluck("user_id", &ids).Error
	if err != nil {
		http.Error(w, "Failed to list profiles", http.StatusInternalServerError)
		return
	}
	var users []auth.User
	if len(ids) > 0 {
		err = h.DB.WithContext(r.Context()).Preload("Profile").
			Where("user_id IN ?", ids).Order("user_id").Find(&users).Error
		if err != nil {
			http.Error(w, "Failed to list profiles", http.StatusInternalServerError)
			return
		}
	}
	for _, u := range users {
		out.Results = append(out.Results, LinkedProfile{
			UserID:    u.UserID,
			Username:  u.Username,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Profile:   u.Profile,
		})
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

// LinkProfileHandler attaches the {user_id} profile to the building. Linking
// twice is not an error.
func (h *Handler) LinkProfileHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := h.load(w, r)
	if !ok || !h.authorize(w, r, b.ID) {
		return
	}
	userID, ok := h.profileOwner(w, r)
	if !ok {
		return
	}

	res := h.DB.WithContext(r.Context()).
		Where(ProfileBuilding{UserID: userID, BuildingID: b.ID}).
		FirstOrCreate(&ProfileBuilding{})
	if res.Error != nil {
		logger.FromContext(r.Context()).Error().Err(res.Error).Msg("link profile")
		http.Error(w, "Failed to link profile", http.StatusInternalServerError)
		return
	}
	msg := "Profile already associated with this building"
	if res.RowsAffected > 0 {
		msg = "Profile added to building successfully"
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (h *Handler) UnlinkProfileHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := h.load(w, r)
	if !ok || !h.authorize(w, r, b.ID) {
		return
	}
	userID, ok := h.profileOwner(w, r)
	if !ok {
		return
	}

	res := h.DB.WithContext(r.Context()).
		Where("user_id = ? AND building_id = ?", userID, b.ID).
		Delete(&ProfileBuilding{})
	if res.Error != nil {
		http.Error(w, "Failed to unlink profile", http.StatusInternalServerError)
		return
	}
	msg := "Profile removed from building successfully"
	if res.RowsAffected == 0 {
		msg = "Profile not associated with this building"
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (h *Handler) profileOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := chi.URLParam(r, "user_id")
	if userID == "me" {
		userID, _ = utils.GetUserIDFromContext(r.Context())
	}
	var p auth.Profile
	err := h.DB.WithContext(r.Context()).First(&p, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Profile not found", http.StatusNotFound)
		return "", false
	}
	if err != nil {
		http.Error(w, "Failed to load profile", http.StatusInternalServerError)
		return "", false
	}
	return userID, true
}

// ListUserBuildings serves /users/{user_id}/buildings: the buildings linked
// to that user's profile, paginated, or all of them with geojson=true.
func (h *Handler) ListUserBuildings(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.TargetUser(w, r)
	if !ok {
		return
	}
	var p auth.Profile
	if err := h.DB.WithContext(r.Context()).First(&p, "user_id = ?", userID).Error; err != nil {
		http.Error(w, "Profile not found", http.StatusNotFound)
		return
	}

	params := ParseParams(r.URL.Query())
	linked := func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN (?)", h.DB.Model(&ProfileBuilding{}).Select("building_id").Where("user_id = ?", userID))
	}

	if params.GeoJSON {
		var all []Building
		if err := h.DB.WithContext(r.Context()).Scopes(linked).Order("id").Find(&all).Error; err != nil {
			http.Error(w, "Failed to list buildings", http.StatusInternalServerError)
			return
		}
		utils.WriteGeoJSON(w, http.StatusOK, featureCollection(all))
		return
	}

	out := utils.Page[*geojson.Feature]{Page: params.Page, PageSize: params.PageSize, Results: []*geojson.Feature{}}
	if err := h.DB.WithContext(r.Context()).Model(&Building{}).Scopes(linked).Count(&out.Count).Error; err != nil {
		http.Error(w, "Failed to count buildings", http.StatusInternalServerError)
		return
	}
	var rows []Building
	err := h.DB.WithContext(r.Context()).Scopes(linked).Order("id").
		Offset(utils.Offset(params.Page, params.PageSize)).Limit(params.PageSize).
		Find(&rows).Error
	if err != nil {
		http.Error(w, "Failed to list buildings", http.StatusInternalServerError)
		return
	}
	for i := range rows {
		out.Results = append(out.Results, rows[i].Feature())
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

// Cleaner deletes buildings left without a linked profile. It satisfies
// auth.LinkCleaner.
type Cleaner struct{}

func (Cleaner) LinkedBuildings(tx *gorm.DB, userID string) ([]uint, error) {
	var ids []uint
	err := tx.Model(&ProfileBuilding{}).Where("user_id = ?", userID).Pluck("building_id", &ids).Error
	return ids, err
}

func (Cleaner) DeleteOrphans(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.
		Where("id IN ?", ids).
		Where("NOT EXISTS (SELECT 1 FROM rentals.profile_buildings pb WHERE pb.building_id = rentals.buildings.id)").
		Delete(&Building{}).Error
}

var _ auth.LinkCleaner = Cleaner{}
