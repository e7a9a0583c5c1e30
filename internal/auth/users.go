package auth

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/openrentals/rentals-backend/internal/logger"
	"github.com/openrentals/rentals-backend/internal/utils"
)

// UserPatch lists the user fields a PATCH may touch. Phone and address are
// forwarded to the profile.
type UserPatch struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      *string `json:"role"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
}

type ProfilePatch struct {
	PhoneNumber *string `json:"phone_number"`
	Address     *string `json:"address"`
}

func decodeStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// TargetUser resolves the {user_id} path parameter, mapping "me" to the
// caller. Callers other than the target itself need the admin role.
func TargetUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	target := chi.URLParam(r, "user_id")
	if target == "" || target == "me" {
		return caller, true
	}
	if target != caller && !utils.IsAdmin(r.Context()) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return "", false
	}
	return target, true
}

func (h *Handler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	page, size := utils.ParsePage(r.URL.Query())

	out := utils.Page[User]{Page: page, PageSize: size, Results: []User{}}
	q := h.DB.WithContext(r.Context()).Model(&User{}).Session(&gorm.Session{})
	if err := q.Count(&out.Count).Error; err != nil {
		http.Error(w, "Failed to count users", http.StatusInternalServerError)
		return
	}
	err := q.Preload("Profile").
		Order("date_joined, user_id").
		Offset(utils.Offset(page, size)).
		Limit(size).
		Find(&out.Results).Error
	if err != nil {
		http.Error(w, "Failed to list users", http.StatusInternalServerError)
		return
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := TargetUser(w, r)
	if !ok {
		return
	}
	var user User
	err := h.DB.WithContext(r.Context()).Preload("Profile").First(&user, "user_id = ?", userID).Error
	if isNotFound(err) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) PatchUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := TargetUser(w, r)
	if !ok {
		return
	}
	var patch UserPatch
	if err := decodeStrict(r, &patch); err != nil {
		http.Error(w, fmt.Sprintf("Invalid Request Format: %v", err), http.StatusBadRequest)
		return
	}
	if patch.Role != nil && !utils.IsAdmin(r.Context()) {
		http.Error(w, "Forbidden: admin access required", http.StatusForbidden)
		return
	}
	if patch.Role != nil && *patch.Role != "user" && *patch.Role != "admin" {
		http.Error(w, "role must be user or admin", http.StatusBadRequest)
		return
	}
	if patch.Phone != nil && len(*patch.Phone) > 15 {
		http.Error(w, "phone_number must be at most 15 characters", http.StatusBadRequest)
		return
	}

	userCols := map[string]any{}
	setIf(userCols, "email", patch.Email)
	setIf(userCols, "first_name", patch.FirstName)
	setIf(userCols, "last_name", patch.LastName)
	setIf(userCols, "role", patch.Role)
	profileCols := map[string]any{}
	setIf(profileCols, "phone_number", patch.Phone)
	setIf(profileCols, "address", patch.Address)

	var user User
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "user_id = ?", userID).Error; err != nil {
			return err
		}
		if len(userCols) > 0 {
			if err := tx.Model(&User{}).Where("user_id = ?", userID).Updates(userCols).Error; err != nil {
				return err
			}
		}
		if len(profileCols) > 0 {
			res := tx.Model(&Profile{}).Where("user_id = ?", userID).Updates(profileCols)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return tx.Create(&Profile{
					UserID:      userID,
					PhoneNumber: deref(patch.Phone),
					Address:     deref(patch.Address),
				}).Error
			}
		}
		return tx.Preload("Profile").First(&user, "user_id = ?", userID).Error
	})
	if isNotFound(err) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Str("user_id", userID).Msg("patch user")
		http.Error(w, "Failed to update user", http.StatusInternalServerError)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := TargetUser(w, r)
	if !ok {
		return
	}
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		linked, err := h.linked(tx, userID)
		if err != nil {
			return err
		}
		res := tx.Where("user_id = ?", userID).Delete(&User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return h.deleteOrphans(tx, linked)
	})
	if isNotFound(err) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Str("user_id", userID).Msg("delete user")
		http.Error(w, "Failed to delete user", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := TargetUser(w, r)
	if !ok {
		return
	}
	var p Profile
	err := h.DB.WithContext(r.Context()).First(&p, "user_id = ?", userID).Error
	if isNotFound(err) {
		http.Error(w, "Profile not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load profile", http.StatusInternalServerError)
		return
	}
	utils.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) PatchProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := TargetUser(w, r)
	if !ok {
		return
	}
	var patch ProfilePatch
	if err := decodeStrict(r, &patch); err != nil {
		http.Error(w, fmt.Sprintf("Invalid Request Format: %v", err), http.StatusBadRequest)
		return
	}
	if patch.PhoneNumber != nil && len(*patch.PhoneNumber) > 15 {
		http.Error(w, "phone_number must be at most 15 characters", http.StatusBadRequest)
		return
	}

	cols := map[string]any{}
	setIf(cols, "phone_number", patch.PhoneNumber)
	setIf(cols, "address", patch.Address)

	var p Profile
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, "user_id = ?", userID).Error; err != nil {
			return err
		}
		if len(cols) == 0 {
			return nil
		}
		if err := tx.Model(&p).Updates(cols).Error; err != nil {
			return err
		}
		return tx.First(&p, "user_id = ?", userID).Error
	})
	if isNotFound(err) {
		http.Error(w, "Profile not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to update profile", http.StatusInternalServerError)
		return
	}
	utils.WriteJSON(w, http.StatusOK, p)
}

// DeleteProfileHandler drops the profile and every building that no other
// profile is linked to.
func (h *Handler) DeleteProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := TargetUser(w, r)
	if !ok {
		return
	}
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		linked, err := h.linked(tx, userID)
		if err != nil {
			return err
		}
		res := tx.Where("user_id = ?", userID).Delete(&Profile{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return h.deleteOrphans(tx, linked)
	})
	if isNotFound(err) {
		http.Error(w, "Profile not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Str("user_id", userID).Msg("delete profile")
		http.Error(w, "Failed to delete profile", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) linked(tx *gorm.DB, userID string) ([]uint, error) {
	if h.Links == nil {
		return nil, nil
	}
	return h.Links.LinkedBuildings(tx, userID)
}

func (h *Handler) deleteOrphans(tx *gorm.DB, ids []uint) error {
	if h.Links == nil || len(ids) == 0 {
		return nil
	}
	return h.Links.DeleteOrphans(tx, ids)
}

func setIf(cols map[string]any, col string, v *string) {
	if v != nil {
		cols[col] = *v
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
