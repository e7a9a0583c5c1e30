package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/openrentals/rentals-backend/internal/db"
	"github.com/openrentals/rentals-backend/internal/logger"
	"github.com/openrentals/rentals-backend/internal/middleware"
	"github.com/openrentals/rentals-backend/internal/utils"
)

const sessionCookie = "session_id"

// LinkCleaner removes buildings left without any linked profile. It runs on
// the caller's transaction.
type LinkCleaner interface {
	LinkedBuildings(tx *gorm.DB, userID string) ([]uint, error)
	DeleteOrphans(tx *gorm.DB, ids []uint) error
}

type Handler struct {
	DB         *gorm.DB
	SessionTTL time.Duration
	Sessions   middleware.SessionFetcher
	Links      LinkCleaner
	LoginRate  float64
	LoginBurst int
}

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}
	if problems := PasswordProblems(req.Password); len(problems) > 0 {
		utils.WriteJSON(w, http.StatusBadRequest, map[string][]string{"errors": problems})
		return
	}
	if len(req.PhoneNumber) > 15 {
		http.Error(w, "phone_number must be at most 15 characters", http.StatusBadRequest)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Server error hashing password", http.StatusInternalServerError)
		return
	}

	user := User{
		UserID:         utils.GenerateUUID(),
		Username:       req.Username,
		HashedPassword: string(hashed),
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Role:           "user",
	}
	err = h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Profile", "Session").Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&Profile{
			UserID:      user.UserID,
			PhoneNumber: req.PhoneNumber,
			Address:     req.Address,
		}).Error
	})
	if db.IsUniqueViolation(err) {
		http.Error(w, "Username already taken", http.StatusConflict)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("register user")
		http.Error(w, "Failed to register user", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]string{
		"user_id":  user.UserID,
		"username": user.Username,
	})
}

type LoginResponse struct {
	Access   string `json:"access"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Invalid Data", http.StatusBadRequest)
		return
	}

	var user User
	if err := h.DB.WithContext(r.Context()).First(&user, "username = ?", creds.Username).Error; err != nil {
		http.Error(w, "Invalid Credentials", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(creds.Password)); err != nil {
		http.Error(w, "Invalid Credentials", http.StatusUnauthorized)
		return
	}

	now := time.Now()
	session := Session{
		SessionID: utils.GenerateUUID(),
		UserID:    user.UserID,
		ExpiresAt: now.Add(h.SessionTTL),
	}
	err := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		// One live session per user; logging in again replaces it.
		if err := tx.Where("user_id = ?", user.UserID).Delete(&Session{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		return tx.Model(&User{}).Where("user_id = ?", user.UserID).Update("last_login", now).Error
	})
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Str("user_id", user.UserID).Msg("create session")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.SessionID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})

	utils.WriteJSON(w, http.StatusOK, LoginResponse{
		Access:   session.SessionID,
		UserID:   user.UserID,
		Username: user.Username,
	})
}

func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.SessionToken(r)
	if !ok {
		http.Error(w, "Couldn't find cookie", http.StatusUnauthorized)
		return
	}

	res := h.DB.WithContext(r.Context()).Where("session_id = ?", token).Delete(&Session{})
	if res.Error != nil {
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}
	if res.RowsAffected == 0 {
		http.Error(w, "Couldn't find session", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		MaxAge: -1,
		Path:   "/",
	})
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Logout successful\n"))
}

type MeResponse struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Email    string   `json:"email"`
	Profile  *Profile `json:"profile,omitempty"`
}

func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var user User
	err := h.DB.WithContext(r.Context()).Preload("Profile").First(&user, "user_id = ?", userID).Error
	if err != nil {
		http.Error(w, "Couldn't find user", http.StatusNotFound)
		return
	}

	utils.WriteJSON(w, http.StatusOK, MeResponse{
		UserID:   user.UserID,
		Username: user.Username,
		Role:     user.Role,
		Email:    user.Email,
		Profile:  user.Profile,
	})
}

func (h *Handler) PasswordHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid Request Format", http.StatusBadRequest)
		return
	}

	var user User
	if err := h.DB.WithContext(r.Context()).First(&user, "user_id = ?", userID).Error; err != nil {
		http.Error(w, "Couldn't find user", http.StatusNotFound)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.OldPassword)); err != nil {
		http.Error(w, "Invalid Credentials", http.StatusUnauthorized)
		return
	}
	if problems := PasswordProblems(req.NewPassword); len(problems) > 0 {
		utils.WriteJSON(w, http.StatusBadRequest, map[string][]string{"errors": problems})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Server error hashing password", http.StatusInternalServerError)
		return
	}
	err = h.DB.WithContext(r.Context()).Model(&User{}).
		Where("user_id = ?", userID).
		Update("hashed_password", string(hashed)).Error
	if err != nil {
		http.Error(w, "Failed to update password", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func isNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }
