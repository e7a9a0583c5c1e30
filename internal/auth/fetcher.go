package auth

import (
	"time"

	"gorm.io/gorm"

	"github.com/openrentals/rentals-backend/internal/utils"
)

type SessionInfo struct {
	DB *gorm.DB
}

func (si SessionInfo) FindSessionByID(id string) (utils.SessionData, error) {
	var row struct {
		UserID    string
		Role      string
		ExpiresAt time.Time
	}

	err := si.DB.Table("app_auth.sessions AS s").
		Select("s.user_id, u.role, s.expires_at").
		Joins("JOIN app_auth.users AS u ON u.user_id = s.user_id").
		Where("s.session_id = ?", id).
		Take(&row).Error
	if err != nil {
		return utils.SessionData{}, err
	}

	return utils.SessionData{
		UserID:    row.UserID,
		Role:      row.Role,
		ExpiresAt: row.ExpiresAt,
	}, nil
}
