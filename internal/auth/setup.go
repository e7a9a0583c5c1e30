package auth

import (
	"fmt"

	"github.com/openrentals/rentals-backend/internal/db"
	"gorm.io/gorm"
)

func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "app_auth"); err != nil {
		return fmt.Errorf("ensure schema app_auth: %w", err)
	}
	if err := d.AutoMigrate(&User{}, &Session{}, &Profile{}); err != nil {
		return fmt.Errorf("migrate auth tables: %w", err)
	}
	return nil
}
