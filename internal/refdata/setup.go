package refdata

import (
	"fmt"

	"github.com/openrentals/rentals-backend/internal/db"
	"gorm.io/gorm"
)

const Schema = "rentals"

func Init(d *gorm.DB) error {
	if err := db.EnsureExtension(d, "postgis"); err != nil {
		return fmt.Errorf("ensure postgis: %w", err)
	}
	if err := db.EnsureSchema(d, Schema); err != nil {
		return fmt.Errorf("ensure schema %s: %w", Schema, err)
	}
	if err := d.AutoMigrate(&District{}, &Shop{}, &BusStop{}, &Route{}); err != nil {
		return fmt.Errorf("migrate reference tables: %w", err)
	}
	return nil
}
