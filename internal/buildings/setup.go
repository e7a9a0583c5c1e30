package buildings

import (
	"fmt"

	"gorm.io/gorm"
)

// Init must run after the auth and refdata tables exist.
func Init(d *gorm.DB) error {
	if err := d.AutoMigrate(&Building{}, &ProfileBuilding{}); err != nil {
		return fmt.Errorf("migrate building tables: %w", err)
	}
	return nil
}
