package refdata

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/openrentals/rentals-backend/internal/geo"
)

// DBSource reads the reference tables written by Sync.
type DBSource struct {
	DB *gorm.DB
}

func (s DBSource) Load(ctx context.Context) (*geo.Dataset, error) {
	tx := s.DB.WithContext(ctx)

	var districts []District
	if err := tx.Order("name").Find(&districts).Error; err != nil {
		return nil, fmt.Errorf("load districts: %w", err)
	}
	var shops []Shop
	if err := tx.Order("id").Find(&shops).Error; err != nil {
		return nil, fmt.Errorf("load shops: %w", err)
	}
	var stops []BusStop
	if err := tx.Order("id").Find(&stops).Error; err != nil {
		return nil, fmt.Errorf("load bus stops: %w", err)
	}
	var routes []Route
	if err := tx.Order("id").Find(&routes).Error; err != nil {
		return nil, fmt.Errorf("load routes: %w", err)
	}
	return toDataset(districts, shops, stops, routes), nil
}
