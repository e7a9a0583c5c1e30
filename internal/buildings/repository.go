package buildings

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/openrentals/rentals-backend/internal/proximity"
)

// ListQuery carries the already-parsed list filters. A nil price bound is
// not applied.
type ListQuery struct {
	District string
	PriceMin *float64
	PriceMax *float64
	Filter   proximity.Filter
	Offset   int
	Limit    int
}

type Repository interface {
	// List returns one page of matching buildings in id order and the
	// total number of matches.
	List(ctx context.Context, q ListQuery) ([]Building, int64, error)
	All(ctx context.Context) ([]Building, error)
}

type GormRepository struct {
	DB *gorm.DB
}

const locationColumn = "rentals.buildings.location"

func (q ListQuery) scope(tx *gorm.DB) *gorm.DB {
	if d := strings.TrimSpace(q.District); d != "" {
		tx = tx.Where("lower(rentals.buildings.district) = lower(?)", d)
	}
	if q.PriceMin != nil {
		tx = tx.Where("rentals.buildings.rental_price >= ?", *q.PriceMin)
	}
	if q.PriceMax != nil {
		tx = tx.Where("rentals.buildings.rental_price <= ?", *q.PriceMax)
	}
	return tx.Scopes(q.Filter.Scope(locationColumn))
}

func (r GormRepository) List(ctx context.Context, q ListQuery) ([]Building, int64, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&Building{}).Scopes(q.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []Building
	err := r.DB.WithContext(ctx).
		Scopes(q.scope).
		Order("rentals.buildings.id").
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r GormRepository) All(ctx context.Context) ([]Building, error) {
	var out []Building
	err := r.DB.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}
