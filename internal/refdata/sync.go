package refdata

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openrentals/rentals-backend/internal/db"
	"github.com/openrentals/rentals-backend/internal/geo"
)

var (
	ErrDistrictInUse    = errors.New("district is referenced by buildings")
	ErrDistrictNotFound = errors.New("district not found")
)

const batchSize = 500

// Sync writes ds into the reference tables in one transaction. POI tables
// are replaced; districts are upserted by name and districts missing from ds
// are deleted. Deleting a district that buildings still point at aborts the
// whole transaction with ErrDistrictInUse.
func Sync(ctx context.Context, gdb *gorm.DB, ds *geo.Dataset) error {
	if err := ds.Check(); err != nil {
		return err
	}
	districts, shops, stops, routes := fromDataset(ds)

	return gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		names := make([]string, 0, len(districts))
		for _, d := range districts {
			names = append(names, d.Name)
		}
		if len(districts) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"county", "boundary"}),
			}).CreateInBatches(&districts, batchSize).Error
			if err != nil {
				return fmt.Errorf("upsert districts: %w", err)
			}
		}

		stale := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if len(names) > 0 {
			stale = stale.Where("name NOT IN ?", names)
		}
		if err := stale.Delete(&District{}).Error; err != nil {
			if db.IsForeignKeyViolation(err) {
				return ErrDistrictInUse
			}
			return fmt.Errorf("delete stale districts: %w", err)
		}

		for _, table := range []string{Shop{}.TableName(), BusStop{}.TableName(), Route{}.TableName()} {
			if err := tx.Exec("TRUNCATE " + table + " RESTART IDENTITY").Error; err != nil {
				return fmt.Errorf("truncate %s: %w", table, err)
			}
		}
		if len(shops) > 0 {
			if err := tx.CreateInBatches(&shops, batchSize).Error; err != nil {
				return fmt.Errorf("insert shops: %w", err)
			}
		}
		if len(stops) > 0 {
			if err := tx.CreateInBatches(&stops, batchSize).Error; err != nil {
				return fmt.Errorf("insert bus stops: %w", err)
			}
		}
		if len(routes) > 0 {
			if err := tx.CreateInBatches(&routes, batchSize).Error; err != nil {
				return fmt.Errorf("insert routes: %w", err)
			}
		}
		return nil
	})
}

// DeleteDistrict removes one district by exact name.
func DeleteDistrict(ctx context.Context, gdb *gorm.DB, name string) error {
	res := gdb.WithContext(ctx).Where("name = ?", name).Delete(&District{})
	if res.Error != nil {
		if db.IsForeignKeyViolation(res.Error) {
			return ErrDistrictInUse
		}
		return fmt.Errorf("delete district %q: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDistrictNotFound
	}
	return nil
}
