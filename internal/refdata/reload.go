package refdata

import (
	"context"

	"github.com/openrentals/rentals-backend/internal/geo"
	"github.com/openrentals/rentals-backend/internal/logger"
	"github.com/openrentals/rentals-backend/internal/metrics"
)

// Reload refreshes store from its source and publishes the result to the
// store metrics.
func Reload(ctx context.Context, store *geo.Store) (*geo.Snapshot, error) {
	snap, err := store.Load(ctx)
	metrics.StoreReload(err)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("reference data reload failed")
		return nil, err
	}

	c := snap.Counts()
	metrics.SetStoreFeatures("districts", c.Districts)
	metrics.SetStoreFeatures("shops", c.Shops)
	metrics.SetStoreFeatures("bus_stops", c.BusStops)
	metrics.SetStoreFeatures("routes", c.Routes)
	logger.FromContext(ctx).Info().
		Uint64("version", snap.Version).
		Int("districts", c.Districts).
		Int("shops", c.Shops).
		Int("bus_stops", c.BusStops).
		Int("routes", c.Routes).
		Msg("reference data loaded")
	return snap, nil
}
