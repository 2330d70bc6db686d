package odds

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// Source answers pool-derived odds queries. The gateway satisfies it.
type Source interface {
	ImpliedOdds(ctx context.Context, raceID, driverID string) (float64, error)
}

// DefaultOdds is the multiplier used when neither the pool nor the cache
// has a value.
const DefaultOdds = 2.0

// Estimator resolves the implied parimutuel odds for a driver. The chain is
// asked first; a failure falls back to the last cached value, then to the
// fixed default. The result is always a finite positive multiplier.
type Estimator struct {
	gw     Source
	cache  Cache
	logger *zap.Logger
}

// NewEstimator builds an estimator. gw may be nil for an offline session.
func NewEstimator(gw Source, cache Cache, logger *zap.Logger) *Estimator {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{gw: gw, cache: cache, logger: logger}
}

// Estimate returns the current odds multiplier for a driver in a race.
func (e *Estimator) Estimate(ctx context.Context, raceID, driverID string) float64 {
	if e.gw != nil {
		odds, err := e.gw.ImpliedOdds(ctx, raceID, driverID)
		if err == nil && validOdds(odds) {
			e.cache.Set(ctx, raceID, driverID, odds)
			return odds
		}
		if err != nil {
			e.logger.Debug("implied odds query failed",
				zap.String("race_id", raceID),
				zap.String("driver_id", driverID),
				zap.Error(err))
		}
	}

	if odds, ok := e.cache.Get(ctx, raceID, driverID); ok && validOdds(odds) {
		return odds
	}
	return DefaultOdds
}

func validOdds(odds float64) bool {
	return odds >= 1 && !math.IsInf(odds, 0) && !math.IsNaN(odds)
}
