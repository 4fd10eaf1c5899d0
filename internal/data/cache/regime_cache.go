// Package cache provides the Redis-backed boundary cache serving
// latestRegime/latestFeatures lookups to collaborators that do not own
// the detector.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/quantfall/tradegate/internal/domain/regime"
	"github.com/quantfall/tradegate/internal/models"
)

const (
	regimeKeyPrefix   = "regime:latest:"
	featuresKeyPrefix = "features:latest:"
)

// RegimeCache stores the latest regime and feature window per symbol.
type RegimeCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRegimeCache creates a cache with the given entry TTL.
func NewRegimeCache(rdb *redis.Client, ttl time.Duration) *RegimeCache {
	return &RegimeCache{rdb: rdb, ttl: ttl}
}

// SetRegime publishes a freshly detected regime.
func (c *RegimeCache) SetRegime(ctx context.Context, r regime.MarketRegime) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal regime: %w", err)
	}
	if err := c.rdb.Set(ctx, regimeKeyPrefix+r.Symbol, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache regime for %s: %w", r.Symbol, err)
	}
	return nil
}

// LatestRegime returns the cached regime for a symbol. The second return
// is false on a cache miss.
func (c *RegimeCache) LatestRegime(ctx context.Context, symbol string) (regime.MarketRegime, bool, error) {
	payload, err := c.rdb.Get(ctx, regimeKeyPrefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return regime.MarketRegime{}, false, nil
	}
	if err != nil {
		return regime.MarketRegime{}, false, fmt.Errorf("fetch regime for %s: %w", symbol, err)
	}

	var r regime.MarketRegime
	if err := json.Unmarshal(payload, &r); err != nil {
		return regime.MarketRegime{}, false, fmt.Errorf("decode cached regime for %s: %w", symbol, err)
	}
	return r, true, nil
}

// SetFeatures publishes the recent feature window for a symbol.
func (c *RegimeCache) SetFeatures(ctx context.Context, symbol string, features []models.MicrostructuralFeature) error {
	payload, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	if err := c.rdb.Set(ctx, featuresKeyPrefix+symbol, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache features for %s: %w", symbol, err)
	}
	return nil
}

// LatestFeatures returns the cached feature window for a symbol.
func (c *RegimeCache) LatestFeatures(ctx context.Context, symbol string) ([]models.MicrostructuralFeature, bool, error) {
	payload, err := c.rdb.Get(ctx, featuresKeyPrefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch features for %s: %w", symbol, err)
	}

	var features []models.MicrostructuralFeature
	if err := json.Unmarshal(payload, &features); err != nil {
		return nil, false, fmt.Errorf("decode cached features for %s: %w", symbol, err)
	}
	return features, true, nil
}
