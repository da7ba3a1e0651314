package cache

import (
	"context"
	"log/slog"
	"time"

	"rutas/internal/domain"
)

// JourneyCache stores search results per catalog fingerprint.
type JourneyCache struct {
	cache  *RedisCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewJourneyCache(cache *RedisCache, ttl time.Duration, logger *slog.Logger) *JourneyCache {
	return &JourneyCache{
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "journey_cache"),
	}
}

func (c *JourneyCache) Get(ctx context.Context, fingerprint, origin, dest string) ([]domain.Journey, bool, error) {
	var journeys []domain.Journey
	ok, err := c.cache.GetJSON(ctx, KeyJourney(fingerprint, origin, dest), &journeys)
	if err != nil || !ok {
		return nil, false, err
	}
	return journeys, true, nil
}

func (c *JourneyCache) Put(ctx context.Context, fingerprint, origin, dest string, journeys []domain.Journey) error {
	return c.cache.SetJSON(ctx, KeyJourney(fingerprint, origin, dest), journeys, c.ttl)
}

// Purge drops all cached results. Entries of older catalogs would only
// expire otherwise.
func (c *JourneyCache) Purge(ctx context.Context) {
	n, err := c.cache.DeletePattern(ctx, journeyPattern)
	if err != nil {
		c.logger.Warn("journey cache purge failed", "error", err)
		return
	}
	c.logger.Info("journey cache purged", "keys", n)
}
