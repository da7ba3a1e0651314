package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CatalogSnapshotter keeps the last accepted catalog payload in Redis so
// a restarted instance can serve before its source is reachable.
type CatalogSnapshotter struct {
	cache  *RedisCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCatalogSnapshotter(cache *RedisCache, ttl time.Duration, logger *slog.Logger) *CatalogSnapshotter {
	return &CatalogSnapshotter{
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "catalog_snapshot"),
	}
}

// Save stores payload and its fingerprint together.
func (s *CatalogSnapshotter) Save(ctx context.Context, payload []byte, fingerprint string) error {
	start := time.Now()

	err := s.cache.SetMany(ctx, map[string][]byte{
		KeyCatalogSnapshot:    payload,
		KeyCatalogFingerprint: []byte(fingerprint),
	}, s.ttl)
	if err != nil {
		return fmt.Errorf("save catalog snapshot: %w", err)
	}

	s.logger.Info("catalog snapshot saved",
		"fingerprint", fingerprint,
		"size_bytes", len(payload),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Restore returns the saved payload and fingerprint, or nil when none exists.
func (s *CatalogSnapshotter) Restore(ctx context.Context) ([]byte, string, error) {
	payload, err := s.cache.Get(ctx, KeyCatalogSnapshot)
	if err != nil {
		return nil, "", fmt.Errorf("restore catalog snapshot: %w", err)
	}
	if payload == nil {
		return nil, "", nil
	}

	fp, err := s.cache.Get(ctx, KeyCatalogFingerprint)
	if err != nil {
		return nil, "", fmt.Errorf("restore catalog fingerprint: %w", err)
	}
	return payload, string(fp), nil
}
