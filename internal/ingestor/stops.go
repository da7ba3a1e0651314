package ingestor

import (
	"context"
	"log/slog"
	"time"

	"rutas/internal/spatial"
)

// StopsTarget receives supplementary stop coordinates.
type StopsTarget interface {
	SetSupplementaryStops(stops map[string][2]float64) int
}

// StopsIngestor keeps the supplementary stop coordinates in sync with a
// {"name": [lat, lng]} document. Without a source the built-in stops are used.
type StopsIngestor struct {
	source       Fetcher
	target       StopsTarget
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewStopsIngestor(source Fetcher, target StopsTarget, pollInterval time.Duration, logger *slog.Logger) *StopsIngestor {
	return &StopsIngestor{
		source:       source,
		target:       target,
		pollInterval: pollInterval,
		logger:       logger.With("component", "stops_ingestor"),
	}
}

func (i *StopsIngestor) Run(ctx context.Context) {
	if i.source == nil {
		n := i.target.SetSupplementaryStops(spatial.KnownStops)
		i.logger.Info("using built-in stop coordinates", "stops", n)
		return
	}

	if err := i.poll(ctx); err != nil {
		n := i.target.SetSupplementaryStops(spatial.KnownStops)
		i.logger.Warn("stops source unavailable, using built-in coordinates", "error", err, "stops", n)
	}

	ticker := time.NewTicker(i.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := i.poll(ctx); err != nil {
				i.logger.Warn("stops refresh failed", "error", err)
			}
		}
	}
}

func (i *StopsIngestor) poll(ctx context.Context) error {
	res, err := i.source.Fetch(ctx)
	if err != nil {
		return err
	}
	if res.NotModified {
		return nil
	}

	stops, err := spatial.ParseStops(res.Data)
	if err != nil {
		return err
	}

	n := i.target.SetSupplementaryStops(stops)
	i.logger.Debug("poll completed", "received", len(stops), "accepted", n)
	return nil
}
