package ingestor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rutas/internal/store"
	"rutas/pkg/catalogsrc"
)

type Fetcher interface {
	Fetch(ctx context.Context) (*catalogsrc.Result, error)
}

// Loader accepts catalog payloads and reports what is live.
type Loader interface {
	LoadCatalog(payload []byte) error
	Stats() store.CatalogStats
}

// SnapshotStore persists the last accepted payload outside the process.
type SnapshotStore interface {
	Save(ctx context.Context, payload []byte, fingerprint string) error
	Restore(ctx context.Context) ([]byte, string, error)
}

type CatalogIngestor struct {
	source         Fetcher
	loader         Loader
	snapshots      SnapshotStore
	updateInterval time.Duration
	logger         *slog.Logger
	onUpdate       func(context.Context, store.CatalogStats)

	ready   bool
	readyMu sync.RWMutex
}

// NewCatalogIngestor wires a source to the engine. snapshots may be nil.
func NewCatalogIngestor(source Fetcher, loader Loader, snapshots SnapshotStore, updateInterval time.Duration, logger *slog.Logger) *CatalogIngestor {
	return &CatalogIngestor{
		source:         source,
		loader:         loader,
		snapshots:      snapshots,
		updateInterval: updateInterval,
		logger:         logger.With("component", "catalog_ingestor"),
	}
}

// Start loads the catalog immediately and then on every interval until ctx
// is done. When the first fetch fails the last saved snapshot is loaded.
func (i *CatalogIngestor) Start(ctx context.Context) {
	if err := i.Update(ctx); err != nil && !i.IsReady() {
		i.restore(ctx)
	}

	ticker := time.NewTicker(i.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := i.Update(ctx); err != nil {
				i.logger.Warn("catalog update failed, keeping current catalog", "error", err)
			}
		}
	}
}

// Update fetches the source once and loads it when it changed.
func (i *CatalogIngestor) Update(ctx context.Context) error {
	start := time.Now()

	res, err := i.source.Fetch(ctx)
	if err != nil {
		i.logger.Error("failed to fetch catalog", "error", err)
		return err
	}
	if res.NotModified {
		i.logger.Debug("catalog source not modified")
		return nil
	}

	fingerprint := store.Fingerprint(res.Data)
	if current := i.loader.Stats(); current.IsLoaded && current.Fingerprint == fingerprint {
		i.logger.Debug("catalog unchanged", "fingerprint", fingerprint)
		i.setReady(true)
		return nil
	}

	if err := i.loader.LoadCatalog(res.Data); err != nil {
		i.logger.Error("catalog rejected", "fingerprint", fingerprint, "error", err)
		return err
	}

	if i.snapshots != nil {
		if err := i.snapshots.Save(ctx, res.Data, fingerprint); err != nil {
			i.logger.Warn("failed to save catalog snapshot", "error", err)
		}
	}

	i.setReady(true)
	stats := i.loader.Stats()
	if i.onUpdate != nil {
		i.onUpdate(ctx, stats)
	}

	i.logger.Info("catalog update completed",
		"fingerprint", fingerprint,
		"version", stats.Version,
		"generation", stats.Generation,
		"routes", stats.RoutesCount,
		"stops", stats.StopsCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (i *CatalogIngestor) restore(ctx context.Context) {
	if i.snapshots == nil {
		return
	}

	payload, fingerprint, err := i.snapshots.Restore(ctx)
	if err != nil {
		i.logger.Error("failed to restore catalog snapshot", "error", err)
		return
	}
	if payload == nil {
		i.logger.Info("no catalog snapshot to restore")
		return
	}
	if err := i.loader.LoadCatalog(payload); err != nil {
		i.logger.Error("catalog snapshot rejected", "fingerprint", fingerprint, "error", err)
		return
	}

	i.setReady(true)
	stats := i.loader.Stats()
	if i.onUpdate != nil {
		i.onUpdate(ctx, stats)
	}
	i.logger.Info("catalog restored from snapshot", "fingerprint", fingerprint, "routes", stats.RoutesCount)
}

func (i *CatalogIngestor) IsReady() bool {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.ready
}

func (i *CatalogIngestor) setReady(ready bool) {
	i.readyMu.Lock()
	defer i.readyMu.Unlock()
	i.ready = ready
}

// SetOnUpdate registers fn to run after a fetched or restored catalog goes live.
func (i *CatalogIngestor) SetOnUpdate(fn func(context.Context, store.CatalogStats)) {
	i.onUpdate = fn
}
