package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rutas/internal/domain"
)

// MaxPayloadBytes bounds the size of a catalog document accepted by Load.
const MaxPayloadBytes = 10 << 20

// Snapshot is one immutable generation of the catalog. Routes and the
// lookup are never modified after the snapshot is published.
type Snapshot struct {
	Routes      []*domain.Route
	Version     string
	Generation  uint64
	Fingerprint string
	LoadedAt    time.Time

	byID       map[string]*domain.Route
	stopsCount int
}

// Route returns the shared route with the given id. Callers must not mutate it.
func (s *Snapshot) Route(id string) (*domain.Route, bool) {
	r, ok := s.byID[id]
	return r, ok
}

type CatalogStore struct {
	mu         sync.RWMutex
	current    *Snapshot
	generation uint64
	logger     *slog.Logger
}

func NewCatalogStore(logger *slog.Logger) *CatalogStore {
	return &CatalogStore{
		logger: logger.With("component", "catalog_store"),
	}
}

// Load parses, validates and publishes a new catalog. On any error the
// previously published catalog stays live.
func (s *CatalogStore) Load(payload []byte) error {
	start := time.Now()

	next, err := buildSnapshot(payload)
	if err != nil {
		s.logger.Warn("catalog rejected", "error", err, "size_bytes", len(payload))
		return err
	}

	err = s.withWriteLock(func() {
		s.generation++
		next.Generation = s.generation
		s.current = next
	})
	if err != nil {
		return err
	}

	s.logger.Info("catalog loaded",
		"version", next.Version,
		"generation", next.Generation,
		"routes", len(next.Routes),
		"stops", next.stopsCount,
		"fingerprint", next.Fingerprint,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func buildSnapshot(payload []byte) (*Snapshot, error) {
	if len(payload) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), MaxPayloadBytes)
	}

	var candidate domain.Catalog
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return nil, &ParseError{Err: err}
	}

	if err := Validate(&candidate); err != nil {
		return nil, err
	}

	if len(candidate.Routes) == 0 {
		return nil, ErrEmptyCatalog
	}

	snap := &Snapshot{
		Routes:      candidate.Routes,
		Version:     candidate.Version,
		Fingerprint: Fingerprint(payload),
		LoadedAt:    time.Now(),
		byID:        make(map[string]*domain.Route, len(candidate.Routes)),
	}
	for _, route := range candidate.Routes {
		route.Normalize()
		snap.byID[route.ID] = route
		snap.stopsCount += len(route.Stops)
	}

	return snap, nil
}

// Fingerprint returns the hex sha256 of a catalog payload.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Snapshot returns the live catalog generation.
func (s *CatalogStore) Snapshot() (*Snapshot, error) {
	var snap *Snapshot
	if err := s.withReadLock(func() { snap = s.current }); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrNotLoaded
	}
	return snap, nil
}

func (s *CatalogStore) GetAllRoutes() ([]*domain.Route, error) {
	var result []*domain.Route
	err := s.withReadLock(func() {
		if s.current == nil {
			return
		}
		result = make([]*domain.Route, 0, len(s.current.Routes))
		for _, route := range s.current.Routes {
			result = append(result, route.Clone())
		}
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNotLoaded
	}
	return result, nil
}

func (s *CatalogStore) GetRouteByID(id string) (*domain.Route, bool, error) {
	var (
		route  *domain.Route
		loaded bool
	)
	err := s.withReadLock(func() {
		if s.current == nil {
			return
		}
		loaded = true
		if r, ok := s.current.byID[id]; ok {
			route = r.Clone()
		}
	})
	if err != nil {
		return nil, false, err
	}
	if !loaded {
		return nil, false, ErrNotLoaded
	}
	return route, route != nil, nil
}

// withWriteLock runs fn under the exclusive lock. A panic inside fn is
// reported as ErrLockUnavailable and the lock is always released, so a
// failed writer never blocks later callers.
func (s *CatalogStore) withWriteLock(fn func()) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while holding catalog write lock", "panic", r)
			err = fmt.Errorf("%w: %v", ErrLockUnavailable, r)
		}
	}()

	fn()
	return nil
}

func (s *CatalogStore) withReadLock(fn func()) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while holding catalog read lock", "panic", r)
			err = fmt.Errorf("%w: %v", ErrLockUnavailable, r)
		}
	}()

	fn()
	return nil
}

type CatalogStats struct {
	RoutesCount int       `json:"routes_count"`
	StopsCount  int       `json:"stops_count"`
	Version     string    `json:"version"`
	Generation  uint64    `json:"generation"`
	Fingerprint string    `json:"fingerprint"`
	LastUpdate  time.Time `json:"last_update"`
	IsLoaded    bool      `json:"is_loaded"`
}

func (s *CatalogStore) GetStats() CatalogStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return CatalogStats{}
	}
	return CatalogStats{
		RoutesCount: len(s.current.Routes),
		StopsCount:  s.current.stopsCount,
		Version:     s.current.Version,
		Generation:  s.current.Generation,
		Fingerprint: s.current.Fingerprint,
		LastUpdate:  s.current.LoadedAt,
		IsLoaded:    true,
	}
}
