// Package querylog records searches that found no journey so curators can
// spot missing or misspelled stop names in the catalog.
package querylog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"rutas/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const DefaultLimit = 20

type UnmatchedQuery struct {
	Origin            string    `json:"origin"`
	Dest              string    `json:"dest"`
	Hits              int       `json:"hits"`
	FirstSeen         time.Time `json:"first_seen"`
	LastSeen          time.Time `json:"last_seen"`
	CatalogGeneration uint64    `json:"catalog_generation"`
}

type Recorder struct {
	conn    *sql.DB
	writeMu sync.Mutex
	now     func() time.Time
	logger  *slog.Logger
}

// Open opens (or creates) the SQLite database at path and ensures the schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Recorder, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids busy errors.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	r := &Recorder{
		conn:   conn,
		now:    time.Now,
		logger: logger.With("component", "query_log"),
	}
	r.logger.Info("query log opened", "path", path)
	return r, nil
}

func (r *Recorder) Close() error {
	return r.conn.Close()
}

// Record counts one search without results. Queries are stored normalized
// so spelling variants that differ only in case or padding share a row.
func (r *Recorder) Record(ctx context.Context, origin, dest string, generation uint64) error {
	origin, dest = domain.NormalizeName(origin), domain.NormalizeName(dest)
	if origin == "" && dest == "" {
		return nil
	}
	now := r.now().Unix()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO unmatched_queries (origin, dest, hits, first_seen, last_seen, catalog_generation)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT (origin, dest) DO UPDATE SET
			hits = hits + 1,
			last_seen = excluded.last_seen,
			catalog_generation = excluded.catalog_generation`,
		origin, dest, now, now, int64(generation),
	)
	if err != nil {
		return fmt.Errorf("record unmatched query: %w", err)
	}
	return nil
}

// Top returns the most frequent unmatched queries, most recent first on ties.
func (r *Recorder) Top(ctx context.Context, limit int) ([]UnmatchedQuery, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := r.conn.QueryContext(ctx, `
		SELECT origin, dest, hits, first_seen, last_seen, catalog_generation
		FROM unmatched_queries
		ORDER BY hits DESC, last_seen DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unmatched: %w", err)
	}
	defer rows.Close()

	result := make([]UnmatchedQuery, 0, limit)
	for rows.Next() {
		var (
			q           UnmatchedQuery
			first, last int64
			gen         int64
		)
		if err := rows.Scan(&q.Origin, &q.Dest, &q.Hits, &first, &last, &gen); err != nil {
			return nil, fmt.Errorf("scan unmatched: %w", err)
		}
		q.FirstSeen = time.Unix(first, 0).UTC()
		q.LastSeen = time.Unix(last, 0).UTC()
		q.CatalogGeneration = uint64(gen)
		result = append(result, q)
	}
	return result, rows.Err()
}

// Prune deletes entries not seen since before cutoff.
func (r *Recorder) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	res, err := r.conn.ExecContext(ctx, `DELETE FROM unmatched_queries WHERE last_seen < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune unmatched: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.logger.Info("pruned unmatched queries", "rows", n)
	}
	return n, nil
}
