package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"rutas/internal/domain"
)

const (
	KeyCatalogSnapshot    = "catalog:snapshot"
	KeyCatalogFingerprint = "catalog:fingerprint"

	journeyPattern = "journey:*"
)

// KeyJourney identifies cached search results for one catalog payload.
// Queries that normalize to the same names share a key.
func KeyJourney(fingerprint, origin, dest string) string {
	if len(fingerprint) > 16 {
		fingerprint = fingerprint[:16]
	}
	q := domain.NormalizeName(origin) + "\x00" + domain.NormalizeName(dest)
	return fmt.Sprintf("journey:%s:%016x", fingerprint, xxhash.Sum64String(q))
}
