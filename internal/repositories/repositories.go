package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"moodify/internal/models"
	"moodify/internal/shared"
)

// RunCache is a key-value store consulted to avoid reprocessing identical
// history windows.
type RunCache interface {
	// Get returns the cached value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	Close() error
}

// NewRunCache builds the cache backend selected by cfg. The "none" backend
// returns nil; callers treat a nil cache as disabled.
func NewRunCache(cfg shared.CacheConfig) (RunCache, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "sqlite":
		return NewSQLiteCache(cfg.Path)
	case "redis":
		return NewRedisCache(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", shared.ErrConfiguration, cfg.Backend)
	}
}

// Fingerprint derives a stable digest of a ranking. Two windows that produce
// the same ordered (track, count) sequence share a fingerprint.
func Fingerprint(ranked []models.TrackRanking) string {
	var buf strings.Builder
	for _, entry := range ranked {
		fmt.Fprintf(&buf, "%s:%d\n", entry.TrackID, entry.PlayCount)
	}
	sum := sha256.Sum256([]byte(buf.String()))
	return hex.EncodeToString(sum[:])
}
