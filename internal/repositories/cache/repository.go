// Package cache provides the device-local SQLite store for offline cache
// entries. Entries are keyed by (user, cache key) and written via upsert.
package cache

import (
	"context"
	"time"

	"github.com/dstrelkov/mobsync/internal/models"
)

// Repository is the persistence contract for cache entries.
type Repository interface {
	// Upsert inserts or replaces the entry for (UserID, CacheKey),
	// refreshing last_synced_at.
	Upsert(ctx context.Context, e *models.CacheEntry) error

	// Get returns the entry regardless of its expiry state, or
	// common.ErrNotFound. Callers inspect IsExpired themselves.
	Get(ctx context.Context, userID, cacheKey string) (*models.CacheEntry, error)

	// Delete removes one entry.
	Delete(ctx context.Context, userID, cacheKey string) error

	// DeleteByUser removes all of a user's entries and returns the count.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// SweepExpired removes all entries past their expiry at the given
	// instant and returns the count.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)

	// ListByUser returns all of a user's entries.
	ListByUser(ctx context.Context, userID string) ([]*models.CacheEntry, error)
}
