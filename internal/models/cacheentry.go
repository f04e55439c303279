package models

import "time"

// CacheEntry is the last-known snapshot of a data slice kept for offline
// use. (UserID, CacheKey) is unique; entries are written via upsert.
type CacheEntry struct {
	UserID    string
	CacheKey  string
	CacheType string

	Data []byte

	LastSyncedAt time.Time
	// ExpiresAt is nil for entries without a TTL.
	ExpiresAt *time.Time
}

// IsExpired reports whether the entry's TTL has passed at the given instant.
// Entries without an expiry never expire.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// IsStale reports whether the entry was last synced longer than threshold
// ago. Clients use it to force a refresh before the entry expires.
func (e *CacheEntry) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(e.LastSyncedAt) > threshold
}
