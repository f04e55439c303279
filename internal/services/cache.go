package services

import (
	"context"
	"time"

	"github.com/dstrelkov/mobsync/internal/logging"
	"github.com/dstrelkov/mobsync/internal/models"
	"github.com/dstrelkov/mobsync/internal/repositories/cache"
)

// CacheService maintains the device-local offline cache: storing synced
// snapshots, serving them while offline and expiring stale ones.
type CacheService struct {
	repo   cache.Repository
	logger logging.Logger
}

// NewCacheService creates a CacheService.
func NewCacheService(repo cache.Repository, logger logging.Logger) *CacheService {
	return &CacheService{repo: repo, logger: logger}
}

// Put stores (or refreshes) a cache entry. A nil ttl keeps the entry
// until it is explicitly invalidated.
func (s *CacheService) Put(ctx context.Context, userID, cacheKey, cacheType string, data []byte, ttl *time.Duration) (*models.CacheEntry, error) {
	now := time.Now().UTC()
	e := &models.CacheEntry{
		UserID:       userID,
		CacheKey:     cacheKey,
		CacheType:    cacheType,
		Data:         data,
		LastSyncedAt: now,
	}
	if ttl != nil {
		exp := now.Add(*ttl)
		e.ExpiresAt = &exp
	}
	if err := s.repo.Upsert(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Get returns a cache entry even when it is past its expiry; the caller
// decides whether expired data is still acceptable to show.
func (s *CacheService) Get(ctx context.Context, userID, cacheKey string) (*models.CacheEntry, error) {
	return s.repo.Get(ctx, userID, cacheKey)
}

// Invalidate drops a single entry.
func (s *CacheService) Invalidate(ctx context.Context, userID, cacheKey string) error {
	return s.repo.Delete(ctx, userID, cacheKey)
}

// InvalidateAll drops every entry of a user and returns the count.
func (s *CacheService) InvalidateAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "cache invalidated", "user_id", userID, "count", n)
	return n, nil
}

// SweepExpired removes all entries past their expiry and returns the
// count.
func (s *CacheService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug(ctx, "expired cache entries swept", "count", n)
	}
	return n, nil
}

// ListByUser returns all of a user's cache entries.
func (s *CacheService) ListByUser(ctx context.Context, userID string) ([]*models.CacheEntry, error) {
	return s.repo.ListByUser(ctx, userID)
}
