package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dstrelkov/mobsync/internal/common"
	"github.com/dstrelkov/mobsync/internal/models"
)

// InMemoryRepository keeps queue items in a map guarded by a mutex. It
// mirrors the CAS semantics of the Postgres implementation and is used in
// tests and single-process setups.
type InMemoryRepository struct {
	mu    sync.Mutex
	items map[string]*models.QueueItem
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*models.QueueItem)}
}

func (r *InMemoryRepository) Create(ctx context.Context, item *models.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*models.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *InMemoryRepository) ClaimBatch(ctx context.Context, userID, deviceID string, limit int) ([]*models.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inFlight := make(map[string]bool)
	earliestPending := make(map[string]*models.QueueItem)
	earliestRetryable := make(map[string]time.Time)
	entityKey := func(i *models.QueueItem) string { return i.EntityType + "\x00" + i.EntityID }

	for _, i := range r.items {
		k := entityKey(i)
		if i.Status == models.QueueInProgress {
			inFlight[k] = true
		}
		if i.Status == models.QueuePending {
			if cur, ok := earliestPending[k]; !ok || i.CreatedAt.Before(cur.CreatedAt) {
				earliestPending[k] = i
			}
		}
		if i.Status == models.QueueFailed && i.RetryCount < i.MaxRetries {
			if cur, ok := earliestRetryable[k]; !ok || i.CreatedAt.Before(cur) {
				earliestRetryable[k] = i.CreatedAt
			}
		}
	}

	var candidates []*models.QueueItem
	for _, i := range r.items {
		if i.UserID != userID || i.DeviceID != deviceID || i.Status != models.QueuePending {
			continue
		}
		k := entityKey(i)
		if inFlight[k] || earliestPending[k].ID != i.ID {
			continue
		}
		// An earlier sibling that can still re-enter the queue keeps the
		// entity's creation order intact by blocking later claims.
		if t, ok := earliestRetryable[k]; ok && t.Before(i.CreatedAt) {
			continue
		}
		candidates = append(candidates, i)
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Priority != candidates[b].Priority {
			return candidates[a].Priority < candidates[b].Priority
		}
		return candidates[a].CreatedAt.Before(candidates[b].CreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	now := time.Now().UTC()
	result := make([]*models.QueueItem, 0, len(candidates))
	for _, i := range candidates {
		i.Status = models.QueueInProgress
		t := now
		i.ClaimedAt = &t
		cp := *i
		result = append(result, &cp)
	}
	return result, nil
}

func (r *InMemoryRepository) MarkSynced(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return common.ErrNotFound
	}
	if item.Status != models.QueueInProgress {
		return fmt.Errorf("%w: item is %s", common.ErrInvalidStateTransition, item.Status)
	}
	now := time.Now().UTC()
	item.Status = models.QueueSynced
	item.SyncedAt = &now
	item.ClaimedAt = nil
	return nil
}

func (r *InMemoryRepository) MarkFailed(ctx context.Context, id, reason string, permanent bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return common.ErrNotFound
	}
	if item.Status == models.QueueSynced {
		return fmt.Errorf("%w: item is %s", common.ErrInvalidStateTransition, item.Status)
	}
	item.Status = models.QueueFailed
	if item.RetryCount < item.MaxRetries {
		item.RetryCount++
	}
	item.LastError = reason
	item.Permanent = permanent
	item.ClaimedAt = nil
	return nil
}

func (r *InMemoryRepository) MarkConflict(ctx context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return common.ErrNotFound
	}
	if item.Status != models.QueuePending && item.Status != models.QueueInProgress {
		return fmt.Errorf("%w: item is %s", common.ErrInvalidStateTransition, item.Status)
	}
	item.Status = models.QueueConflict
	item.LastError = reason
	item.ClaimedAt = nil
	return nil
}

func (r *InMemoryRepository) MarkResolved(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return common.ErrNotFound
	}
	if item.Status != models.QueueConflict {
		return fmt.Errorf("%w: item is %s", common.ErrInvalidStateTransition, item.Status)
	}
	now := time.Now().UTC()
	item.Status = models.QueueSynced
	item.SyncedAt = &now
	item.LastError = ""
	return nil
}

func (r *InMemoryRepository) Retry(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return common.ErrNotFound
	}
	if item.Status != models.QueueFailed {
		return fmt.Errorf("%w: cannot retry item in status %s", common.ErrInvalidStateTransition, item.Status)
	}
	if item.RetryCount >= item.MaxRetries {
		return common.ErrRetryExhausted
	}
	item.Status = models.QueuePending
	item.LastError = ""
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return common.ErrNotFound
	}
	switch item.Status {
	case models.QueuePending, models.QueueFailed, models.QueueConflict:
	default:
		return fmt.Errorf("%w: item is %s", common.ErrInvalidStateTransition, item.Status)
	}
	delete(r.items, id)
	return nil
}

func (r *InMemoryRepository) SweepStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, item := range r.items {
		if item.Status == models.QueueInProgress && item.ClaimedAt != nil && item.ClaimedAt.Before(cutoff) {
			item.Status = models.QueuePending
			item.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) List(ctx context.Context, userID string, status models.QueueStatus, limit, offset int) ([]*models.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.QueueItem
	for _, item := range r.items {
		if item.UserID != userID {
			continue
		}
		if status != "" && item.Status != status {
			continue
		}
		cp := *item
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
