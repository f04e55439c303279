package conflicts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dstrelkov/mobsync/internal/common"
	"github.com/dstrelkov/mobsync/internal/models"
)

// InMemoryRepository mirrors the CAS semantics of the Postgres
// implementation for tests and single-process setups.
type InMemoryRepository struct {
	mu        sync.Mutex
	conflicts map[string]*models.Conflict
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{conflicts: make(map[string]*models.Conflict)}
}

func (r *InMemoryRepository) Create(ctx context.Context, c *models.Conflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.conflicts[c.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*models.Conflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conflicts[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryRepository) Resolve(ctx context.Context, id string, strategy models.ResolutionStrategy, resolvedData []byte, resolvedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conflicts[id]
	if !ok {
		return common.ErrNotFound
	}
	if c.Status != models.ConflictDetected {
		return fmt.Errorf("%w: conflict is %s", common.ErrInvalidStateTransition, c.Status)
	}
	now := time.Now().UTC()
	c.Status = models.ConflictResolved
	c.Strategy = strategy
	c.ResolvedData = resolvedData
	c.ResolvedBy = resolvedBy
	c.ResolvedAt = &now
	return nil
}

func (r *InMemoryRepository) Ignore(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conflicts[id]
	if !ok {
		return common.ErrNotFound
	}
	if c.Status != models.ConflictDetected {
		return fmt.Errorf("%w: conflict is %s", common.ErrInvalidStateTransition, c.Status)
	}
	c.Status = models.ConflictIgnored
	return nil
}

func (r *InMemoryRepository) Reopen(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conflicts[id]
	if !ok {
		return common.ErrNotFound
	}
	if c.Status != models.ConflictResolved && c.Status != models.ConflictIgnored {
		return fmt.Errorf("%w: conflict is %s", common.ErrInvalidStateTransition, c.Status)
	}
	c.Status = models.ConflictDetected
	c.Strategy = ""
	c.ResolvedData = nil
	c.ResolvedBy = ""
	c.ResolvedAt = nil
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context, userID string, status models.ConflictStatus, limit, offset int) ([]*models.Conflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Conflict
	for _, c := range r.conflicts {
		if c.UserID != userID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DetectedAt.After(result[j].DetectedAt)
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
