package sessions

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
	mu       sync.Mutex
	sessions map[string]*models.SyncSession
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{sessions: make(map[string]*models.SyncSession)}
}

func (r *InMemoryRepository) Create(ctx context.Context, s *models.SyncSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*models.SyncSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *InMemoryRepository) MarkInProgress(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return common.ErrNotFound
	}
	if s.Status != models.SessionInitiated {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidStateTransition, s.Status)
	}
	s.Status = models.SessionInProgress
	return nil
}

func (r *InMemoryRepository) UpdateCounters(ctx context.Context, id string, uploaded, downloaded, conflictsDetected int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return common.ErrNotFound
	}
	s.RecordsUploaded = uploaded
	s.RecordsDownloaded = downloaded
	s.ConflictsDetected = conflictsDetected
	return nil
}

func (r *InMemoryRepository) IncrementConflictsResolved(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	if s.ConflictsResolved < s.ConflictsDetected {
		s.ConflictsResolved++
	}
	return nil
}

func (r *InMemoryRepository) Close(ctx context.Context, id string, status models.SessionStatus, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return common.ErrNotFound
	}
	if s.Status != models.SessionInProgress {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidStateTransition, s.Status)
	}
	now := time.Now().UTC()
	s.Status = status
	s.ErrorMessage = errorMessage
	s.CompletedAt = &now
	s.DurationSeconds = int64(now.Sub(s.StartedAt).Seconds())
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context, userID string, limit, offset int) ([]*models.SyncSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.SyncSession
	for _, s := range r.sessions {
		if s.UserID != userID {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
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
