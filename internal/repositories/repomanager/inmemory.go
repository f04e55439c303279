package repomanager

import (
	"context"
	"database/sql"

	"github.com/dstrelkov/mobsync/internal/dbx"
	"github.com/dstrelkov/mobsync/internal/repositories/conflicts"
	"github.com/dstrelkov/mobsync/internal/repositories/queue"
	"github.com/dstrelkov/mobsync/internal/repositories/sessions"
)

// InMemoryRepositoryManager vends the in-memory repositories. The DBTX
// argument is ignored; there is no real database behind them. Intended for
// tests and single-process setups.
type InMemoryRepositoryManager struct {
	queue     *queue.InMemoryRepository
	conflicts *conflicts.InMemoryRepository
	sessions  *sessions.InMemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		queue:     queue.NewInMemoryRepository(),
		conflicts: conflicts.NewInMemoryRepository(),
		sessions:  sessions.NewInMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return nil
}

func (m *InMemoryRepositoryManager) Queue(db dbx.DBTX) queue.Repository {
	return m.queue
}

func (m *InMemoryRepositoryManager) Conflicts(db dbx.DBTX) conflicts.Repository {
	return m.conflicts
}

func (m *InMemoryRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return m.sessions
}
