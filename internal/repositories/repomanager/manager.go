package repomanager

import (
	"context"
	"database/sql"

	"github.com/dstrelkov/mobsync/internal/dbx"
	"github.com/dstrelkov/mobsync/internal/repositories/conflicts"
	"github.com/dstrelkov/mobsync/internal/repositories/queue"
	"github.com/dstrelkov/mobsync/internal/repositories/sessions"
)

// RepositoryManager vends store implementations bound to a DBTX, so a
// service can run several repositories against one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Queue(db dbx.DBTX) queue.Repository
	Conflicts(db dbx.DBTX) conflicts.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
