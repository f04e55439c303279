package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dstrelkov/mobsync/internal/dbx"
	"github.com/dstrelkov/mobsync/internal/logging"
	"github.com/dstrelkov/mobsync/internal/models"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// passthroughTx bypasses the real transaction helper so services can run
// against the in-memory repositories, which ignore the handle anyway.
func passthroughTx(ctx context.Context, _ *sql.DB, _ *sql.TxOptions, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return fn(ctx, nil)
}

type fakeApplier struct {
	mu       sync.Mutex
	applied  []string
	payloads [][]byte
	// failures maps entityID to errors returned before Apply succeeds;
	// each call consumes one.
	failures map[string][]error
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{failures: make(map[string][]error)}
}

func (a *fakeApplier) failWith(entityID string, errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[entityID] = append(a.failures[entityID], errs...)
}

func (a *fakeApplier) Apply(_ context.Context, entityType, entityID string, op models.Operation, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if pending := a.failures[entityID]; len(pending) > 0 {
		err := pending[0]
		a.failures[entityID] = pending[1:]
		return err
	}
	a.applied = append(a.applied, fmt.Sprintf("%s/%s/%s", op, entityType, entityID))
	a.payloads = append(a.payloads, payload)
	return nil
}

func (a *fakeApplier) appliedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

func (a *fakeApplier) lastPayload() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.payloads) == 0 {
		return nil
	}
	return a.payloads[len(a.payloads)-1]
}

type fakeSnapshots struct {
	mu    sync.Mutex
	snaps map[string]*VersionedSnapshot
	errs  map[string]error
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{
		snaps: make(map[string]*VersionedSnapshot),
		errs:  make(map[string]error),
	}
}

func (f *fakeSnapshots) set(entityType, entityID string, snap *VersionedSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[entityType+"/"+entityID] = snap
}

func (f *fakeSnapshots) setErr(entityType, entityID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[entityType+"/"+entityID] = err
}

func (f *fakeSnapshots) Snapshot(_ context.Context, entityType, entityID string) (*VersionedSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[entityType+"/"+entityID]; err != nil {
		return nil, err
	}
	return f.snaps[entityType+"/"+entityID], nil
}
