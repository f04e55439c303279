package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstrelkov/mobsync/internal/common"
	"github.com/dstrelkov/mobsync/internal/models"
	"github.com/dstrelkov/mobsync/internal/repositories/repomanager"
)

type runFixture struct {
	repos     *repomanager.InMemoryRepositoryManager
	applier   *fakeApplier
	snapshots *fakeSnapshots
	sessions  *SessionService
	queue     *QueueService
}

func newRunFixture(t *testing.T, batchSize int) *runFixture {
	t.Helper()
	repos := repomanager.NewInMemoryRepositoryManager()
	applier := newFakeApplier()
	snapshots := newFakeSnapshots()
	f := &runFixture{
		repos:     repos,
		applier:   applier,
		snapshots: snapshots,
		sessions:  NewSessionService(nil, repos, applier, snapshots, testLogger(), batchSize),
		queue:     NewQueueService(nil, repos, testLogger(), 5*time.Minute),
	}
	f.sessions.applyBackoff = time.Millisecond
	return f
}

func (f *runFixture) enqueueClean(t *testing.T, entityID string, op models.Operation, payload []byte) *models.QueueItem {
	t.Helper()
	var base int64
	if op != models.OpInsert {
		base = 1
		f.snapshots.set("note", entityID, &VersionedSnapshot{Version: 1, Data: []byte(`{"server":true}`)})
	}
	item, err := f.queue.Enqueue(context.Background(), "u1", "d1", "note", entityID, op, payload, base, 0)
	require.NoError(t, err)
	return item
}

func TestSessionRunDrainsQueue(t *testing.T) {
	ctx := context.Background()
	f := newRunFixture(t, 2)

	a := f.enqueueClean(t, "n1", models.OpUpdate, []byte(`{"a":1}`))
	b := f.enqueueClean(t, "n2", models.OpUpdate, []byte(`{"b":2}`))
	c := f.enqueueClean(t, "n3", models.OpInsert, []byte(`{"c":3}`))

	session, err := f.sessions.Start(ctx, "u1", "d1", models.DeviceAndroid, "2.1.0", models.SyncIncremental, models.DirectionUpload)
	require.NoError(t, err)
	require.Equal(t, models.SessionInProgress, session.Status)

	require.NoError(t, f.sessions.Run(ctx, session))

	for _, id := range []string{a.ID, b.ID, c.ID} {
		got, err := f.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.QueueSynced, got.Status)
		assert.NotNil(t, got.SyncedAt)
	}
	assert.Equal(t, 3, f.applier.appliedCount())

	stored, err := f.sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)
	assert.Equal(t, 3, stored.RecordsUploaded)
	assert.Equal(t, 0, stored.RecordsDownloaded)
	assert.NotNil(t, stored.CompletedAt)
}

func TestSessionRunCountsDownloads(t *testing.T) {
	ctx := context.Background()
	f := newRunFixture(t, 10)
	f.enqueueClean(t, "n1", models.OpUpdate, []byte(`{"a":1}`))

	session, err := f.sessions.Start(ctx, "u1", "d1", models.DeviceIOS, "2.1.0", models.SyncPull, models.DirectionDownload)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Run(ctx, session))

	stored, err := f.sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RecordsDownloaded)
	assert.Equal(t, 0, stored.RecordsUploaded)
}

func TestSessionRunParksConflicts(t *testing.T) {
	ctx := context.Background()
	f := newRunFixture(t, 10)

	clean := f.enqueueClean(t, "n1", models.OpUpdate, []byte(`{"a":1}`))

	// Stale client edit: server moved to version 7 since the change was made.
	f.snapshots.set("note", "n2", &VersionedSnapshot{Version: 7, Data: []byte(`{"title":"server"}`)})
	stale, err := f.queue.Enqueue(ctx, "u1", "d1", "note", "n2", models.OpUpdate, []byte(`{"title":"client"}`), 3, 0)
	require.NoError(t, err)

	session, err := f.sessions.Start(ctx, "u1", "d1", models.DeviceAndroid, "2.1.0", models.SyncIncremental, models.DirectionUpload)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Run(ctx, session))

	got, err := f.queue.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueConflict, got.Status)

	cleanGot, err := f.queue.Get(ctx, clean.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueSynced, cleanGot.Status)

	conflictsRepo := f.repos.Conflicts(nil)
	open, err := conflictsRepo.List(ctx, "u1", models.ConflictDetected, 10, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.ConflictUpdateUpdate, open[0].Type)
	assert.Equal(t, session.ID, open[0].SessionID)
	assert.Equal(t, int64(7), open[0].ServerVersion)
	assert.Equal(t, int64(3), open[0].ClientBaseVersion)

	stored, err := f.sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)
	assert.Equal(t, 1, stored.ConflictsDetected)
	assert.Equal(t, 1, stored.RecordsUploaded)
	assert.True(t, stored.HasUnresolvedConflicts())
}

func TestSessionRunRetriesTransientApply(t *testing.T) {
	ctx := context.Background()
	f := newRunFixture(t, 10)

	item := f.enqueueClean(t, "n1", models.OpUpdate, []byte(`{"a":1}`))
	f.applier.failWith("n1", errors.New("connection reset"))

	session, err := f.sessions.Start(ctx, "u1", "d1", models.DeviceAndroid, "2.1.0", models.SyncIncremental, models.DirectionUpload)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Run(ctx, session))

	got, err := f.queue.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueSynced, got.Status)
	assert.Equal(t, 0, got.RetryCount)
}

func TestSessionRunMarksFailedOnExhaustedApply(t *testing.T) {
	ctx := context.Background()
	f := newRunFixture(t, 10)

	item := f.enqueueClean(t, "n1", models.OpUpdate, []byte(`{"a":1}`))
	boom := errors.New("boom")
	f.applier.failWith("n1", boom, boom, boom, boom)

	session, err := f.sessions.Start(ctx, "u1", "d1", models.DeviceAndroid, "2.1.0", models.SyncIncremental, models.DirectionUpload)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Run(ctx, session))

	got, err := f.queue.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueFailed, got.Status)
	assert.False(t, got.Permanent)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError, "boom")
}

func TestSessionRunPermanentApplyFailure(t *testing.T) {
	ctx := context.Background()
	f := newRunFixture(t, 10)

	item := f.enqueueClean(t, "n1", models.OpUpdate, []byte(`{"a":1}`))
	f.applier.failWith("n1", common.ErrPermanentApply)

	session, err := f.sessions.Start(ctx, "u1", "d1", models.DeviceAndroid, "2.1.0", models.SyncIncremental, models.DirectionUpload)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Run(ctx, session))

	got, err := f.queue.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueFailed, got.Status)
	assert.True(t, got.Permanent)
	// No in-process retries were burned on a permanent failure.
	assert.Equal(t, 0, f.applier.appliedCount())
}

func TestSessionRunSkipsApplyForDeletedTarget(t *testing.T) {
	ctx := context.Background()
	f := newRunFixture(t, 10)

	item, err := f.queue.Enqueue(ctx, "u1", "d1", "note", "gone", models.OpDelete, nil, 2, 0)
	require.NoError(t, err)

	session, err := f.sessions.Start(ctx, "u1", "d1", models.DeviceAndroid, "2.1.0", models.SyncIncremental, models.DirectionUpload)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Run(ctx, session))

	got, err := f.queue.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueSynced, got.Status)
	assert.Equal(t, 0, f.applier.appliedCount())
}

func TestSessionRunFailsItemOnSnapshotError(t *testing.T) {
	ctx := context.Background()
	f := newRunFixture(t, 10)

	item := f.enqueueClean(t, "n1", models.OpUpdate, []byte(`{"a":1}`))
	f.snapshots.setErr("note", "n1", errors.New("snapshot store down"))

	session, err := f.sessions.Start(ctx, "u1", "d1", models.DeviceAndroid, "2.1.0", models.SyncIncremental, models.DirectionUpload)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Run(ctx, session))

	got, err := f.queue.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueFailed, got.Status)
	assert.Contains(t, got.LastError, "snapshot store down")
}

func TestSessionRunStopsWhenCancelled(t *testing.T) {
	ctx := context.Background()
	f := newRunFixture(t, 10)
	f.enqueueClean(t, "n1", models.OpUpdate, []byte(`{"a":1}`))

	session, err := f.sessions.Start(ctx, "u1", "d1", models.DeviceAndroid, "2.1.0", models.SyncIncremental, models.DirectionUpload)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Cancel(ctx, session.ID, "user aborted"))

	require.NoError(t, f.sessions.Run(ctx, session))

	// Nothing was claimed after the cancel.
	assert.Equal(t, 0, f.applier.appliedCount())
	stored, err := f.sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCancelled, stored.Status)
	assert.Equal(t, "user aborted", stored.ErrorMessage)
}

func TestSessionCloseIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newRunFixture(t, 10)

	session, err := f.sessions.Start(ctx, "u1", "d1", models.DeviceAndroid, "2.1.0", models.SyncFull, models.DirectionBidirectional)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Complete(ctx, session))

	err = f.sessions.Fail(ctx, session, "late failure")
	assert.ErrorIs(t, err, common.ErrInvalidStateTransition)
}
