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

type conflictFixture struct {
	repos     *repomanager.InMemoryRepositoryManager
	snapshots *fakeSnapshots
	applier   *fakeApplier
	conflicts *ConflictService
	sessions  *SessionService
	queue     *QueueService
}

func newConflictFixture(t *testing.T) *conflictFixture {
	t.Helper()
	orig := withTx
	withTx = passthroughTx
	t.Cleanup(func() { withTx = orig })

	repos := repomanager.NewInMemoryRepositoryManager()
	snapshots := newFakeSnapshots()
	applier := newFakeApplier()
	return &conflictFixture{
		repos:     repos,
		snapshots: snapshots,
		applier:   applier,
		conflicts: NewConflictService(nil, repos, applier, testLogger()),
		sessions:  NewSessionService(nil, repos, applier, snapshots, testLogger(), 10),
		queue:     NewQueueService(nil, repos, testLogger(), 5*time.Minute),
	}
}

// seedConflict runs a session over a stale update so a DETECTED conflict
// linked to that session exists.
func (f *conflictFixture) seedConflict(t *testing.T) (*models.Conflict, *models.SyncSession) {
	t.Helper()
	ctx := context.Background()

	f.snapshots.set("note", "n1", &VersionedSnapshot{Version: 7, Data: []byte(`{"title":"server"}`)})
	_, err := f.queue.Enqueue(ctx, "u1", "d1", "note", "n1", models.OpUpdate, []byte(`{"title":"client"}`), 3, 0)
	require.NoError(t, err)

	session, err := f.sessions.Start(ctx, "u1", "d1", models.DeviceAndroid, "2.1.0", models.SyncIncremental, models.DirectionUpload)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Run(ctx, session))

	open, err := f.conflicts.List(ctx, "u1", models.ConflictDetected, 10, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	return open[0], session
}

func newSeededConflictFixture(t *testing.T) (*conflictFixture, *models.Conflict, *models.SyncSession) {
	t.Helper()
	f := newConflictFixture(t)
	c, session := f.seedConflict(t)
	return f, c, session
}

func TestConflictResolveServerWins(t *testing.T) {
	ctx := context.Background()
	f, c, session := newSeededConflictFixture(t)

	resolved, err := f.conflicts.ResolveServerWins(ctx, c.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ConflictResolved, resolved.Status)
	assert.Equal(t, models.StrategyServerWins, resolved.Strategy)
	assert.Equal(t, []byte(`{"title":"server"}`), resolved.ResolvedData)
	assert.Equal(t, "admin", resolved.ResolvedBy)
	assert.NotNil(t, resolved.ResolvedAt)

	// The winning server copy went back through the applier.
	assert.Equal(t, 1, f.applier.appliedCount())
	assert.Equal(t, []byte(`{"title":"server"}`), f.applier.lastPayload())

	// The owning session's resolved counter moved with the resolution.
	stored, err := f.sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ConflictsResolved)
	assert.False(t, stored.HasUnresolvedConflicts())
}

func TestConflictResolveClientWins(t *testing.T) {
	ctx := context.Background()
	f, c, _ := newSeededConflictFixture(t)

	resolved, err := f.conflicts.ResolveClientWins(ctx, c.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StrategyClientWins, resolved.Strategy)
	assert.Equal(t, []byte(`{"title":"client"}`), resolved.ResolvedData)
	assert.Equal(t, []byte(`{"title":"client"}`), f.applier.lastPayload())
}

func TestConflictResolveReleasesQueueItem(t *testing.T) {
	ctx := context.Background()
	f, c, _ := newSeededConflictFixture(t)

	item, err := f.queue.Get(ctx, c.ItemID)
	require.NoError(t, err)
	require.Equal(t, models.QueueConflict, item.Status)

	_, err = f.conflicts.ResolveClientWins(ctx, c.ID, "u1")
	require.NoError(t, err)

	item, err = f.queue.Get(ctx, c.ItemID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueSynced, item.Status)
	assert.NotNil(t, item.SyncedAt)
}

func TestConflictResolveWithoutServerDataSkipsApply(t *testing.T) {
	ctx := context.Background()
	f := newConflictFixture(t)

	// The target vanished server-side, so an update collides with a
	// delete and there is no server copy to re-apply.
	_, err := f.queue.Enqueue(ctx, "u1", "d1", "note", "gone", models.OpUpdate, []byte(`{"title":"client"}`), 3, 0)
	require.NoError(t, err)
	session, err := f.sessions.Start(ctx, "u1", "d1", models.DeviceAndroid, "2.1.0", models.SyncIncremental, models.DirectionUpload)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Run(ctx, session))

	open, err := f.conflicts.List(ctx, "u1", models.ConflictDetected, 10, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, models.ConflictUpdateDelete, open[0].Type)

	_, err = f.conflicts.ResolveServerWins(ctx, open[0].ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, 0, f.applier.appliedCount())

	// The parked item is still released.
	item, err := f.queue.Get(ctx, open[0].ItemID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueSynced, item.Status)
}

func TestConflictResolveAbortsOnApplyFailure(t *testing.T) {
	ctx := context.Background()
	f, c, _ := newSeededConflictFixture(t)

	boom := errors.New("domain store down")
	f.applier.failWith("n1", boom)
	_, err := f.conflicts.ResolveServerWins(ctx, c.ID, "admin")
	require.ErrorIs(t, err, boom)

	// Nothing moved: the conflict stays open and the item stays parked.
	got, err := f.conflicts.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictDetected, got.Status)
	item, err := f.queue.Get(ctx, c.ItemID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueConflict, item.Status)
}

func TestConflictResolveManualAndMerge(t *testing.T) {
	ctx := context.Background()
	f, c, _ := newSeededConflictFixture(t)

	merged := []byte(`{"title":"merged"}`)
	resolved, err := f.conflicts.ResolveManual(ctx, c.ID, merged, "admin", true)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyMerge, resolved.Strategy)
	assert.Equal(t, merged, resolved.ResolvedData)

	// A second resolution attempt is rejected, not overwritten.
	_, err = f.conflicts.ResolveManual(ctx, c.ID, []byte(`{}`), "admin", false)
	assert.ErrorIs(t, err, common.ErrInvalidStateTransition)
}

func TestConflictAutoResolve(t *testing.T) {
	ctx := context.Background()
	f, c, _ := newSeededConflictFixture(t)

	_, err := f.conflicts.AutoResolve(ctx, c.ID, models.StrategyManual, "system")
	assert.ErrorIs(t, err, common.ErrConflictUnresolvable)

	_, err = f.conflicts.AutoResolve(ctx, c.ID, models.StrategyMerge, "system")
	assert.ErrorIs(t, err, common.ErrConflictUnresolvable)

	resolved, err := f.conflicts.AutoResolve(ctx, c.ID, models.StrategyServerWins, "system")
	require.NoError(t, err)
	assert.Equal(t, models.StrategyServerWins, resolved.Strategy)
}

func TestConflictIgnoreAndReopen(t *testing.T) {
	ctx := context.Background()
	f, c, session := newSeededConflictFixture(t)

	require.NoError(t, f.conflicts.Ignore(ctx, c.ID))
	got, err := f.conflicts.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictIgnored, got.Status)

	// The parked item is dropped together with the change it carried.
	_, err = f.queue.Get(ctx, c.ItemID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 0, f.applier.appliedCount())

	// Ignoring does not count as resolving.
	stored, err := f.sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ConflictsResolved)

	require.NoError(t, f.conflicts.Reopen(ctx, c.ID))
	got, err = f.conflicts.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictDetected, got.Status)
	assert.True(t, got.IsOpen())
}

func TestConflictResolvedCounterIsCapped(t *testing.T) {
	ctx := context.Background()
	f, c, session := newSeededConflictFixture(t)

	_, err := f.conflicts.ResolveServerWins(ctx, c.ID, "admin")
	require.NoError(t, err)

	// Reopen and resolve again: the cap keeps resolved <= detected.
	require.NoError(t, f.conflicts.Reopen(ctx, c.ID))
	_, err = f.conflicts.ResolveClientWins(ctx, c.ID, "admin")
	require.NoError(t, err)

	stored, err := f.sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ConflictsResolved)
}

func TestConflictRecordOutsideSession(t *testing.T) {
	ctx := context.Background()
	f := newConflictFixture(t)

	item := models.NewQueueItem("u1", "d1", "note", "n9", models.OpUpdate, []byte(`{"x":1}`), 2, 0)
	c := models.NewConflict(item, models.ConflictVersionMismatch, []byte(`{"x":2}`), 4, "")
	require.NoError(t, f.conflicts.Record(ctx, c))

	resolved, err := f.conflicts.ResolveServerWins(ctx, c.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ConflictResolved, resolved.Status)
}
