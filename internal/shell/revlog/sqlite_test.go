package revlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HamiGames/Lucid-sub000/internal/core/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "revisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func launchRevision(phaseID string, previous *int64) *domain.Revision {
	return &domain.Revision{
		RunID:   "run-1",
		PhaseID: phaseID,
		Action:  domain.ActionLaunch,
		Snapshot: map[string]domain.ServiceSnapshot{
			"api": {
				Name:        "api",
				Image:       "lucid/api:v3",
				Network:     "backend",
				Port:        8080,
				Env:         map[string]string{"DB_PASSWORD": "secret://db-password"},
				ContainerID: "id-api",
				Outcome:     domain.OutcomeStarted,
			},
		},
		PreviousID: previous,
	}
}

func TestAppendAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Append(ctx, launchRevision("core", nil))
	require.NoError(t, err)
	assert.Positive(t, id)

	rev, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "run-1", rev.RunID)
	assert.Equal(t, "core", rev.PhaseID)
	assert.Equal(t, domain.ActionLaunch, rev.Action)
	assert.Nil(t, rev.PreviousID)
	assert.WithinDuration(t, time.Now().UTC(), rev.CreatedAt, time.Minute)

	snap := rev.Snapshot["api"]
	assert.Equal(t, "lucid/api:v3", snap.Image)
	assert.Equal(t, domain.OutcomeStarted, snap.Outcome)
	// Secrets are stored by reference only.
	assert.Equal(t, "secret://db-password", snap.Env["DB_PASSWORD"])
}

func TestAppend_MonotonicIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Append(ctx, launchRevision("core", nil))
	require.NoError(t, err)
	second, err := store.Append(ctx, launchRevision("core", &first))
	require.NoError(t, err)
	third, err := store.Append(ctx, launchRevision("edge", nil))
	require.NoError(t, err)

	assert.Greater(t, second, first)
	assert.Greater(t, third, second)
}

func TestLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Append(ctx, launchRevision("core", nil))
	require.NoError(t, err)
	second, err := store.Append(ctx, launchRevision("core", &first))
	require.NoError(t, err)
	_, err = store.Append(ctx, launchRevision("edge", nil))
	require.NoError(t, err)

	latest, err := store.Latest(ctx, "core")
	require.NoError(t, err)
	assert.Equal(t, second, latest.ID)
	require.NotNil(t, latest.PreviousID)
	assert.Equal(t, first, *latest.PreviousID)
}

func TestLatest_NoHistory(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Latest(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrRevisionNotFound)
}

func TestGet_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrRevisionNotFound)
}

func TestListByPhase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var prev *int64
	for i := 0; i < 5; i++ {
		id, err := store.Append(ctx, launchRevision("core", prev))
		require.NoError(t, err)
		prev = &id
	}
	_, err := store.Append(ctx, launchRevision("edge", nil))
	require.NoError(t, err)

	revs, err := store.ListByPhase(ctx, "core", 3)
	require.NoError(t, err)
	require.Len(t, revs, 3)
	// Newest first.
	assert.Greater(t, revs[0].ID, revs[1].ID)
	assert.Greater(t, revs[1].ID, revs[2].ID)
	for _, rev := range revs {
		assert.Equal(t, "core", rev.PhaseID)
	}
}

func TestStore_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revisions.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	id, err := store.Append(ctx, launchRevision("core", nil))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	rev, err := reopened.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "core", rev.PhaseID)
}
