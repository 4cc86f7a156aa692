package sqldb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snshadow/update-server-server-sync/internal/server/models"
)

// These tests run against a real embedded database: the conflict rules the
// repositories rely on ("newer last_change_time wins") are SQLite behavior
// worth exercising for real, not just via mocks.

func TestDeployments_UpsertNewerWins(t *testing.T) {
	ctx := context.Background()
	db, mgr, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "deploySync.db"))
	require.NoError(t, err)
	defer db.Close()

	repo := mgr.Deployments(db)
	base := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, &models.Deployment{
		RevisionID: 1, Action: models.ActionInstall, LastChangeTime: base,
	}))

	// A strictly newer save replaces the row.
	require.NoError(t, repo.Save(ctx, &models.Deployment{
		RevisionID: 1, Action: models.ActionEvaluate, LastChangeTime: base.Add(time.Hour),
	}))
	got, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ActionEvaluate, got.Action)

	// An older save is dropped.
	require.NoError(t, repo.Save(ctx, &models.Deployment{
		RevisionID: 1, Action: models.ActionBundle, LastChangeTime: base.Add(-time.Hour),
	}))
	got, err = repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ActionEvaluate, got.Action)

	// An equal timestamp is not "strictly newer".
	require.NoError(t, repo.Save(ctx, &models.Deployment{
		RevisionID: 1, Action: models.ActionBundle, LastChangeTime: base.Add(time.Hour),
	}))
	got, err = repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ActionEvaluate, got.Action)
}

func TestDeployments_SubSecondOrdering(t *testing.T) {
	ctx := context.Background()
	db, mgr, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "deploySync.db"))
	require.NoError(t, err)
	defer db.Close()

	repo := mgr.Deployments(db)
	base := time.Date(2026, 7, 1, 12, 0, 0, 500_000_000, time.UTC)

	require.NoError(t, repo.Save(ctx, &models.Deployment{
		RevisionID: 2, Action: models.ActionInstall, LastChangeTime: base,
	}))
	// 250ms earlier: must lose; the fixed-width fractions ".250000000" and
	// ".500000000" compare as text in time order.
	require.NoError(t, repo.Save(ctx, &models.Deployment{
		RevisionID: 2, Action: models.ActionBundle, LastChangeTime: base.Add(-250 * time.Millisecond),
	}))

	got, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.ActionInstall, got.Action)
}

func TestDeployments_DeleteAndMiss(t *testing.T) {
	ctx := context.Background()
	db, mgr, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "deploySync.db"))
	require.NoError(t, err)
	defer db.Close()

	repo := mgr.Deployments(db)

	got, err := repo.Get(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Save(ctx, &models.Deployment{
		RevisionID: 99, Action: models.ActionInstall, LastChangeTime: time.Now(),
	}))
	require.NoError(t, repo.Delete(ctx, 99))

	got, err = repo.Get(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestComputers_UpsertNewerWins(t *testing.T) {
	ctx := context.Background()
	db, mgr, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "deploySync.db"))
	require.NoError(t, err)
	defer db.Close()

	repo := mgr.Computers(db)
	base := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpdateSync(ctx, "pc-01", base))
	require.NoError(t, repo.UpdateSync(ctx, "pc-01", base.Add(-time.Minute)))

	got, err := repo.Get(ctx, "pc-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.LastSyncTime.Equal(base))

	require.NoError(t, repo.UpdateSync(ctx, "pc-01", base.Add(time.Minute)))
	got, err = repo.Get(ctx, "pc-01")
	require.NoError(t, err)
	assert.True(t, got.LastSyncTime.Equal(base.Add(time.Minute)))
}

func TestComputers_DeleteAndMiss(t *testing.T) {
	ctx := context.Background()
	db, mgr, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "deploySync.db"))
	require.NoError(t, err)
	defer db.Close()

	repo := mgr.Computers(db)

	got, err := repo.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.UpdateSync(ctx, "gone", time.Now()))
	require.NoError(t, repo.Delete(ctx, "gone"))
	got, err = repo.Get(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, got)
}
