package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snshadow/update-server-server-sync/internal/server/models"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// driverCorpus: one detectoid root (index 1) and one driver update
// (index 2) matching an intel NIC.
func driverCorpus() (root uuid.UUID, pkgs []*update.Package) {
	root = uuid.New()
	driver := &update.Package{
		ID:            update.Identity{UpdateID: uuid.New(), RevisionNumber: 1},
		Type:          update.TypeDriver,
		Prerequisites: []update.Prerequisite{update.Simple{UpdateID: root}},
		Drivers: []update.DriverMetadata{
			{HardwareID: `pci\ven_8086&dev_15b8`},
		},
	}
	return root, []*update.Package{pkgOf(root, update.TypeDetectoid), driver}
}

func TestDriverSync_UnapprovedIsWithheldAndObserved(t *testing.T) {
	_, pkgs := driverCorpus()
	f := newFixture(t, pkgs)

	var observed []update.Identity
	f.svc.OnUnapprovedDriver = func(id update.Identity) {
		observed = append(observed, id)
	}

	info, err := f.svc.SyncUpdates(context.Background(), clientCookie(), SyncParams{
		InstalledNonLeafUpdateIDs: []int{1},
		SkipSoftwareSync:          true,
		HardwareIDs:               []string{`pci\ven_8086&dev_15b8`},
	})
	require.NoError(t, err)

	assert.Empty(t, info.NewUpdates, "unapproved drivers are withheld")
	require.Len(t, observed, 1)
	assert.Equal(t, pkgs[1].ID, observed[0])
}

func TestDriverSync_ApprovedIsEmitted(t *testing.T) {
	_, pkgs := driverCorpus()
	f := newFixture(t, pkgs)
	ctx := context.Background()

	require.NoError(t, f.deps.Save(ctx, &models.Deployment{
		RevisionID:     2,
		Action:         models.ActionInstall,
		LastChangeTime: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}))

	info, err := f.svc.SyncUpdates(ctx, clientCookie(), SyncParams{
		InstalledNonLeafUpdateIDs: []int{1},
		SkipSoftwareSync:          true,
		HardwareIDs:               []string{`pci\ven_8086&dev_15b8`},
	})
	require.NoError(t, err)

	require.Equal(t, []int{2}, newUpdateIDs(info))
	u := info.NewUpdates[0]
	assert.True(t, u.IsLeaf)
	assert.Equal(t, "Install", u.Deployment.Action)
}

func TestDriverSync_ClimbsRootsFirst(t *testing.T) {
	_, pkgs := driverCorpus()
	f := newFixture(t, pkgs)

	// A client that knows nothing gets the root tier even on a driver sync.
	info, err := f.svc.SyncUpdates(context.Background(), clientCookie(), SyncParams{
		SkipSoftwareSync: true,
		HardwareIDs:      []string{`pci\ven_8086&dev_15b8`},
	})
	require.NoError(t, err)

	require.Equal(t, []int{1}, newUpdateIDs(info))
	assert.False(t, info.NewUpdates[0].IsLeaf)
}

func TestDriverSync_InapplicableDriverIsSkipped(t *testing.T) {
	_, pkgs := driverCorpus()
	f := newFixture(t, pkgs)
	ctx := context.Background()

	require.NoError(t, f.deps.Save(ctx, &models.Deployment{
		RevisionID:     2,
		Action:         models.ActionInstall,
		LastChangeTime: time.Now(),
	}))

	// The prerequisite root is cached but not installed: the driver's
	// expression is unsatisfied, so nothing terminal is emitted.
	info, err := f.svc.SyncUpdates(ctx, clientCookie(), SyncParams{
		OtherCachedUpdateIDs: []int{1},
		SkipSoftwareSync:     true,
		HardwareIDs:          []string{`pci\ven_8086&dev_15b8`},
	})
	require.NoError(t, err)
	assert.Empty(t, info.NewUpdates)
}

func TestDriverSync_UnmatchedHardware(t *testing.T) {
	_, pkgs := driverCorpus()
	f := newFixture(t, pkgs)

	info, err := f.svc.SyncUpdates(context.Background(), clientCookie(), SyncParams{
		InstalledNonLeafUpdateIDs: []int{1},
		SkipSoftwareSync:          true,
		HardwareIDs:               []string{`pci\ven_10de&dev_2206`},
	})
	require.NoError(t, err)
	assert.Empty(t, info.NewUpdates)
}
