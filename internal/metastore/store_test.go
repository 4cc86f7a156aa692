package metastore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snshadow/update-server-server-sync/internal/common"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

func testPackage(t *testing.T, typ update.Type, rev int) *update.Package {
	t.Helper()
	pkg := &update.Package{
		ID:    update.Identity{UpdateID: uuid.New(), RevisionNumber: rev},
		Type:  typ,
		Title: "test update",
	}
	if typ.IsSoftware() {
		pkg.Files = []update.FileReference{{
			Name:   "payload.cab",
			Digest: []byte{1, 2, 3, 4},
			Size:   1024,
			Source: "http://upstream.example/payload.cab",
		}}
	}
	pkg.Raw = update.MarshalMetadata(pkg)
	return pkg
}

// openers enumerates every backend behind the shared contract.
var openers = map[string]func(t *testing.T) Store{
	"deltazip": func(t *testing.T) Store {
		s, err := OpenDeltaZip(t.TempDir())
		require.NoError(t, err)
		return s
	},
	"dir": func(t *testing.T) Store {
		s, err := OpenDirectory(t.TempDir())
		require.NoError(t, err)
		return s
	},
	"sqlite": func(t *testing.T) Store {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "packages.db"))
		require.NoError(t, err)
		return s
	},
}

func TestStore_AddAndLookup(t *testing.T) {
	for name, open := range openers {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			p1 := testPackage(t, update.TypeSoftware, 1)
			p2 := testPackage(t, update.TypeDetectoid, 2)

			require.NoError(t, s.AddPackage(p1))
			require.NoError(t, s.AddPackage(p2))

			// Indexes are dense, 1-based, in insertion order.
			i1, err := s.PackageIndex(p1.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, i1)
			i2, err := s.PackageIndex(p2.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, i2)

			id, err := s.PackageIdentity(2)
			require.NoError(t, err)
			assert.Equal(t, p2.ID, id)

			assert.True(t, s.Contains(p1.ID))
			assert.False(t, s.Contains(update.Identity{UpdateID: uuid.New(), RevisionNumber: 1}))

			// getPackage(getPackageIndex(id)).id == id
			got, err := s.PackageByIndex(i1)
			require.NoError(t, err)
			assert.Equal(t, p1.ID, got.ID)
			assert.Equal(t, update.TypeSoftware, got.Type)

			// Metadata bytes round-trip unchanged.
			rc, err := s.Metadata(p1.ID)
			require.NoError(t, err)
			raw, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, p1.Raw, raw)

			files, err := s.Files(p1.ID)
			require.NoError(t, err)
			require.Len(t, files, 1)
			assert.Equal(t, p1.Files[0].Digest, files[0].Digest)

			snapshot := s.Identities()
			require.Len(t, snapshot, 2)
			assert.Equal(t, 1, snapshot[0].Index)
			assert.Equal(t, p1.ID, snapshot[0].ID)
		})
	}
}

func TestStore_ReAddIsNoOp(t *testing.T) {
	for name, open := range openers {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			p := testPackage(t, update.TypeSoftware, 5)
			require.NoError(t, s.AddPackage(p))
			require.NoError(t, s.AddPackage(p))

			assert.Len(t, s.Identities(), 1)
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	for name, open := range openers {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			missing := update.Identity{UpdateID: uuid.New(), RevisionNumber: 1}
			_, err := s.Metadata(missing)
			assert.Error(t, err)
			_, err = s.PackageIndex(missing)
			assert.Error(t, err)
			_, err = s.PackageIdentity(99)
			assert.Error(t, err)
			_, err = s.PackageByIndex(0)
			assert.Error(t, err)
		})
	}
}

func TestDeltaZip_ReopenAcrossSections(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenDeltaZip(dir)
	require.NoError(t, err)

	first := make([]*update.Package, 3)
	for i := range first {
		first[i] = testPackage(t, update.TypeSoftware, 1)
		require.NoError(t, s.AddPackage(first[i]))
	}
	require.NoError(t, s.Flush())

	// Second delta section.
	second := testPackage(t, update.TypeDriver, 1)
	require.NoError(t, s.AddPackage(second))
	require.NoError(t, s.Close())

	re, err := OpenDeltaZip(dir)
	require.NoError(t, err)
	defer re.Close()

	require.Len(t, re.Identities(), 4)

	// Index → section resolution across both sections.
	for i, p := range first {
		idx, err := re.PackageIndex(p.ID)
		require.NoError(t, err)
		assert.Equal(t, i+1, idx)

		rc, err := re.Metadata(p.ID)
		require.NoError(t, err)
		raw, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, p.Raw, raw)
	}

	got, err := re.Package(second.ID)
	require.NoError(t, err)
	assert.Equal(t, update.TypeDriver, got.Type)
}

func TestDeltaZip_PendingReadableBeforeFlush(t *testing.T) {
	s, err := OpenDeltaZip(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	p := testPackage(t, update.TypeSoftware, 1)
	require.NoError(t, s.AddPackage(p))

	rc, err := s.Metadata(p.ID)
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, p.Raw, raw)

	files, err := s.Files(p.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestDirectory_Reopen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenDirectory(dir)
	require.NoError(t, err)
	p := testPackage(t, update.TypeSoftware, 3)
	require.NoError(t, s.AddPackage(p))
	require.NoError(t, s.Close())

	re, err := OpenDirectory(dir)
	require.NoError(t, err)
	defer re.Close()

	idx, err := re.PackageIndex(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	got, err := re.Package(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packages.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	p := testPackage(t, update.TypeSoftware, 2)
	require.NoError(t, s.AddPackage(p))
	require.NoError(t, s.Close())

	re, err := OpenSQLite(path)
	require.NoError(t, err)
	defer re.Close()

	got, err := re.PackageByIndex(1)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestCopy_AcrossBackends(t *testing.T) {
	src, err := OpenDeltaZip(t.TempDir())
	require.NoError(t, err)
	defer src.Close()

	pkgs := []*update.Package{
		testPackage(t, update.TypeSoftware, 1),
		testPackage(t, update.TypeDetectoid, 1),
		testPackage(t, update.TypeDriver, 4),
	}
	for _, p := range pkgs {
		require.NoError(t, src.AddPackage(p))
	}
	require.NoError(t, src.Flush())

	dst, err := OpenSQLite(filepath.Join(t.TempDir(), "copy.db"))
	require.NoError(t, err)
	defer dst.Close()

	n, err := Copy(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, p := range pkgs {
		got, err := dst.Package(p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
	}

	// Copying again is a no-op.
	n, err = Copy(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCopy_Cancelled(t *testing.T) {
	src, err := OpenDirectory(t.TempDir())
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.AddPackage(testPackage(t, update.TypeSoftware, 1)))

	dst, err := OpenDirectory(t.TempDir())
	require.NoError(t, err)
	defer dst.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Copy(ctx, src, dst)
	assert.Error(t, err)
}

func TestOpen_Dispatch(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(KindDirectory, dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(Kind("bogus"), dir)
	assert.Error(t, err)
}

func TestOpenDirectory_UnknownPartition(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`[{"id":"` + uuid.New().String() + `/1","partition":"printers"}]`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), raw, 0o660))

	_, err := OpenDirectory(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrorUnknownPartition)
}
