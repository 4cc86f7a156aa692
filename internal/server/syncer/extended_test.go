package syncer

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snshadow/update-server-server-sync/internal/common"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

func extendedCorpus() []*update.Package {
	pkg := &update.Package{
		ID:    update.Identity{UpdateID: uuid.New(), RevisionNumber: 1},
		Type:  update.TypeSoftware,
		Title: "Security update",
		Files: []update.FileReference{{
			Name:   "payload.cab",
			Digest: []byte{0xca, 0xfe},
			Size:   10,
			Source: "http://download.windowsupdate.com/payload.cab",
		}},
	}
	return []*update.Package{pkg}
}

func TestGetExtendedUpdateInfo_FragmentsAndLocations(t *testing.T) {
	f := newFixture(t, extendedCorpus())

	out, err := f.svc.GetExtendedUpdateInfo(context.Background(), clientCookie(),
		[]int{1}, []string{FragmentExtended, FragmentLocalizedProperties}, []string{"en"})
	require.NoError(t, err)

	require.Len(t, out.Updates, 2)
	assert.Equal(t, 1, out.Updates[0].ID)
	assert.Contains(t, out.Updates[0].Xml, "payload.cab")
	assert.Contains(t, out.Updates[1].Xml, "Security update")

	require.Len(t, out.FileLocations, 1)
	assert.Equal(t, []byte{0xca, 0xfe}, out.FileLocations[0].FileDigest)
	assert.Equal(t, "http://download.windowsupdate.com/payload.cab", out.FileLocations[0].URL)
}

func TestGetExtendedUpdateInfo_ContentRootRewrite(t *testing.T) {
	f := newFixture(t, extendedCorpus())
	f.svc.locations.ContentRoot = "http://wsus.local:8530/Content"

	out, err := f.svc.GetExtendedUpdateInfo(context.Background(), clientCookie(),
		[]int{1}, []string{FragmentExtended}, nil)
	require.NoError(t, err)

	require.Len(t, out.FileLocations, 1)
	assert.Equal(t, "http://wsus.local:8530/Content/cafe", out.FileLocations[0].URL)
}

func TestGetExtendedUpdateInfo_UnknownRevision(t *testing.T) {
	f := newFixture(t, extendedCorpus())

	_, err := f.svc.GetExtendedUpdateInfo(context.Background(), clientCookie(),
		[]int{77}, []string{FragmentExtended}, nil)
	assert.ErrorIs(t, err, common.ErrorInvalidRevisionIndex)
}

func TestGetExtendedUpdateInfo_UnknownFragmentType(t *testing.T) {
	f := newFixture(t, extendedCorpus())

	_, err := f.svc.GetExtendedUpdateInfo(context.Background(), clientCookie(),
		[]int{1}, []string{"PrinterCatalog"}, nil)
	assert.ErrorIs(t, err, common.ErrorNotImplemented)
}

func TestGetConfigAndCookie(t *testing.T) {
	f := newFixture(t, extendedCorpus())

	cfg := f.svc.GetConfig()
	assert.Equal(t, common.MaxUpdatesInResponse, cfg.MaxUpdatesInResponse)
	assert.True(t, cfg.SupportsDrivers)

	// A fresh cookie gets a generated computer id.
	ck, err := f.svc.GetCookie(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ck.IsZero())

	// Presenting the old cookie keeps the computer id.
	old := clientCookie()
	renewed, err := f.svc.GetCookie(context.Background(), &old)
	require.NoError(t, err)
	assert.Equal(t, old.EncryptedData, renewed.EncryptedData)
}
