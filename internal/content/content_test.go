package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snshadow/update-server-server-sync/internal/logging"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

func TestLocations_Resolve(t *testing.T) {
	f := update.FileReference{
		Digest: []byte{0xab, 0xcd},
		Source: "http://download.windowsupdate.com/d/upd.cab",
	}

	// Without a content root the upstream URL passes through.
	loc := Locations{}.Resolve(f)
	assert.Equal(t, f.Source, loc.URL)
	assert.Equal(t, f.Digest, loc.FileDigest)

	// With one, clients are pointed at {root}/{hex(digest)}.
	loc = Locations{ContentRoot: "http://wsus.local:8530/Content/"}.Resolve(f)
	assert.Equal(t, "http://wsus.local:8530/Content/abcd", loc.URL)
}

func TestMirror_FetchAndVerify(t *testing.T) {
	payload := []byte("cabinet bytes")
	digest := sha256.Sum256(payload)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	root := t.TempDir()
	m := NewMirror(DirSink{Root: root}, logging.NewJSONLogger(io.Discard))

	files := []update.FileReference{{
		Name:   "upd.cab",
		Digest: digest[:],
		Size:   int64(len(payload)),
		Source: ts.URL + "/upd.cab",
	}}
	require.NoError(t, m.Fetch(context.Background(), files))

	stored, err := os.ReadFile(filepath.Join(root, hex.EncodeToString(digest[:])))
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	// A second fetch is a no-op (sink already has the file).
	require.NoError(t, m.Fetch(context.Background(), files))
}

func TestMirror_DigestMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	defer ts.Close()

	wrong := sha256.Sum256([]byte("expected"))
	m := NewMirror(DirSink{Root: t.TempDir()}, logging.NewJSONLogger(io.Discard))

	err := m.Fetch(context.Background(), []update.FileReference{{
		Name:   "upd.cab",
		Digest: wrong[:],
		Source: ts.URL + "/upd.cab",
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestMirror_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMirror(DirSink{Root: t.TempDir()}, logging.NewJSONLogger(io.Discard))
	err := m.Fetch(ctx, []update.FileReference{{Name: "x", Digest: []byte{1}}})
	assert.Error(t, err)
}

func TestMirror_UpstreamFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	m := NewMirror(DirSink{Root: t.TempDir()}, logging.NewJSONLogger(io.Discard))
	err := m.Fetch(context.Background(), []update.FileReference{{
		Name:   "gone.cab",
		Digest: []byte{9, 9},
		Source: ts.URL + "/gone.cab",
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}
