package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snshadow/update-server-server-sync/internal/content"
	"github.com/Snshadow/update-server-server-sync/internal/logging"
	"github.com/Snshadow/update-server-server-sync/internal/metastore"
	"github.com/Snshadow/update-server-server-sync/internal/server/cookie"
	"github.com/Snshadow/update-server-server-sync/internal/server/engine"
	"github.com/Snshadow/update-server-server-sync/internal/server/repositories/sqldb"
	"github.com/Snshadow/update-server-server-sync/internal/server/syncer"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

func newTestServer(t *testing.T, pkgs []*update.Package, attach bool) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewJSONLogger(io.Discard)

	store, err := metastore.OpenDirectory(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	for _, p := range pkgs {
		p.Raw = update.MarshalMetadata(p)
		require.NoError(t, store.AddPackage(p))
	}

	eng := engine.New(logger)
	if attach {
		require.NoError(t, eng.Attach(ctx, store))
	}

	db, mgr, err := sqldb.OpenSQLite(ctx, filepath.Join(t.TempDir(), "deploySync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	contentDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(contentDir, "cafe"), []byte("payload"), 0o660))

	svc := syncer.New(eng, mgr.Deployments(db), mgr.Computers(db),
		cookie.NewIssuer(nil, 0), content.Locations{}, logger)
	srv := NewServer(":0", logger, svc, contentDir)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func rootOnlyCorpus() []*update.Package {
	return []*update.Package{{
		ID:   update.Identity{UpdateID: uuid.New(), RevisionNumber: 1},
		Type: update.TypeDetectoid,
	}}
}

func cookieBody() string {
	return fmt.Sprintf("<Cookie><EncryptedData>%s</EncryptedData></Cookie>",
		base64.StdEncoding.EncodeToString([]byte("test-pc")))
}

func TestHTTP_GetConfig(t *testing.T) {
	ts := newTestServer(t, rootOnlyCorpus(), true)

	resp, err := http.Get(ts.URL + "/ClientWebService/config")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "<MaxUpdatesInResponse>50</MaxUpdatesInResponse>")
}

func TestHTTP_SyncUpdates(t *testing.T) {
	ts := newTestServer(t, rootOnlyCorpus(), true)

	reqBody := "<SyncUpdates>" + cookieBody() + "<Parameters></Parameters></SyncUpdates>"
	resp, err := http.Post(ts.URL+"/ClientWebService/sync", "text/xml", bytes.NewBufferString(reqBody))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		NewUpdates []struct {
			ID     int  `xml:"ID"`
			IsLeaf bool `xml:"IsLeaf"`
		} `xml:"SyncInfo>NewUpdates>UpdateInfo"`
		Truncated bool `xml:"SyncInfo>Truncated"`
	}
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.NewUpdates, 1)
	assert.Equal(t, 1, out.NewUpdates[0].ID)
	assert.False(t, out.Truncated)
}

func TestHTTP_SyncWithoutSourceIs503(t *testing.T) {
	ts := newTestServer(t, nil, false)

	reqBody := "<SyncUpdates>" + cookieBody() + "</SyncUpdates>"
	resp, err := http.Post(ts.URL+"/ClientWebService/sync", "text/xml", bytes.NewBufferString(reqBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHTTP_UnknownIndexIs400(t *testing.T) {
	ts := newTestServer(t, rootOnlyCorpus(), true)

	reqBody := "<SyncUpdates>" + cookieBody() +
		"<Parameters><OtherCachedUpdateIDs><int>42</int></OtherCachedUpdateIDs></Parameters></SyncUpdates>"
	resp, err := http.Post(ts.URL+"/ClientWebService/sync", "text/xml", bytes.NewBufferString(reqBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_GetCookie(t *testing.T) {
	ts := newTestServer(t, rootOnlyCorpus(), true)

	resp, err := http.Post(ts.URL+"/ClientWebService/cookie", "text/xml",
		bytes.NewBufferString("<GetCookie></GetCookie>"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		EncryptedData string `xml:"Cookie>EncryptedData"`
	}
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.EncryptedData)
}

func TestHTTP_ReportingNotImplemented(t *testing.T) {
	ts := newTestServer(t, rootOnlyCorpus(), true)

	resp, err := http.Get(ts.URL + "/ReportingWebService/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestHTTP_ContentServing(t *testing.T) {
	ts := newTestServer(t, rootOnlyCorpus(), true)

	resp, err := http.Get(ts.URL + "/Content/cafe")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "payload", string(body))
}

func TestHTTP_MalformedBody(t *testing.T) {
	ts := newTestServer(t, rootOnlyCorpus(), true)

	resp, err := http.Post(ts.URL+"/ClientWebService/sync", "text/xml",
		bytes.NewBufferString("{not xml}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
