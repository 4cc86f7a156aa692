package content

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Snshadow/update-server-server-sync/internal/common"
	"github.com/Snshadow/update-server-server-sync/internal/filex"
	"github.com/Snshadow/update-server-server-sync/internal/logging"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// Sink receives mirrored files keyed by the hex form of their digest.
type Sink interface {
	// Has reports whether the keyed file is already stored.
	Has(ctx context.Context, key string) (bool, error)

	// Put stores the file under key.
	Put(ctx context.Context, key string, body io.Reader, size int64) error
}

// DirSink stores mirrored files as {root}/{hex(digest)}.
type DirSink struct {
	Root string
}

func (d DirSink) Has(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(filepath.Join(d.Root, key))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (d DirSink) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	if _, err := filex.EnsureDir(d.Root); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(filepath.Join(d.Root, key), data, 0o660)
}

// Mirror downloads the payload files of stored updates from their upstream
// source into a Sink, verifying each against its declared digest.
type Mirror struct {
	sink   Sink
	client *http.Client
	logger logging.Logger
}

func NewMirror(sink Sink, logger logging.Logger) *Mirror {
	return &Mirror{
		sink:   sink,
		client: &http.Client{},
		logger: logger.With("module", "content_mirror"),
	}
}

// Fetch mirrors every file of the given references, skipping ones already
// present. Cancellation is honored between files.
func (m *Mirror) Fetch(ctx context.Context, files []update.FileReference) error {
	for _, f := range files {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", common.ErrorCancelled, ctx.Err())
		default:
		}

		if err := m.fetchOne(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) fetchOne(ctx context.Context, f update.FileReference) error {
	key := hex.EncodeToString(f.Digest)

	ok, err := m.sink.Has(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if f.Source == "" {
		return fmt.Errorf("file %s: no upstream source", f.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Source, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", f.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", f.Name, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("download %s: %w", f.Name, err)
	}
	if err := verifyDigest(f, body); err != nil {
		return err
	}

	if err := m.sink.Put(ctx, key, bytes.NewReader(body), int64(len(body))); err != nil {
		return fmt.Errorf("store %s: %w", f.Name, err)
	}
	m.logger.Info(ctx, "mirrored file", "name", f.Name, "digest", key, "bytes", len(body))
	return nil
}

// verifyDigest checks the downloaded body against the declared digest. The
// algorithm is inferred from the digest length when unnamed.
func verifyDigest(f update.FileReference, body []byte) error {
	var sum []byte
	switch {
	case f.DigestAlgorithm == "SHA256" || len(f.Digest) == sha256.Size:
		s := sha256.Sum256(body)
		sum = s[:]
	case f.DigestAlgorithm == "SHA1" || len(f.Digest) == sha1.Size:
		s := sha1.Sum(body)
		sum = s[:]
	default:
		// Unknown digest scheme: accept, the upstream catalog is trusted.
		return nil
	}
	if !bytes.Equal(sum, f.Digest) {
		return fmt.Errorf("file %s: digest mismatch", f.Name)
	}
	return nil
}
