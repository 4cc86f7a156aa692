// Package metastore persists update metadata and maintains the dense index
// the sync protocol uses on the wire. Three interchangeable backends satisfy
// the same contract: a compressed delta-zip store, a plain directory store,
// and an embedded SQLite store.
package metastore

import (
	"fmt"
	"io"

	"github.com/Snshadow/update-server-server-sync/internal/common"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// IndexedIdentity pairs an identity with its dense wire index.
type IndexedIdentity struct {
	Index int
	ID    update.Identity
}

// Store is the backing-store contract. Indexes are dense and 1-based,
// assigned in insertion order by AddPackage. Implementations serialize
// writers and allow concurrent readers; Identities returns a snapshot.
type Store interface {
	// AddPackage stores pkg under a freshly assigned index. Re-adding an
	// identity already present is a no-op.
	AddPackage(pkg *update.Package) error

	// Metadata streams the raw metadata XML of the given revision.
	Metadata(id update.Identity) (io.ReadCloser, error)

	// Files returns the deserialized file-descriptor list.
	Files(id update.Identity) ([]update.FileReference, error)

	// Package reconstructs the in-memory package.
	Package(id update.Identity) (*update.Package, error)

	// PackageByIndex reconstructs the package stored at the given index.
	PackageByIndex(index int) (*update.Package, error)

	PackageIndex(id update.Identity) (int, error)
	PackageIdentity(index int) (update.Identity, error)
	Contains(id update.Identity) bool

	// Identities returns every stored identity with its index, ascending
	// by index.
	Identities() []IndexedIdentity

	// Flush durably persists pending mutations.
	Flush() error

	Close() error
}

// Kind names a backend implementation.
type Kind string

const (
	KindDeltaZip  Kind = "deltazip"
	KindDirectory Kind = "dir"
	KindSQLite    Kind = "sqlite"
)

// Open opens (creating when absent) a store of the given kind rooted at path.
func Open(kind Kind, path string) (Store, error) {
	switch kind {
	case KindDeltaZip:
		return OpenDeltaZip(path)
	case KindDirectory:
		return OpenDirectory(path)
	case KindSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// errNotFound wraps the shared sentinel with the identity that missed.
func errNotFound(id update.Identity) error {
	return fmt.Errorf("package %s: %w", id, common.ErrorNotFound)
}

func errIndexNotFound(index int) error {
	return fmt.Errorf("index %d: %w", index, common.ErrorNotFound)
}
