package metastore

import (
	"fmt"

	"github.com/Snshadow/update-server-server-sync/internal/common"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// Partition describes one family of stored packages. The registry replaces
// the original's reflective partition discovery with an explicit map
// populated at process startup.
type Partition struct {
	Name string

	// NewPackage reconstructs a package of this partition from its raw
	// metadata blob.
	NewPackage func(raw []byte) (*update.Package, error)

	// ParseIdentity deserializes the partition's identity string form.
	ParseIdentity func(s string) (update.Identity, error)

	// HasExternalFileMetadata is set for partitions whose file descriptors
	// are stored out-of-band instead of being re-parsed from the XML.
	HasExternalFileMetadata bool
}

var partitions = map[string]Partition{}

// RegisterPartition adds a partition to the registry. Registering a name
// twice panics; partitions are wired once at init time.
func RegisterPartition(p Partition) {
	if _, dup := partitions[p.Name]; dup {
		panic(fmt.Sprintf("metastore: partition %q registered twice", p.Name))
	}
	partitions[p.Name] = p
}

// LookupPartition resolves a stored partition name. An unknown name means
// the store was written by a build with partitions this one does not carry;
// opening such a store must fail.
func LookupPartition(name string) (Partition, error) {
	p, ok := partitions[name]
	if !ok {
		return Partition{}, fmt.Errorf("%w: %q", common.ErrorUnknownPartition, name)
	}
	return p, nil
}

func init() {
	for _, name := range []string{"software", "drivers", "categories"} {
		RegisterPartition(Partition{
			Name:                    name,
			NewPackage:              update.ParseMetadata,
			ParseIdentity:           update.ParseIdentity,
			HasExternalFileMetadata: name != "categories",
		})
	}
}
