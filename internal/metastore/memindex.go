package metastore

import (
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// memIndex is the in-memory identity↔index mapping every backend keeps
// alongside its persistent form. Index 0 is never used; entry i lives at
// wire index i+1. Callers synchronize access.
type memIndex struct {
	byID    map[update.Identity]int
	entries []indexEntry // position = index-1
}

type indexEntry struct {
	id        update.Identity
	partition string
}

func newMemIndex() *memIndex {
	return &memIndex{byID: make(map[update.Identity]int)}
}

// add assigns the next dense index to id and returns it. Present identities
// keep their index.
func (m *memIndex) add(id update.Identity, partition string) (index int, added bool) {
	if idx, ok := m.byID[id]; ok {
		return idx, false
	}
	m.entries = append(m.entries, indexEntry{id: id, partition: partition})
	idx := len(m.entries)
	m.byID[id] = idx
	return idx, true
}

func (m *memIndex) index(id update.Identity) (int, bool) {
	idx, ok := m.byID[id]
	return idx, ok
}

func (m *memIndex) identity(index int) (update.Identity, string, bool) {
	if index < 1 || index > len(m.entries) {
		return update.Identity{}, "", false
	}
	e := m.entries[index-1]
	return e.id, e.partition, true
}

func (m *memIndex) len() int { return len(m.entries) }

// snapshot materializes the full listing in index order.
func (m *memIndex) snapshot() []IndexedIdentity {
	out := make([]IndexedIdentity, len(m.entries))
	for i, e := range m.entries {
		out[i] = IndexedIdentity{Index: i + 1, ID: e.id}
	}
	return out
}

// rawOf returns the package's stored blob, synthesizing one when the caller
// built the package in memory.
func rawOf(pkg *update.Package) []byte {
	if len(pkg.Raw) > 0 {
		return pkg.Raw
	}
	return update.MarshalMetadata(pkg)
}

// filesOf decides which descriptor list a partition persists out-of-band.
func filesOf(p Partition, pkg *update.Package) []update.FileReference {
	if !p.HasExternalFileMetadata {
		return nil
	}
	return pkg.Files
}
