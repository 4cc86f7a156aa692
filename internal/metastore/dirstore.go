package metastore

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/Snshadow/update-server-server-sync/internal/filex"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// DirectoryStore keeps one metadata XML per identity under
// metadata/partitions/{partition}/{shard}/, where shard is the last byte of
// the GUID (256-way). XML blobs are written through immediately; the
// identity↔index listing is republished on Flush.
type DirectoryStore struct {
	mu   sync.RWMutex
	root string

	idx   *memIndex
	dirty bool
}

type dirIndexEntry struct {
	ID        string `json:"id"`
	Partition string `json:"partition"`
}

// OpenDirectory opens the directory store rooted at dir, creating it when
// missing.
func OpenDirectory(dir string) (*DirectoryStore, error) {
	if _, err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}

	s := &DirectoryStore{root: dir, idx: newMemIndex()}

	raw, err := os.ReadFile(filepath.Join(dir, "index.json"))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var entries []dirIndexEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	for _, e := range entries {
		part, err := LookupPartition(e.Partition)
		if err != nil {
			return nil, err
		}
		id, err := part.ParseIdentity(e.ID)
		if err != nil {
			return nil, fmt.Errorf("decode index: %w", err)
		}
		s.idx.add(id, part.Name)
	}
	return s, nil
}

// shardOf returns the 256-way shard directory for a GUID: the hex form of
// its last byte.
func shardOf(id update.Identity) string {
	b := id.UpdateID[len(id.UpdateID)-1]
	return hex.EncodeToString([]byte{b})
}

func guidHex(id update.Identity) string {
	return hex.EncodeToString(id.UpdateID[:])
}

func (s *DirectoryStore) metadataPath(partition string, id update.Identity) string {
	name := fmt.Sprintf("%s_%d.xml", guidHex(id), id.RevisionNumber)
	return filepath.Join(s.root, "metadata", "partitions", partition, shardOf(id), name)
}

func (s *DirectoryStore) filesPath(id update.Identity) string {
	name := fmt.Sprintf("%s_%d.json", guidHex(id), id.RevisionNumber)
	return filepath.Join(s.root, "filemetadata", shardOf(id), name)
}

func (s *DirectoryStore) AddPackage(pkg *update.Package) error {
	part, err := LookupPartition(pkg.Type.Partition())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, added := s.idx.add(pkg.ID, part.Name); !added {
		return nil
	}

	path := s.metadataPath(part.Name, pkg.ID)
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(path, rawOf(pkg), 0o660); err != nil {
		return fmt.Errorf("write metadata %s: %w", pkg.ID, err)
	}

	if files := filesOf(part, pkg); files != nil {
		filesJSON, err := json.Marshal(files)
		if err != nil {
			return err
		}
		fp := s.filesPath(pkg.ID)
		if _, err := filex.EnsureDir(filepath.Dir(fp)); err != nil {
			return err
		}
		if err := filex.WriteFileAtomic(fp, filesJSON, 0o660); err != nil {
			return fmt.Errorf("write file metadata %s: %w", pkg.ID, err)
		}
	}

	s.dirty = true
	return nil
}

func (s *DirectoryStore) readMetadata(id update.Identity) ([]byte, string, error) {
	index, ok := s.idx.index(id)
	if !ok {
		return nil, "", errNotFound(id)
	}
	_, partName, _ := s.idx.identity(index)
	raw, err := os.ReadFile(s.metadataPath(partName, id))
	if err != nil {
		return nil, "", fmt.Errorf("read metadata %s: %w", id, err)
	}
	return raw, partName, nil
}

func (s *DirectoryStore) Metadata(id update.Identity) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, _, err := s.readMetadata(id)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *DirectoryStore) Files(id update.Identity) ([]update.FileReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, ok := s.idx.index(id)
	if !ok {
		return nil, errNotFound(id)
	}
	_, partName, _ := s.idx.identity(index)
	part, err := LookupPartition(partName)
	if err != nil {
		return nil, err
	}

	if !part.HasExternalFileMetadata {
		raw, _, err := s.readMetadata(id)
		if err != nil {
			return nil, err
		}
		pkg, err := part.NewPackage(raw)
		if err != nil {
			return nil, err
		}
		return pkg.Files, nil
	}

	raw, err := os.ReadFile(s.filesPath(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read file metadata %s: %w", id, err)
	}
	var files []update.FileReference
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("file metadata for %s: %w", id, err)
	}
	return files, nil
}

func (s *DirectoryStore) Package(id update.Identity) (*update.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, partName, err := s.readMetadata(id)
	if err != nil {
		return nil, err
	}
	part, err := LookupPartition(partName)
	if err != nil {
		return nil, err
	}
	return part.NewPackage(raw)
}

func (s *DirectoryStore) PackageByIndex(index int) (*update.Package, error) {
	s.mu.RLock()
	id, _, ok := s.idx.identity(index)
	s.mu.RUnlock()
	if !ok {
		return nil, errIndexNotFound(index)
	}
	return s.Package(id)
}

func (s *DirectoryStore) PackageIndex(id update.Identity) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index, ok := s.idx.index(id)
	if !ok {
		return 0, errNotFound(id)
	}
	return index, nil
}

func (s *DirectoryStore) PackageIdentity(index int) (update.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, _, ok := s.idx.identity(index)
	if !ok {
		return update.Identity{}, errIndexNotFound(index)
	}
	return id, nil
}

func (s *DirectoryStore) Contains(id update.Identity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idx.index(id)
	return ok
}

func (s *DirectoryStore) Identities() []IndexedIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.snapshot()
}

// Flush republishes index.json when any package was added.
func (s *DirectoryStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	entries := make([]dirIndexEntry, s.idx.len())
	for i := range entries {
		id, partName, _ := s.idx.identity(i + 1)
		entries[i] = dirIndexEntry{ID: id.String(), Partition: partName}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(filepath.Join(s.root, "index.json"), raw, 0o660); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *DirectoryStore) Close() error {
	return s.Flush()
}
