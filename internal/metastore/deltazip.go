package metastore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/Snshadow/update-server-server-sync/internal/filex"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// DeltaZipStore appends newly added packages as numbered zip sections.
// toc.json tracks the running prefix sums of per-section package counts, so
// resolving an index to its section is a binary search; sections themselves
// are immutable once written.
type DeltaZipStore struct {
	mu   sync.RWMutex
	root string

	idx *memIndex

	// counts[i] is the total number of packages in sections 0..i.
	counts []int

	pending  []zipPending
	sections map[int]*zip.ReadCloser
}

type zipPending struct {
	raw   []byte
	files []update.FileReference
}

type zipTOC struct {
	Version int   `json:"version"`
	Counts  []int `json:"counts"`
}

type zipManifestEntry struct {
	ID        string `json:"id"`
	Partition string `json:"partition"`
}

const tocVersion = 1

// OpenDeltaZip opens the delta-zip store rooted at dir, creating an empty
// one when the directory holds no toc.json yet.
func OpenDeltaZip(dir string) (*DeltaZipStore, error) {
	if _, err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}

	s := &DeltaZipStore{
		root:     dir,
		idx:      newMemIndex(),
		sections: make(map[int]*zip.ReadCloser),
	}

	tocRaw, err := os.ReadFile(filepath.Join(dir, "toc.json"))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read toc: %w", err)
	}

	var toc zipTOC
	if err := json.Unmarshal(tocRaw, &toc); err != nil {
		return nil, fmt.Errorf("decode toc: %w", err)
	}
	if toc.Version != tocVersion {
		return nil, fmt.Errorf("unsupported toc version %d", toc.Version)
	}

	for section := range toc.Counts {
		if err := s.loadSection(section); err != nil {
			s.closeSections()
			return nil, err
		}
	}
	s.counts = toc.Counts

	return s, nil
}

func (s *DeltaZipStore) sectionPath(n int) string {
	return filepath.Join(s.root, fmt.Sprintf("%d.zip", n))
}

func (s *DeltaZipStore) loadSection(n int) error {
	rc, err := zip.OpenReader(s.sectionPath(n))
	if err != nil {
		return fmt.Errorf("open section %d: %w", n, err)
	}
	s.sections[n] = rc

	manifest, err := readZipEntry(rc, "packages.json")
	if err != nil {
		return fmt.Errorf("section %d: %w", n, err)
	}
	var entries []zipManifestEntry
	if err := json.Unmarshal(manifest, &entries); err != nil {
		return fmt.Errorf("section %d manifest: %w", n, err)
	}

	for _, e := range entries {
		part, err := LookupPartition(e.Partition)
		if err != nil {
			return err
		}
		id, err := part.ParseIdentity(e.ID)
		if err != nil {
			return fmt.Errorf("section %d manifest: %w", n, err)
		}
		s.idx.add(id, part.Name)
	}
	return nil
}

// errZipEntryMissing distinguishes an absent optional entry from real I/O
// trouble.
var errZipEntryMissing = errors.New("zip entry missing")

func readZipEntry(rc *zip.ReadCloser, name string) ([]byte, error) {
	for _, f := range rc.File {
		if f.Name == name {
			r, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer r.Close()
			return io.ReadAll(r)
		}
	}
	return nil, fmt.Errorf("%w: %q", errZipEntryMissing, name)
}

func (s *DeltaZipStore) persistedCount() int {
	if len(s.counts) == 0 {
		return 0
	}
	return s.counts[len(s.counts)-1]
}

// AddPackage buffers the package in memory; Flush writes one new section
// holding everything buffered since the last flush.
func (s *DeltaZipStore) AddPackage(pkg *update.Package) error {
	part, err := LookupPartition(pkg.Type.Partition())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, added := s.idx.add(pkg.ID, part.Name); !added {
		return nil
	}
	s.pending = append(s.pending, zipPending{raw: rawOf(pkg), files: filesOf(part, pkg)})
	return nil
}

// locate resolves an index to its section and local position. The second
// return is negative for indexes still pending in memory.
func (s *DeltaZipStore) locate(index int) (section, local int) {
	if index > s.persistedCount() {
		return -1, index - s.persistedCount() - 1
	}
	section = sort.SearchInts(s.counts, index)
	prev := 0
	if section > 0 {
		prev = s.counts[section-1]
	}
	return section, index - prev - 1
}

func (s *DeltaZipStore) metadataLocked(index int) ([]byte, error) {
	section, local := s.locate(index)
	if section < 0 {
		return s.pending[local].raw, nil
	}
	return readZipEntry(s.sections[section], fmt.Sprintf("metadata/%d.xml", local))
}

func (s *DeltaZipStore) Metadata(id update.Identity) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, ok := s.idx.index(id)
	if !ok {
		return nil, errNotFound(id)
	}
	raw, err := s.metadataLocked(index)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *DeltaZipStore) Files(id update.Identity) ([]update.FileReference, error) {
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
		return s.filesFromMetadataLocked(index, part)
	}

	section, local := s.locate(index)
	if section < 0 {
		return s.pending[local].files, nil
	}
	raw, err := readZipEntry(s.sections[section], fmt.Sprintf("filemetadata/%d.json", local))
	if errors.Is(err, errZipEntryMissing) {
		// Stored without file descriptors.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []update.FileReference
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("file metadata for %s: %w", id, err)
	}
	return files, nil
}

func (s *DeltaZipStore) filesFromMetadataLocked(index int, part Partition) ([]update.FileReference, error) {
	raw, err := s.metadataLocked(index)
	if err != nil {
		return nil, err
	}
	pkg, err := part.NewPackage(raw)
	if err != nil {
		return nil, err
	}
	return pkg.Files, nil
}

func (s *DeltaZipStore) Package(id update.Identity) (*update.Package, error) {
	s.mu.RLock()
	index, ok := s.idx.index(id)
	s.mu.RUnlock()
	if !ok {
		return nil, errNotFound(id)
	}
	return s.PackageByIndex(index)
}

func (s *DeltaZipStore) PackageByIndex(index int) (*update.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, partName, ok := s.idx.identity(index)
	if !ok {
		return nil, errIndexNotFound(index)
	}
	part, err := LookupPartition(partName)
	if err != nil {
		return nil, err
	}
	raw, err := s.metadataLocked(index)
	if err != nil {
		return nil, err
	}
	return part.NewPackage(raw)
}

func (s *DeltaZipStore) PackageIndex(id update.Identity) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index, ok := s.idx.index(id)
	if !ok {
		return 0, errNotFound(id)
	}
	return index, nil
}

func (s *DeltaZipStore) PackageIdentity(index int) (update.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, _, ok := s.idx.identity(index)
	if !ok {
		return update.Identity{}, errIndexNotFound(index)
	}
	return id, nil
}

func (s *DeltaZipStore) Contains(id update.Identity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idx.index(id)
	return ok
}

func (s *DeltaZipStore) Identities() []IndexedIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.snapshot()
}

// Flush writes the buffered packages as the next numbered section and
// republishes toc.json.
func (s *DeltaZipStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	section := len(s.counts)
	if err := s.writeSection(section); err != nil {
		return err
	}

	s.counts = append(s.counts, s.persistedCount()+len(s.pending))
	toc, err := json.Marshal(zipTOC{Version: tocVersion, Counts: s.counts})
	if err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(filepath.Join(s.root, "toc.json"), toc, 0o660); err != nil {
		return fmt.Errorf("write toc: %w", err)
	}

	s.pending = nil
	return s.loadSectionReaderOnly(section)
}

// loadSectionReaderOnly opens the freshly written section without touching
// the index (its entries are already indexed).
func (s *DeltaZipStore) loadSectionReaderOnly(n int) error {
	rc, err := zip.OpenReader(s.sectionPath(n))
	if err != nil {
		return fmt.Errorf("reopen section %d: %w", n, err)
	}
	s.sections[n] = rc
	return nil
}

func (s *DeltaZipStore) writeSection(section int) error {
	f, err := os.Create(s.sectionPath(section))
	if err != nil {
		return fmt.Errorf("create section %d: %w", section, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	base := s.persistedCount()
	manifest := make([]zipManifestEntry, len(s.pending))
	for i, p := range s.pending {
		id, partName, _ := s.idx.identity(base + i + 1)
		manifest[i] = zipManifestEntry{ID: id.String(), Partition: partName}

		if err := writeZipEntry(zw, fmt.Sprintf("metadata/%d.xml", i), p.raw); err != nil {
			return err
		}
		if p.files != nil {
			filesJSON, err := json.Marshal(p.files)
			if err != nil {
				return err
			}
			if err := writeZipEntry(zw, fmt.Sprintf("filemetadata/%d.json", i), filesJSON); err != nil {
				return err
			}
		}
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	if err := writeZipEntry(zw, "packages.json", manifestJSON); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize section %d: %w", section, err)
	}
	return f.Sync()
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (s *DeltaZipStore) closeSections() {
	for _, rc := range s.sections {
		_ = rc.Close()
	}
	s.sections = make(map[int]*zip.ReadCloser)
}

func (s *DeltaZipStore) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSections()
	return nil
}
