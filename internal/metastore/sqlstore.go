package metastore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/Snshadow/update-server-server-sync/internal/metastore/migrations"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// SQLiteStore keeps every package in a single embedded SQLite table with
// write-ahead logging enabled, so readers proceed while a writer appends.
// The identity↔index mapping is mirrored in memory at open time.
type SQLiteStore struct {
	mu  sync.RWMutex
	db  *sql.DB
	idx *memIndex
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// OpenSQLite opens (creating when absent) the SQLite store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	if rows, err := db.Query("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	} else {
		rows.Close()
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	if err := gooseUpContext(context.Background(), db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}

	s := &SQLiteStore{db: db, idx: newMemIndex()}
	if err := s.loadIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) loadIndex() error {
	rows, err := s.db.Query(`SELECT idx, update_id, revision, part FROM packages ORDER BY idx`)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx, revision int
			guidStr, part string
		)
		if err := rows.Scan(&idx, &guidStr, &revision, &part); err != nil {
			return err
		}
		p, err := LookupPartition(part)
		if err != nil {
			return err
		}
		guid, err := uuid.Parse(guidStr)
		if err != nil {
			return fmt.Errorf("load index: %w", err)
		}
		assigned, _ := s.idx.add(update.Identity{UpdateID: guid, RevisionNumber: revision}, p.Name)
		if assigned != idx {
			return fmt.Errorf("load index: non-dense index %d (expected %d)", idx, assigned)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) AddPackage(pkg *update.Package) error {
	part, err := LookupPartition(pkg.Type.Partition())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.idx.index(pkg.ID); ok {
		return nil
	}

	var filesJSON any
	if files := filesOf(part, pkg); files != nil {
		b, err := json.Marshal(files)
		if err != nil {
			return err
		}
		filesJSON = string(b)
	}

	next := s.idx.len() + 1
	_, err = s.db.Exec(
		`INSERT INTO packages (idx, update_id, revision, part, xml, files) VALUES (?, ?, ?, ?, ?, ?)`,
		next, pkg.ID.UpdateID.String(), pkg.ID.RevisionNumber, part.Name, rawOf(pkg), filesJSON,
	)
	if err != nil {
		return fmt.Errorf("insert package %s: %w", pkg.ID, err)
	}
	s.idx.add(pkg.ID, part.Name)
	return nil
}

func (s *SQLiteStore) rawByIndex(index int) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRow(`SELECT xml FROM packages WHERE idx = ?`, index).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errIndexNotFound(index)
	}
	if err != nil {
		return nil, fmt.Errorf("read package %d: %w", index, err)
	}
	return raw, nil
}

func (s *SQLiteStore) Metadata(id update.Identity) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, ok := s.idx.index(id)
	if !ok {
		return nil, errNotFound(id)
	}
	raw, err := s.rawByIndex(index)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *SQLiteStore) Files(id update.Identity) ([]update.FileReference, error) {
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
		raw, err := s.rawByIndex(index)
		if err != nil {
			return nil, err
		}
		pkg, err := part.NewPackage(raw)
		if err != nil {
			return nil, err
		}
		return pkg.Files, nil
	}

	var filesJSON sql.NullString
	err = s.db.QueryRow(`SELECT files FROM packages WHERE idx = ?`, index).Scan(&filesJSON)
	if err != nil {
		return nil, fmt.Errorf("read file metadata %s: %w", id, err)
	}
	if !filesJSON.Valid {
		return nil, nil
	}
	var files []update.FileReference
	if err := json.Unmarshal([]byte(filesJSON.String), &files); err != nil {
		return nil, fmt.Errorf("file metadata for %s: %w", id, err)
	}
	return files, nil
}

func (s *SQLiteStore) Package(id update.Identity) (*update.Package, error) {
	s.mu.RLock()
	index, ok := s.idx.index(id)
	s.mu.RUnlock()
	if !ok {
		return nil, errNotFound(id)
	}
	return s.PackageByIndex(index)
}

func (s *SQLiteStore) PackageByIndex(index int) (*update.Package, error) {
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
	raw, err := s.rawByIndex(index)
	if err != nil {
		return nil, err
	}
	return part.NewPackage(raw)
}

func (s *SQLiteStore) PackageIndex(id update.Identity) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index, ok := s.idx.index(id)
	if !ok {
		return 0, errNotFound(id)
	}
	return index, nil
}

func (s *SQLiteStore) PackageIdentity(index int) (update.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, _, ok := s.idx.identity(index)
	if !ok {
		return update.Identity{}, errIndexNotFound(index)
	}
	return id, nil
}

func (s *SQLiteStore) Contains(id update.Identity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idx.index(id)
	return ok
}

func (s *SQLiteStore) Identities() []IndexedIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.snapshot()
}

// Flush forces a WAL checkpoint so everything written so far survives a
// crash of the host process.
func (s *SQLiteStore) Flush() error {
	rows, err := s.db.Query("PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return rows.Close()
}

func (s *SQLiteStore) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	return s.db.Close()
}
