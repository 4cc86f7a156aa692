// Package engine maintains the derived state the sync layer reads: the
// prerequisite graph, the latest-revision maps, and the driver matcher, all
// rebuilt atomically whenever a metadata source is attached.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/Snshadow/update-server-server-sync/internal/common"
	"github.com/Snshadow/update-server-server-sync/internal/graph"
	"github.com/Snshadow/update-server-server-sync/internal/logging"
	"github.com/Snshadow/update-server-server-sync/internal/metastore"
	"github.com/Snshadow/update-server-server-sync/internal/server/drivers"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// Engine guards the attached metadata source and its derived maps behind
// one reader-writer lock. Sync requests hold the read lock for their full
// duration; Attach, Detach and Reindex take the write lock and swap the
// derived state atomically.
type Engine struct {
	mu     sync.RWMutex
	logger logging.Logger

	store metastore.Store
	view  *View
}

// View is an immutable snapshot of the derived state, valid until its
// release function is called.
type View struct {
	Store   metastore.Store
	Graph   *graph.Graph
	Matcher *drivers.Matcher

	// idToRevisionIndex maps each GUID to the wire index of its current
	// (highest) revision.
	idToRevisionIndex map[uuid.UUID]int

	// idToFullIdentity maps each GUID to its current full identity.
	idToFullIdentity map[uuid.UUID]update.Identity
}

// New constructs a detached engine.
func New(logger logging.Logger) *Engine {
	return &Engine{logger: logger.With("module", "engine")}
}

// Attach makes store the process-wide metadata source and rebuilds every
// derived map. Packages whose metadata fails to parse are skipped, logged
// and counted; they never enter the graph.
func (e *Engine) Attach(ctx context.Context, store metastore.Store) error {
	view, err := e.build(ctx, store)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = store
	e.view = view

	e.logger.Info(ctx, "metadata source attached",
		"packages", len(view.idToFullIdentity),
		"roots", len(view.Graph.Roots()),
		"nonleafs", len(view.Graph.NonLeafs()),
		"software_leafs", len(view.Graph.SoftwareLeafs()))
	return nil
}

// Detach drops the metadata source; sync requests fail with
// ErrorNoMetadataSource until a new one is attached.
func (e *Engine) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = nil
	e.view = nil
}

// Reindex rebuilds the derived maps from the currently attached store.
func (e *Engine) Reindex(ctx context.Context) error {
	e.mu.RLock()
	store := e.store
	e.mu.RUnlock()
	if store == nil {
		return common.ErrorNoMetadataSource
	}
	return e.Attach(ctx, store)
}

// build computes a fresh View outside any lock.
func (e *Engine) build(ctx context.Context, store metastore.Store) (*View, error) {
	type current struct {
		pkg   *update.Package
		index int
	}
	latest := make(map[uuid.UUID]current)

	invalid := 0
	for _, entry := range store.Identities() {
		pkg, err := store.PackageByIndex(entry.Index)
		if err != nil {
			if errors.Is(err, common.ErrorInvalidMetadata) {
				invalid++
				e.logger.Warn(ctx, "skipping package with invalid metadata",
					"identity", entry.ID, "error", err)
				continue
			}
			return nil, fmt.Errorf("load package %s: %w", entry.ID, err)
		}

		prev, ok := latest[pkg.ID.UpdateID]
		if !ok || pkg.ID.RevisionNumber > prev.pkg.ID.RevisionNumber {
			latest[pkg.ID.UpdateID] = current{pkg: pkg, index: entry.Index}
		}
	}
	if invalid > 0 {
		e.logger.Warn(ctx, "invalid metadata blobs excluded", "count", invalid)
	}

	pkgs := make([]*update.Package, 0, len(latest))
	idToRevisionIndex := make(map[uuid.UUID]int, len(latest))
	idToFullIdentity := make(map[uuid.UUID]update.Identity, len(latest))
	for guid, c := range latest {
		pkgs = append(pkgs, c.pkg)
		idToRevisionIndex[guid] = c.index
		idToFullIdentity[guid] = c.pkg.ID
	}

	return &View{
		Store:             store,
		Graph:             graph.Build(pkgs),
		Matcher:           drivers.NewMatcher(pkgs),
		idToRevisionIndex: idToRevisionIndex,
		idToFullIdentity:  idToFullIdentity,
	}, nil
}

// View takes the read lock and returns the current snapshot. The caller
// must invoke release when done with it; every code path of a request keeps
// the lock until its response is assembled.
func (e *Engine) View() (v *View, release func(), err error) {
	e.mu.RLock()
	if e.view == nil {
		e.mu.RUnlock()
		return nil, nil, common.ErrorNoMetadataSource
	}
	return e.view, e.mu.RUnlock, nil
}

// RevisionIndex returns the wire index of the GUID's current revision.
func (v *View) RevisionIndex(guid uuid.UUID) (int, bool) {
	idx, ok := v.idToRevisionIndex[guid]
	return idx, ok
}

// FullIdentity returns the current (GUID, revision) identity for the GUID.
func (v *View) FullIdentity(guid uuid.UUID) (update.Identity, bool) {
	id, ok := v.idToFullIdentity[guid]
	return id, ok
}

// GUIDForIndex resolves a client-supplied wire index to its GUID. Unknown
// indexes yield ErrorInvalidRevisionIndex.
func (v *View) GUIDForIndex(index int) (uuid.UUID, error) {
	id, err := v.Store.PackageIdentity(index)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %d", common.ErrorInvalidRevisionIndex, index)
	}
	return id.UpdateID, nil
}

// rawMetadata loads the stored blob for the GUID's current revision.
func (v *View) rawMetadata(guid uuid.UUID) ([]byte, error) {
	id, ok := v.idToFullIdentity[guid]
	if !ok {
		return nil, fmt.Errorf("guid %s: %w", guid, common.ErrorNotFound)
	}
	rc, err := v.Store.Metadata(id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// CoreFragment returns the core metadata fragment of the GUID's current
// revision, as embedded in each UpdateInfo.
func (v *View) CoreFragment(guid uuid.UUID) ([]byte, error) {
	raw, err := v.rawMetadata(guid)
	if err != nil {
		return nil, err
	}
	return update.CoreFragment(raw)
}
