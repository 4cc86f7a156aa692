package syncer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Snshadow/update-server-server-sync/internal/graph"
	"github.com/Snshadow/update-server-server-sync/internal/server/cookie"
	"github.com/Snshadow/update-server-server-sync/internal/server/engine"
	"github.com/Snshadow/update-server-server-sync/internal/server/models"
)

// stage identifies which tier of the graph a response emits. Exactly one
// stage produces NewUpdates per request.
type stage int

const (
	stageRoots stage = iota + 1
	stageNonLeafs
	stageBundles
	stageSoftwareLeafs
)

func (st stage) isLeaf() bool {
	return st == stageBundles || st == stageSoftwareLeafs
}

// SyncUpdates runs one staged sync for the client identified by the cookie.
// The engine's read lock is held from translation until the response is
// fully assembled.
func (s *Service) SyncUpdates(ctx context.Context, ck cookie.Cookie, params SyncParams) (*SyncInfo, error) {
	v, release, err := s.engine.View()
	if err != nil {
		return nil, err
	}
	defer release()

	computerID, err := s.cookies.ComputerID(ck)
	if err != nil {
		return nil, err
	}

	// Translate wire indexes to GUIDs; an unknown index fails the request.
	installed, err := s.translate(v, params.InstalledNonLeafUpdateIDs)
	if err != nil {
		return nil, err
	}
	otherCached, err := s.translate(v, params.OtherCachedUpdateIDs)
	if err != nil {
		return nil, err
	}

	clientKnown := make(graph.GUIDSet, len(installed.set)+len(otherCached.set))
	for guid := range installed.set {
		clientKnown.Add(guid)
	}
	for guid := range otherCached.set {
		clientKnown.Add(guid)
	}

	categories := make(graph.GUIDSet, len(params.FilterCategoryIDs))
	for _, c := range params.FilterCategoryIDs {
		categories.Add(c)
	}

	req := &syncRequest{
		view:        v,
		computerID:  computerID,
		installed:   installed.set,
		clientKnown: clientKnown,
		categories:  categories,
	}

	var info *SyncInfo
	if params.SkipSoftwareSync {
		info, err = s.syncDrivers(ctx, req, params)
	} else {
		info, err = s.syncSoftware(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	info.OutOfScopeRevisionIDs = s.outOfScope(req, installed, otherCached)

	changed, err := s.changedDeployments(ctx, req)
	if err != nil {
		return nil, err
	}
	info.ChangedUpdates = changed

	if info.NewCookie, err = s.cookies.Issue(computerID); err != nil {
		return nil, err
	}
	info.DriverSyncNotNeeded = "false"

	// The response is complete; move the client's sync horizon.
	if err := s.computers.UpdateSync(ctx, computerID, s.now()); err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "sync served",
		"computer", computerID,
		"new", len(info.NewUpdates),
		"changed", len(info.ChangedUpdates),
		"truncated", info.Truncated)
	return info, nil
}

// syncRequest carries the translated request through the stages.
type syncRequest struct {
	view        *engine.View
	computerID  string
	installed   graph.GUIDSet
	clientKnown graph.GUIDSet
	categories  graph.GUIDSet
}

// translated keeps both the GUID set and the client's own index per GUID,
// which the out-of-scope listing reports back.
type translated struct {
	set     graph.GUIDSet
	indexes map[uuid.UUID]int
}

func (s *Service) translate(v *engine.View, indexes []int) (translated, error) {
	out := translated{
		set:     make(graph.GUIDSet, len(indexes)),
		indexes: make(map[uuid.UUID]int, len(indexes)),
	}
	for _, idx := range indexes {
		guid, err := v.GUIDForIndex(idx)
		if err != nil {
			return translated{}, err
		}
		out.set.Add(guid)
		out.indexes[guid] = idx
	}
	return out, nil
}

// applicable applies the oracle plus the optional category filter.
func (r *syncRequest) applicable(guid uuid.UUID) bool {
	if !r.view.Graph.IsApplicable(guid, r.installed) {
		return false
	}
	if len(r.categories) == 0 {
		return true
	}
	return r.view.Graph.MatchesCategories(guid, r.categories)
}

// syncSoftware selects the single emitting stage and assembles its updates.
func (s *Service) syncSoftware(ctx context.Context, req *syncRequest) (*SyncInfo, error) {
	g := req.view.Graph

	// Stage 1: roots the client does not know yet, unconditionally.
	candidates, st := s.collect(req, g.Roots(), stageRoots, func(guid uuid.UUID) bool {
		return true
	})

	// Stage 2: applicable non-leafs.
	if len(candidates) == 0 {
		candidates, st = s.collect(req, g.NonLeafs(), stageNonLeafs, req.applicable)
	}

	// Stage 3: applicable software leaves that bundle other updates.
	if len(candidates) == 0 {
		candidates, st = s.collect(req, g.SoftwareLeafs(), stageBundles, func(guid uuid.UUID) bool {
			return g.IsBundle(guid) && req.applicable(guid)
		})
	}

	// Stage 4: the remaining applicable software leaves.
	if len(candidates) == 0 {
		candidates, st = s.collect(req, g.SoftwareLeafs(), stageSoftwareLeafs, func(guid uuid.UUID) bool {
			return !g.IsBundle(guid) && req.applicable(guid)
		})
	}

	info := &SyncInfo{}
	if len(candidates) == 0 {
		return info, nil
	}

	candidates, info.Truncated = s.truncate(candidates)

	for _, c := range candidates {
		ui, err := s.updateInfo(ctx, req, c, st, nil)
		if err != nil {
			return nil, err
		}
		info.NewUpdates = append(info.NewUpdates, ui)
	}
	return info, nil
}

// candidate is one selectable update with its current revision index.
type candidate struct {
	guid  uuid.UUID
	index int
}

// collect gathers the stage's candidates (unknown to the client and
// accepted by keep), ordered ascending by index.
func (s *Service) collect(req *syncRequest, pool graph.GUIDSet, st stage, keep func(uuid.UUID) bool) ([]candidate, stage) {
	var out []candidate
	for guid := range pool {
		if req.clientKnown.Contains(guid) || !keep(guid) {
			continue
		}
		index, ok := req.view.RevisionIndex(guid)
		if !ok {
			continue
		}
		out = append(out, candidate{guid: guid, index: index})
	}
	sortCandidates(out)
	return out, st
}

// sortCandidates orders by ascending index, the deterministic within-stage
// emission order.
func sortCandidates(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool { return cands[i].index < cands[j].index })
}

// truncate applies the response cap: probe one past the cap so Truncated is
// exact.
func (s *Service) truncate(candidates []candidate) ([]candidate, bool) {
	if len(candidates) > s.maxUpdates {
		return candidates[:s.maxUpdates], true
	}
	return candidates, false
}

// outOfScope lists updates the client claims that are no longer applicable
// (or no longer known), reported under the client's own indexes.
func (s *Service) outOfScope(req *syncRequest, installed, otherCached translated) []int {
	var out []int
	seen := make(map[int]bool)
	for _, t := range []translated{installed, otherCached} {
		for guid, idx := range t.indexes {
			if req.view.Graph.Contains(guid) && req.view.Graph.IsApplicable(guid, req.installed) {
				continue
			}
			if !seen[idx] {
				seen[idx] = true
				out = append(out, idx)
			}
		}
	}
	sort.Ints(out)
	return out
}

// changedDeployments emits an entry for every known update whose deployment
// row changed since the client's last sync.
func (s *Service) changedDeployments(ctx context.Context, req *syncRequest) ([]UpdateInfo, error) {
	lastSync := time.Time{}
	if row, err := s.computers.Get(ctx, req.computerID); err != nil {
		return nil, err
	} else if row != nil {
		lastSync = row.LastSyncTime
	}

	known := make([]candidate, 0, len(req.clientKnown))
	for guid := range req.clientKnown {
		if index, ok := req.view.RevisionIndex(guid); ok {
			known = append(known, candidate{guid: guid, index: index})
		}
	}
	sort.Slice(known, func(i, j int) bool { return known[i].index < known[j].index })

	var out []UpdateInfo
	for _, c := range known {
		dep, err := s.deploymentFor(ctx, c.index)
		if err != nil {
			return nil, err
		}
		if dep == nil || !dep.LastChangeTime.After(lastSync) {
			continue
		}

		st := stageSoftwareLeafs
		if !req.view.Graph.SoftwareLeafs().Contains(c.guid) {
			st = stageNonLeafs
		}
		ui, err := s.updateInfo(ctx, req, c, st, dep)
		if err != nil {
			return nil, err
		}
		out = append(out, ui)
	}
	return out, nil
}

// updateInfo assembles one UpdateInfo. When dep is nil the deployment row is
// looked up; a still-missing row falls back to the bundling-derived action.
func (s *Service) updateInfo(ctx context.Context, req *syncRequest, c candidate, st stage, dep *models.Deployment) (UpdateInfo, error) {
	g := req.view.Graph

	if dep == nil {
		row, err := s.deploymentFor(ctx, c.index)
		if err != nil {
			return UpdateInfo{}, err
		}
		dep = row
	}

	xml, err := req.view.CoreFragment(c.guid)
	if err != nil {
		return UpdateInfo{}, fmt.Errorf("core fragment for %s: %w", c.guid, err)
	}

	di := DeploymentInfo{
		ID:                   s.deploymentID(g, c.guid, st),
		Action:               s.action(g, c.guid, st, dep).String(),
		LastChangeTime:       legacyLastChange,
		AutoDownload:         "0",
		AutoSelect:           "0",
		SupersedenceBehavior: "0",
		IsAssigned:           true,
	}
	if dep != nil {
		di.LastChangeTime = dep.LastChangeTime.UTC().Format(lastChangeLayout)
		if dep.Deadline != nil {
			di.Deadline = dep.Deadline.Format(time.RFC3339)
		}
	}

	return UpdateInfo{
		ID:         c.index,
		IsLeaf:     st.isLeaf(),
		Xml:        string(xml),
		Deployment: di,
	}, nil
}

// action resolves the deployment action: an operator row always wins; the
// default is derived from the update's place in the graph and the bundle
// compatibility switch.
func (s *Service) action(g *graph.Graph, guid uuid.UUID, st stage, dep *models.Deployment) models.DeploymentAction {
	if dep != nil {
		return dep.Action
	}
	if !st.isLeaf() {
		return models.ActionEvaluate
	}
	if g.IsBundled(guid) {
		return models.ActionBundle
	}
	if g.IsBundle(guid) && s.legacyBundleActions {
		return models.ActionEvaluate
	}
	return models.ActionInstall
}

func (s *Service) deploymentID(g *graph.Graph, guid uuid.UUID, st stage) int {
	if !st.isLeaf() {
		return deploymentIDNonLeaf
	}
	switch {
	case g.IsBundle(guid):
		return deploymentIDBundle
	case g.IsBundled(guid):
		return deploymentIDBundled
	default:
		return deploymentIDStandalone
	}
}
