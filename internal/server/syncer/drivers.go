package syncer

import (
	"context"

	"github.com/google/uuid"

	"github.com/Snshadow/update-server-server-sync/internal/server/drivers"
	"github.com/Snshadow/update-server-server-sync/internal/server/models"
)

// syncDrivers is the SkipSoftwareSync branch: the client still climbs the
// root and non-leaf tiers as usual, but the terminal tier is driven by
// hardware-id matching instead of the software-leaf set. Matched drivers
// without an approving deployment row are reported to the observer and
// withheld.
func (s *Service) syncDrivers(ctx context.Context, req *syncRequest, params SyncParams) (*SyncInfo, error) {
	g := req.view.Graph

	candidates, st := s.collect(req, g.Roots(), stageRoots, func(uuid.UUID) bool {
		return true
	})
	if len(candidates) == 0 {
		candidates, st = s.collect(req, g.NonLeafs(), stageNonLeafs, req.applicable)
	}

	var deps map[int]*models.Deployment
	if len(candidates) == 0 {
		matched := req.view.Matcher.Match(drivers.Request{
			HardwareIDs:         params.HardwareIDs,
			ComputerHardwareIDs: params.ComputerHardwareIDs,
		})

		deps = make(map[int]*models.Deployment)
		for _, guid := range matched {
			if req.clientKnown.Contains(guid) || !req.view.Graph.IsApplicable(guid, req.installed) {
				continue
			}
			index, ok := req.view.RevisionIndex(guid)
			if !ok {
				continue
			}

			dep, err := s.deploymentFor(ctx, index)
			if err != nil {
				return nil, err
			}
			if dep == nil || dep.Action == models.ActionPreDeploymentCheck {
				if s.OnUnapprovedDriver != nil {
					if id, ok := req.view.FullIdentity(guid); ok {
						s.OnUnapprovedDriver(id)
					}
				}
				continue
			}
			deps[index] = dep
			candidates = append(candidates, candidate{guid: guid, index: index})
		}
		st = stageSoftwareLeafs
		sortCandidates(candidates)
	}

	info := &SyncInfo{}
	if len(candidates) == 0 {
		return info, nil
	}

	candidates, info.Truncated = s.truncate(candidates)

	for _, c := range candidates {
		ui, err := s.updateInfo(ctx, req, c, st, deps[c.index])
		if err != nil {
			return nil, err
		}
		info.NewUpdates = append(info.NewUpdates, ui)
	}
	return info, nil
}
