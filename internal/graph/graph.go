// Package graph builds the prerequisite graph over a metadata corpus and
// answers applicability queries against it.
//
// Classification is decided in one pass over the current revisions:
// an update with no prerequisites is a root; an update some other update
// depends on is a non-leaf; everything else is a leaf. The three classes are
// pairwise disjoint and cover the corpus.
package graph

import (
	"github.com/google/uuid"

	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// GUIDSet is a plain set of update GUIDs.
type GUIDSet map[uuid.UUID]struct{}

// Contains reports set membership; safe on a nil set.
func (s GUIDSet) Contains(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id into the set.
func (s GUIDSet) Add(id uuid.UUID) {
	s[id] = struct{}{}
}

// Graph is the immutable result of Build. All query methods are safe for
// concurrent use.
type Graph struct {
	roots         GUIDSet
	nonLeafs      GUIDSet
	leafs         GUIDSet
	softwareLeafs GUIDSet

	// prereqs holds the prerequisite expression of each known GUID's
	// current revision.
	prereqs map[uuid.UUID][]update.Prerequisite

	// unresolved marks updates referencing a GUID absent from the corpus;
	// such updates are never applicable.
	unresolved GUIDSet

	// bundles contain other updates; bundled appear inside at least one
	// bundle. The two sets are independent: a bundle may itself be bundled.
	bundles GUIDSet
	bundled GUIDSet

	// bundledWith maps a bundled update to the bundles that carry it.
	bundledWith map[uuid.UUID][]uuid.UUID
}

// Build constructs the graph from the current revision of every known GUID.
// Callers are expected to have already reduced the corpus to one package per
// GUID (the highest revision).
func Build(pkgs []*update.Package) *Graph {
	g := &Graph{
		roots:         make(GUIDSet),
		nonLeafs:      make(GUIDSet),
		leafs:         make(GUIDSet),
		softwareLeafs: make(GUIDSet),
		prereqs:       make(map[uuid.UUID][]update.Prerequisite, len(pkgs)),
		unresolved:    make(GUIDSet),
		bundles:       make(GUIDSet),
		bundled:       make(GUIDSet),
		bundledWith:   make(map[uuid.UUID][]uuid.UUID),
	}

	known := make(GUIDSet, len(pkgs))
	for _, p := range pkgs {
		known.Add(p.ID.UpdateID)
	}

	dependents := make(map[uuid.UUID]int)
	for _, p := range pkgs {
		guid := p.ID.UpdateID
		g.prereqs[guid] = p.Prerequisites

		for _, ref := range update.PrerequisiteGUIDs(p.Prerequisites) {
			if !known.Contains(ref) {
				g.unresolved.Add(guid)
				continue
			}
			dependents[ref]++
		}

		if len(p.BundledUpdates) > 0 {
			g.bundles.Add(guid)
			for _, b := range p.BundledUpdates {
				g.bundled.Add(b.UpdateID)
				g.bundledWith[b.UpdateID] = append(g.bundledWith[b.UpdateID], guid)
			}
		}
	}

	for _, p := range pkgs {
		guid := p.ID.UpdateID
		switch {
		case len(p.Prerequisites) == 0:
			g.roots.Add(guid)
		case dependents[guid] > 0:
			g.nonLeafs.Add(guid)
		default:
			g.leafs.Add(guid)
			if p.Type.IsSoftware() {
				g.softwareLeafs.Add(guid)
			}
		}
	}

	return g
}

// Roots returns the set of updates without prerequisites.
func (g *Graph) Roots() GUIDSet { return g.roots }

// NonLeafs returns the set of updates at least one other update depends on.
func (g *Graph) NonLeafs() GUIDSet { return g.nonLeafs }

// Leafs returns the set of updates with prerequisites and no dependents.
func (g *Graph) Leafs() GUIDSet { return g.leafs }

// SoftwareLeafs returns the leaf updates whose payload is software or a
// driver.
func (g *Graph) SoftwareLeafs() GUIDSet { return g.softwareLeafs }

// Contains reports whether the GUID names a known update.
func (g *Graph) Contains(guid uuid.UUID) bool {
	_, ok := g.prereqs[guid]
	return ok
}

// IsBundle reports whether the update carries other updates as its payload.
func (g *Graph) IsBundle(guid uuid.UUID) bool { return g.bundles.Contains(guid) }

// IsBundled reports whether the update appears inside at least one bundle.
func (g *Graph) IsBundled(guid uuid.UUID) bool { return g.bundled.Contains(guid) }

// BundledWith returns the bundles carrying the given update.
func (g *Graph) BundledWith(guid uuid.UUID) []uuid.UUID { return g.bundledWith[guid] }

// IsApplicable evaluates the update's prerequisite expression against the
// client's installed set. Category clauses are satisfied unconditionally
// here; they only matter to MatchesCategories. Updates with unresolved
// references never apply.
func (g *Graph) IsApplicable(guid uuid.UUID, installed GUIDSet) bool {
	prereqs, ok := g.prereqs[guid]
	if !ok || g.unresolved.Contains(guid) {
		return false
	}
	for _, p := range prereqs {
		switch c := p.(type) {
		case update.Simple:
			if !installed.Contains(c.UpdateID) {
				return false
			}
		case update.AtLeastOne:
			if c.IsCategory {
				continue
			}
			satisfied := false
			for _, child := range c.UpdateIDs {
				if installed.Contains(child) {
					satisfied = true
					break
				}
			}
			if !satisfied {
				return false
			}
		}
	}
	return true
}

// MatchesCategories reports whether the update's prerequisite tree carries a
// category clause mentioning at least one of the given categories.
func (g *Graph) MatchesCategories(guid uuid.UUID, categories GUIDSet) bool {
	for _, p := range g.prereqs[guid] {
		c, ok := p.(update.AtLeastOne)
		if !ok || !c.IsCategory {
			continue
		}
		for _, child := range c.UpdateIDs {
			if categories.Contains(child) {
				return true
			}
		}
	}
	return false
}
