package update

import "github.com/google/uuid"

// Prerequisite is one clause of an update's prerequisite expression. The
// whole expression is the conjunction of the package's Prerequisites slice.
//
// Exactly two shapes exist: Simple requires one specific update, AtLeastOne
// is satisfied by any of its children. AtLeastOne with IsCategory set carries
// category membership and is not evaluated for applicability.
type Prerequisite interface {
	prerequisite()
}

// Simple requires the update named by UpdateID to be installed.
type Simple struct {
	UpdateID uuid.UUID
}

func (Simple) prerequisite() {}

// AtLeastOne is satisfied when any one of UpdateIDs is installed. When
// IsCategory is set the clause instead declares category membership used by
// the category filter.
type AtLeastOne struct {
	UpdateIDs  []uuid.UUID
	IsCategory bool
}

func (AtLeastOne) prerequisite() {}

// PrerequisiteGUIDs collects every update GUID referenced anywhere in the
// expression, category clauses included.
func PrerequisiteGUIDs(prereqs []Prerequisite) []uuid.UUID {
	var out []uuid.UUID
	for _, p := range prereqs {
		switch c := p.(type) {
		case Simple:
			out = append(out, c.UpdateID)
		case AtLeastOne:
			out = append(out, c.UpdateIDs...)
		}
	}
	return out
}

// CategoryGUIDs collects the category GUIDs mentioned by IsCategory clauses.
func CategoryGUIDs(prereqs []Prerequisite) []uuid.UUID {
	var out []uuid.UUID
	for _, p := range prereqs {
		if c, ok := p.(AtLeastOne); ok && c.IsCategory {
			out = append(out, c.UpdateIDs...)
		}
	}
	return out
}
