// Package update defines the domain model for update metadata: global
// identities, package variants, prerequisite expressions, file references,
// and the metadata XML codec.
package update

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Identity is the global identity of an update revision. UpdateID names the
// logical update; RevisionNumber increases monotonically with every new
// revision of it. Only the highest revision per UpdateID is served.
type Identity struct {
	UpdateID       uuid.UUID
	RevisionNumber int
}

// NewIdentity builds an Identity from its parts.
func NewIdentity(id uuid.UUID, revision int) Identity {
	return Identity{UpdateID: id, RevisionNumber: revision}
}

// String renders the identity as "<guid>/<revision>".
func (id Identity) String() string {
	return fmt.Sprintf("%s/%d", id.UpdateID, id.RevisionNumber)
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id.UpdateID == uuid.Nil && id.RevisionNumber == 0
}

// ParseIdentity parses the "<guid>/<revision>" form produced by String.
func ParseIdentity(s string) (Identity, error) {
	guidPart, revPart, ok := strings.Cut(s, "/")
	if !ok {
		return Identity{}, fmt.Errorf("malformed identity %q", s)
	}
	guid, err := uuid.Parse(guidPart)
	if err != nil {
		return Identity{}, fmt.Errorf("malformed identity %q: %w", s, err)
	}
	rev, err := strconv.Atoi(revPart)
	if err != nil {
		return Identity{}, fmt.Errorf("malformed identity %q: %w", s, err)
	}
	return Identity{UpdateID: guid, RevisionNumber: rev}, nil
}
