// Package drivers matches client hardware inventories against driver
// updates.
package drivers

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// candidate is one hardware-id declaration of one driver update.
type candidate struct {
	guid uuid.UUID

	// computerHardwareID restricts the driver to specific machines;
	// empty matches any computer.
	computerHardwareID string
}

// Matcher indexes every (hardwareId, computerHardwareId) tuple declared by
// any driver update. It is immutable once built.
type Matcher struct {
	byHardwareID map[string][]candidate
}

// NewMatcher builds the index from the current revision of every driver
// package. Non-driver packages are ignored, so callers can pass the whole
// corpus.
func NewMatcher(pkgs []*update.Package) *Matcher {
	m := &Matcher{byHardwareID: make(map[string][]candidate)}
	for _, p := range pkgs {
		if p.Type != update.TypeDriver {
			continue
		}
		for _, d := range p.Drivers {
			hwid := strings.ToLower(d.HardwareID)
			m.byHardwareID[hwid] = append(m.byHardwareID[hwid], candidate{
				guid:               p.ID.UpdateID,
				computerHardwareID: strings.ToLower(d.ComputerHardwareID),
			})
		}
	}
	return m
}

// Request is one client driver-matching query. HardwareIDs are ordered most
// specific first, the way the client reports them.
type Request struct {
	HardwareIDs         []string
	ComputerHardwareIDs []string
}

// Match returns the GUIDs of driver updates matching the request, most
// specific hardware id first, deduplicated. Drivers declaring a computer
// hardware id are kept only when the client reports it; drivers declaring
// none match any computer.
func (m *Matcher) Match(req Request) []uuid.UUID {
	computerIDs := make(map[string]bool, len(req.ComputerHardwareIDs))
	for _, id := range req.ComputerHardwareIDs {
		computerIDs[strings.ToLower(id)] = true
	}

	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, hwid := range req.HardwareIDs {
		for _, c := range m.byHardwareID[strings.ToLower(hwid)] {
			if c.computerHardwareID != "" && !computerIDs[c.computerHardwareID] {
				continue
			}
			if seen[c.guid] {
				continue
			}
			seen[c.guid] = true
			out = append(out, c.guid)
		}
	}
	return out
}

// Empty reports whether no driver declares any hardware id.
func (m *Matcher) Empty() bool {
	return len(m.byHardwareID) == 0
}
