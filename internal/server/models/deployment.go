// Package models defines the persisted server-side records: operator
// deployment decisions and per-client sync bookkeeping.
package models

import (
	"fmt"
	"time"
)

// DeploymentAction is what the operator decided about one update revision.
type DeploymentAction int

const (
	// ActionPreDeploymentCheck marks a revision as known but unapproved.
	ActionPreDeploymentCheck DeploymentAction = iota
	ActionInstall
	ActionBundle
	ActionEvaluate
)

var actionNames = map[DeploymentAction]string{
	ActionPreDeploymentCheck: "PreDeploymentCheck",
	ActionInstall:            "Install",
	ActionBundle:             "Bundle",
	ActionEvaluate:           "Evaluate",
}

func (a DeploymentAction) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("DeploymentAction(%d)", int(a))
}

// ParseDeploymentAction maps the stored name back onto the enum.
func ParseDeploymentAction(s string) (DeploymentAction, error) {
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown deployment action %q", s)
}

// TimeLayout is the stored form of every timestamp: UTC, fixed-width
// fractional seconds, so lexicographic comparison in SQL matches time
// ordering.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in the stored form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseStoredTime parses the stored form back into a time.
func ParseStoredTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// Deployment is one operator decision about one update revision, keyed by
// the revision's wire index. Concurrent saves converge: the row with the
// greatest LastChangeTime wins.
type Deployment struct {
	RevisionID     int
	Action         DeploymentAction
	Deadline       *time.Time
	LastChangeTime time.Time
}

// ComputerSyncStatus records when a client last completed a sync; changed
// deployments are diffed against it.
type ComputerSyncStatus struct {
	ComputerID   string
	LastSyncTime time.Time
}
