// Package deployments persists operator approval decisions keyed by
// revision index.
package deployments

import (
	"context"

	"github.com/Snshadow/update-server-server-sync/internal/server/models"
)

type Repository interface {
	// Save upserts the deployment. A stored row only changes when the new
	// LastChangeTime is strictly greater, so concurrent approvers converge
	// on the most recent intent; stale saves are dropped silently.
	Save(ctx context.Context, d *models.Deployment) error

	// Get returns the deployment for the revision, or nil when none exists.
	Get(ctx context.Context, revisionID int) (*models.Deployment, error)

	Delete(ctx context.Context, revisionID int) error
}
