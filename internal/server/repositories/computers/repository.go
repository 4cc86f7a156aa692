// Package computers persists per-client sync bookkeeping keyed by the
// computer id carried in the client cookie.
package computers

import (
	"context"
	"time"

	"github.com/Snshadow/update-server-server-sync/internal/server/models"
)

type Repository interface {
	// UpdateSync upserts the client's last-sync time. A stored row only
	// moves forward: saves with an older time are dropped.
	UpdateSync(ctx context.Context, computerID string, t time.Time) error

	// Get returns the client's sync row, or nil when the client has never
	// completed a sync.
	Get(ctx context.Context, computerID string) (*models.ComputerSyncStatus, error)

	Delete(ctx context.Context, computerID string) error
}
