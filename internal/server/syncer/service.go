// Package syncer implements the staged client-sync protocol on top of the
// update-graph engine: per request it selects one tier of missing updates
// (roots, then non-leafs, then bundles, then remaining software leaves),
// truncates it, and diffs changed deployments since the client's last sync.
package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Snshadow/update-server-server-sync/internal/common"
	"github.com/Snshadow/update-server-server-sync/internal/content"
	"github.com/Snshadow/update-server-server-sync/internal/logging"
	"github.com/Snshadow/update-server-server-sync/internal/server/cookie"
	"github.com/Snshadow/update-server-server-sync/internal/server/engine"
	"github.com/Snshadow/update-server-server-sync/internal/server/models"
	"github.com/Snshadow/update-server-server-sync/internal/server/repositories/computers"
	"github.com/Snshadow/update-server-server-sync/internal/server/repositories/deployments"
	"github.com/Snshadow/update-server-server-sync/internal/update"
)

// Service answers the client-facing sync operations. It reads the engine
// under its request-wide read lock and consults the deployment and
// computer-sync repositories.
type Service struct {
	engine      *engine.Engine
	deployments deployments.Repository
	computers   computers.Repository
	cookies     *cookie.Issuer
	locations   content.Locations
	logger      logging.Logger

	maxUpdates int

	// legacyBundleActions restores the historical default of Evaluate for
	// bundles without a deployment row; the modern default is Install.
	legacyBundleActions bool

	// OnUnapprovedDriver observes driver matches that were withheld from a
	// response because no deployment row approves them.
	OnUnapprovedDriver func(update.Identity)

	// now is a test seam.
	now func() time.Time
}

// Option tweaks Service construction.
type Option func(*Service)

// WithMaxUpdates overrides the response cap (default
// common.MaxUpdatesInResponse).
func WithMaxUpdates(n int) Option {
	return func(s *Service) { s.maxUpdates = n }
}

// WithLegacyBundleActions switches the default action for bundle updates
// without a deployment row from Install to Evaluate.
func WithLegacyBundleActions() Option {
	return func(s *Service) { s.legacyBundleActions = true }
}

// New constructs the sync service.
func New(eng *engine.Engine, deps deployments.Repository, comps computers.Repository,
	issuer *cookie.Issuer, locations content.Locations, logger logging.Logger, opts ...Option) *Service {

	s := &Service{
		engine:      eng,
		deployments: deps,
		computers:   comps,
		cookies:     issuer,
		locations:   locations,
		logger:      logger.With("module", "syncer"),
		maxUpdates:  common.MaxUpdatesInResponse,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GetConfig returns the static server configuration.
func (s *Service) GetConfig() Config {
	return Config{
		ProtocolVersion:      "1.8",
		MaxUpdatesInResponse: s.maxUpdates,
		SupportsDrivers:      true,
		SupportsExpress:      false,
	}
}

// GetCookie mints a cookie. When the client presents its old cookie the
// computer id is carried over; otherwise a fresh one is assigned.
func (s *Service) GetCookie(ctx context.Context, old *cookie.Cookie) (cookie.Cookie, error) {
	computerID := ""
	if old != nil && !old.IsZero() {
		id, err := s.cookies.ComputerID(*old)
		if err != nil {
			return cookie.Cookie{}, err
		}
		computerID = id
	}
	if computerID == "" {
		computerID = uuid.NewString()
	}
	return s.cookies.Issue(computerID)
}

// deploymentFor loads the revision's deployment row; a miss yields nil.
func (s *Service) deploymentFor(ctx context.Context, revisionID int) (*models.Deployment, error) {
	return s.deployments.Get(ctx, revisionID)
}
