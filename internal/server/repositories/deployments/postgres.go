package deployments

import (
	"context"
	"fmt"

	"github.com/Snshadow/update-server-server-sync/internal/dbx"
	"github.com/Snshadow/update-server-server-sync/internal/server/models"
)

// PostgresRepository mirrors SQLiteRepository for installs that share the
// approval database across several servers.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Save(ctx context.Context, d *models.Deployment) error {
	query := `
		INSERT INTO deployments (revision_id, action, deadline, last_change_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (revision_id)
		DO UPDATE SET
			action = EXCLUDED.action,
			deadline = EXCLUDED.deadline,
			last_change_time = EXCLUDED.last_change_time
			WHERE EXCLUDED.last_change_time > deployments.last_change_time;
	`
	var deadline any
	if d.Deadline != nil {
		deadline = models.FormatTime(*d.Deadline)
	}
	_, err := r.db.ExecContext(ctx, query,
		d.RevisionID, d.Action.String(), deadline, models.FormatTime(d.LastChangeTime))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, revisionID int) (*models.Deployment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT revision_id, action, deadline, last_change_time FROM deployments WHERE revision_id = $1`,
		revisionID)
	return scanDeployment(row)
}

func (r *PostgresRepository) Delete(ctx context.Context, revisionID int) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM deployments WHERE revision_id = $1`, revisionID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
