package deployments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Snshadow/update-server-server-sync/internal/dbx"
	"github.com/Snshadow/update-server-server-sync/internal/server/models"
)

// SQLiteRepository implements deployment storage over a dbx.DBTX bound to
// the embedded deploySync database.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository constructs a repository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, d *models.Deployment) error {
	query := `
		INSERT INTO deployments (revision_id, action, deadline, last_change_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (revision_id)
		DO UPDATE SET
			action = excluded.action,
			deadline = excluded.deadline,
			last_change_time = excluded.last_change_time
			WHERE excluded.last_change_time > deployments.last_change_time;
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

func (r *SQLiteRepository) Get(ctx context.Context, revisionID int) (*models.Deployment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT revision_id, action, deadline, last_change_time FROM deployments WHERE revision_id = ?`,
		revisionID)
	return scanDeployment(row)
}

func (r *SQLiteRepository) Delete(ctx context.Context, revisionID int) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM deployments WHERE revision_id = ?`, revisionID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// scanDeployment decodes one deployment row; a miss yields (nil, nil).
func scanDeployment(row *sql.Row) (*models.Deployment, error) {
	var (
		d          models.Deployment
		action     string
		deadline   sql.NullString
		lastChange string
	)
	err := row.Scan(&d.RevisionID, &action, &deadline, &lastChange)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if d.Action, err = models.ParseDeploymentAction(action); err != nil {
		return nil, err
	}
	if deadline.Valid {
		t, err := models.ParseStoredTime(deadline.String)
		if err != nil {
			return nil, fmt.Errorf("deadline: %w", err)
		}
		d.Deadline = &t
	}
	if d.LastChangeTime, err = models.ParseStoredTime(lastChange); err != nil {
		return nil, fmt.Errorf("last change time: %w", err)
	}
	return &d, nil
}
