package computers

import (
	"context"
	"fmt"
	"time"

	"github.com/Snshadow/update-server-server-sync/internal/dbx"
	"github.com/Snshadow/update-server-server-sync/internal/server/models"
)

// PostgresRepository mirrors SQLiteRepository for shared installs.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) UpdateSync(ctx context.Context, computerID string, t time.Time) error {
	query := `
		INSERT INTO computer_sync_status (computer_id, last_sync_time)
		VALUES ($1, $2)
		ON CONFLICT (computer_id)
		DO UPDATE SET last_sync_time = EXCLUDED.last_sync_time
			WHERE EXCLUDED.last_sync_time > computer_sync_status.last_sync_time;
	`
	if _, err := r.db.ExecContext(ctx, query, computerID, models.FormatTime(t)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, computerID string) (*models.ComputerSyncStatus, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT computer_id, last_sync_time FROM computer_sync_status WHERE computer_id = $1`,
		computerID)
	return scanComputerSync(row)
}

func (r *PostgresRepository) Delete(ctx context.Context, computerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM computer_sync_status WHERE computer_id = $1`, computerID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
