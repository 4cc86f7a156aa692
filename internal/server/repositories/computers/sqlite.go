package computers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Snshadow/update-server-server-sync/internal/dbx"
	"github.com/Snshadow/update-server-server-sync/internal/server/models"
)

// SQLiteRepository implements computer-sync storage over a dbx.DBTX bound
// to the embedded deploySync database.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) UpdateSync(ctx context.Context, computerID string, t time.Time) error {
	query := `
		INSERT INTO computer_sync_status (computer_id, last_sync_time)
		VALUES (?, ?)
		ON CONFLICT (computer_id)
		DO UPDATE SET last_sync_time = excluded.last_sync_time
			WHERE excluded.last_sync_time > computer_sync_status.last_sync_time;
	`
	if _, err := r.db.ExecContext(ctx, query, computerID, models.FormatTime(t)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, computerID string) (*models.ComputerSyncStatus, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT computer_id, last_sync_time FROM computer_sync_status WHERE computer_id = ?`,
		computerID)
	return scanComputerSync(row)
}

func (r *SQLiteRepository) Delete(ctx context.Context, computerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM computer_sync_status WHERE computer_id = ?`, computerID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// scanComputerSync decodes one row; a miss yields (nil, nil).
func scanComputerSync(row *sql.Row) (*models.ComputerSyncStatus, error) {
	var (
		c        models.ComputerSyncStatus
		lastSync string
	)
	err := row.Scan(&c.ComputerID, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if c.LastSyncTime, err = models.ParseStoredTime(lastSync); err != nil {
		return nil, fmt.Errorf("last sync time: %w", err)
	}
	return &c, nil
}
