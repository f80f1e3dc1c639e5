package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/blefs/internal/client/models"
	"github.com/dmitrijs2005/blefs/internal/dbx"
)

var ErrNotFound = errors.New("transfer not found")

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Start inserts a new record. A zero StartedAt is set to the current time.
func (r *SQLiteRepository) Start(ctx context.Context, t *models.Transfer) error {
	if t.StartedAt.IsZero() {
		t.StartedAt = r.now().UTC()
	}
	query := `insert into transfers (id, op, device, remote, status, bytes, error, started_at)
			values (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, string(t.Op), t.Device, t.Remote, string(t.Status), t.Bytes, t.Error, t.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

// Finish sets the outcome of a running record. It expects exactly one row to be affected.
func (r *SQLiteRepository) Finish(ctx context.Context, id string, out models.Outcome) error {
	query := `update transfers set status=?, bytes=?, error=?, checksum=?, finished_at=? where id=?`
	res, err := r.db.ExecContext(ctx, query,
		string(out.Status), out.Bytes, out.Error, out.Checksum, r.now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to finish transfer: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("transfer %s: %w", id, ErrNotFound)
	}
	return nil
}

// List returns records ordered by start time, newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]models.Transfer, error) {
	query := `select id, op, device, remote, status, bytes, error, checksum, started_at, finished_at
			from transfers order by started_at desc, id limit ?`
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select transfers: %w", err)
	}
	defer rows.Close()

	var result []models.Transfer
	for rows.Next() {
		var (
			t                 models.Transfer
			op, status        string
			started, finished int64
		)
		if err := rows.Scan(&t.ID, &op, &t.Device, &t.Remote, &status, &t.Bytes, &t.Error, &t.Checksum, &started, &finished); err != nil {
			return nil, err
		}
		t.Op = models.Op(op)
		t.Status = models.Status(status)
		t.StartedAt = time.Unix(0, started).UTC()
		if finished != 0 {
			t.FinishedAt = time.Unix(0, finished).UTC()
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interrupt marks every record still running as failed. A record stays
// running only when its process died mid operation.
func (r *SQLiteRepository) Interrupt(ctx context.Context) (int64, error) {
	query := `update transfers set status=?, error=?, finished_at=? where status=?`
	res, err := r.db.ExecContext(ctx, query,
		string(models.StatusFailed), "interrupted", r.now().UTC().UnixNano(), string(models.StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to interrupt transfers: %w", err)
	}
	return res.RowsAffected()
}

// Prune keeps the newest keep records and deletes the rest. A non-positive
// keep deletes nothing.
func (r *SQLiteRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	query := `delete from transfers where id not in
			(select id from transfers order by started_at desc, id limit ?)`
	res, err := r.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune transfers: %w", err)
	}
	return res.RowsAffected()
}
