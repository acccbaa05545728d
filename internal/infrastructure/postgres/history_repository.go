package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aet-hub/aet-hub/internal/domain/history"
)

const historyColumns = `id, history_id, license_id, state, actor, old_status, new_status, comments, signature, created_at`

// HistoryRepository implements history.Repository. Rows are never updated.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

func (r *HistoryRepository) Append(ctx context.Context, e *history.Entry) error {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO status_history
		(history_id, license_id, state, actor, old_status, new_status, comments, signature, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, e.HistoryID, e.LicenseID, e.State, e.Actor, e.OldStatus, e.NewStatus, e.Comments, e.Signature, e.CreatedAt)
	return row.Scan(&e.ID)
}

func (r *HistoryRepository) GetByID(ctx context.Context, historyID uuid.UUID) (*history.Entry, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+historyColumns+` FROM status_history WHERE history_id=$1`, historyID)
	return scanHistory(row)
}

func (r *HistoryRepository) ListByLicense(ctx context.Context, licenseID int64, state *string) ([]*history.Entry, error) {
	query := `SELECT ` + historyColumns + ` FROM status_history WHERE license_id=$1`
	args := []interface{}{licenseID}
	if state != nil {
		query += " AND state=$2"
		args = append(args, *state)
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*history.Entry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanHistory(row pgx.Row) (*history.Entry, error) {
	var e history.Entry
	if err := row.Scan(&e.ID, &e.HistoryID, &e.LicenseID, &e.State, &e.Actor, &e.OldStatus, &e.NewStatus, &e.Comments, &e.Signature, &e.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
