package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aet-hub/aet-hub/internal/domain/ledger"
)

const ledgerColumns = `id, request_id, request_number, transporter_id, state, aet_number, selected_tax_id, issued_at, valid_until, status, tractor_plate, first_trailer_plate, second_trailer_plate, dolly_plate, flatbed_plate, generic_trailer_plate, created_at, updated_at`

// LedgerRepository implements ledger.Repository.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func (r *LedgerRepository) Upsert(ctx context.Context, e *ledger.Entry) error {
	p := e.Plates
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO issued_licenses
		(request_id, request_number, transporter_id, state, aet_number, selected_tax_id, issued_at, valid_until, status, tractor_plate, first_trailer_plate, second_trailer_plate, dolly_plate, flatbed_plate, generic_trailer_plate, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (request_id, state) DO UPDATE SET
			request_number=EXCLUDED.request_number,
			transporter_id=EXCLUDED.transporter_id,
			aet_number=EXCLUDED.aet_number,
			selected_tax_id=EXCLUDED.selected_tax_id,
			issued_at=EXCLUDED.issued_at,
			valid_until=EXCLUDED.valid_until,
			status=EXCLUDED.status,
			tractor_plate=EXCLUDED.tractor_plate,
			first_trailer_plate=EXCLUDED.first_trailer_plate,
			second_trailer_plate=EXCLUDED.second_trailer_plate,
			dolly_plate=EXCLUDED.dolly_plate,
			flatbed_plate=EXCLUDED.flatbed_plate,
			generic_trailer_plate=EXCLUDED.generic_trailer_plate,
			updated_at=EXCLUDED.updated_at
		RETURNING id, created_at
	`, e.RequestID, e.RequestNumber, e.TransporterID, e.State, e.AETNumber, e.SelectedTaxID, e.IssuedAt, e.ValidUntil, e.Status, p.Tractor, p.FirstTrailer, p.SecondTrailer, p.Dolly, p.Flatbed, p.GenericTrailer, e.CreatedAt, e.UpdatedAt)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		if isUniqueViolation(err, "uq_issued_licenses_aet_number") {
			return ledger.ErrDuplicateAETNumber
		}
		return err
	}
	return nil
}

func (r *LedgerRepository) Get(ctx context.Context, requestID int64, state string) (*ledger.Entry, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+ledgerColumns+` FROM issued_licenses WHERE request_id=$1 AND state=$2`, requestID, state)
	return scanLedgerEntry(row)
}

func (r *LedgerRepository) ListByRequest(ctx context.Context, requestID int64) ([]*ledger.Entry, error) {
	return r.queryEntries(ctx, `SELECT `+ledgerColumns+` FROM issued_licenses WHERE request_id=$1 ORDER BY state ASC`, requestID)
}

func (r *LedgerRepository) FindActiveByPlates(ctx context.Context, state string, plates []string, now time.Time) ([]*ledger.Entry, error) {
	if len(plates) == 0 {
		return nil, nil
	}
	return r.queryEntries(ctx, `
		SELECT `+ledgerColumns+` FROM issued_licenses
		WHERE state=$1 AND status=$2 AND valid_until > $3
		AND (tractor_plate = ANY($4) OR first_trailer_plate = ANY($4) OR second_trailer_plate = ANY($4))
		ORDER BY valid_until DESC
	`, state, ledger.StatusActive, now, plates)
}

func (r *LedgerRepository) List(ctx context.Context, filter ledger.Filter, limit, offset int) ([]*ledger.Entry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM issued_licenses`
	args := []interface{}{}
	idx := 1
	if filter.State != nil {
		query += addWhere(query) + " state=$" + itoa(idx)
		args = append(args, *filter.State)
		idx++
	}
	if filter.Status != nil {
		query += addWhere(query) + " status=$" + itoa(idx)
		args = append(args, *filter.Status)
		idx++
	}
	if filter.TransporterID != nil {
		query += addWhere(query) + " transporter_id=$" + itoa(idx)
		args = append(args, *filter.TransporterID)
		idx++
	}
	if filter.AETNumber != nil {
		query += addWhere(query) + " aet_number=$" + itoa(idx)
		args = append(args, *filter.AETNumber)
		idx++
	}
	if filter.Plate != nil {
		n := itoa(idx)
		query += addWhere(query) + " (tractor_plate=$" + n + " OR first_trailer_plate=$" + n + " OR second_trailer_plate=$" + n + " OR dolly_plate=$" + n + " OR flatbed_plate=$" + n + " OR generic_trailer_plate=$" + n + ")"
		args = append(args, *filter.Plate)
		idx++
	}
	query += " ORDER BY valid_until DESC LIMIT $" + itoa(idx) + " OFFSET $" + itoa(idx+1)
	args = append(args, limit, offset)
	return r.queryEntries(ctx, query, args...)
}

func (r *LedgerRepository) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE issued_licenses SET status=$1, updated_at=$2 WHERE status=$3 AND valid_until <= $2
	`, ledger.StatusExpired, now, ledger.StatusActive)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *LedgerRepository) DeleteByRequest(ctx context.Context, requestID int64) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM issued_licenses WHERE request_id=$1`, requestID)
	return err
}

func (r *LedgerRepository) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*ledger.Entry, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ledger.Entry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanLedgerEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	p := &e.Plates
	if err := row.Scan(&e.ID, &e.RequestID, &e.RequestNumber, &e.TransporterID, &e.State, &e.AETNumber, &e.SelectedTaxID, &e.IssuedAt, &e.ValidUntil, &e.Status, &p.Tractor, &p.FirstTrailer, &p.SecondTrailer, &p.Dolly, &p.Flatbed, &p.GenericTrailer, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
