package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aet-hub/aet-hub/internal/domain/transporter"
)

const transporterColumns = `id, owner_user_id, name, tax_id, email, phone, created_at, updated_at`

// TransporterRepository implements transporter.Repository.
type TransporterRepository struct {
	pool *pgxpool.Pool
}

func NewTransporterRepository(pool *pgxpool.Pool) *TransporterRepository {
	return &TransporterRepository{pool: pool}
}

func (r *TransporterRepository) Create(ctx context.Context, t *transporter.Transporter) error {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO transporters
		(owner_user_id, name, tax_id, email, phone, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, t.OwnerUserID, t.Name, t.TaxID, t.Email, t.Phone, t.CreatedAt, t.UpdatedAt)
	return row.Scan(&t.ID)
}

func (r *TransporterRepository) GetByID(ctx context.Context, id int64) (*transporter.Transporter, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+transporterColumns+` FROM transporters WHERE id=$1`, id)
	return scanTransporter(row)
}

func (r *TransporterRepository) GetByTaxID(ctx context.Context, taxID string) (*transporter.Transporter, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+transporterColumns+` FROM transporters WHERE tax_id=$1`, taxID)
	return scanTransporter(row)
}

func (r *TransporterRepository) List(ctx context.Context, filter transporter.Filter, limit, offset int) ([]*transporter.Transporter, error) {
	query := `SELECT ` + transporterColumns + ` FROM transporters`
	args := []interface{}{}
	idx := 1
	if filter.OwnerUserID != nil {
		query += addWhere(query) + " owner_user_id=$" + itoa(idx)
		args = append(args, *filter.OwnerUserID)
		idx++
	}
	if filter.Search != nil && *filter.Search != "" {
		query += addWhere(query) + " (name ILIKE $" + itoa(idx) + " OR tax_id ILIKE $" + itoa(idx) + ")"
		args = append(args, "%"+*filter.Search+"%")
		idx++
	}
	query += " ORDER BY name ASC LIMIT $" + itoa(idx) + " OFFSET $" + itoa(idx+1)
	args = append(args, limit, offset)

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*transporter.Transporter
	for rows.Next() {
		t, err := scanTransporter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransporter(row pgx.Row) (*transporter.Transporter, error) {
	var t transporter.Transporter
	if err := row.Scan(&t.ID, &t.OwnerUserID, &t.Name, &t.TaxID, &t.Email, &t.Phone, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
