package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aet-hub/aet-hub/internal/domain/vehicle"
)

const vehicleColumns = `id, transporter_id, plate, type, brand, model, year, renavam, status, created_at, updated_at`

// VehicleRepository implements vehicle.Repository.
type VehicleRepository struct {
	pool *pgxpool.Pool
}

func NewVehicleRepository(pool *pgxpool.Pool) *VehicleRepository {
	return &VehicleRepository{pool: pool}
}

func (r *VehicleRepository) Create(ctx context.Context, v *vehicle.Vehicle) error {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO vehicles
		(transporter_id, plate, type, brand, model, year, renavam, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, v.TransporterID, v.Plate, v.Type, v.Brand, v.Model, v.Year, v.Renavam, v.Status, v.CreatedAt, v.UpdatedAt)
	return row.Scan(&v.ID)
}

func (r *VehicleRepository) GetByID(ctx context.Context, id int64) (*vehicle.Vehicle, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id=$1`, id)
	return scanVehicle(row)
}

func (r *VehicleRepository) GetByPlate(ctx context.Context, plate string) (*vehicle.Vehicle, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE plate=$1`, plate)
	return scanVehicle(row)
}

func (r *VehicleRepository) List(ctx context.Context, filter vehicle.Filter, limit, offset int) ([]*vehicle.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles`
	args := []interface{}{}
	idx := 1
	if filter.TransporterID != nil {
		query += addWhere(query) + " transporter_id=$" + itoa(idx)
		args = append(args, *filter.TransporterID)
		idx++
	}
	if filter.Type != nil {
		query += addWhere(query) + " type=$" + itoa(idx)
		args = append(args, *filter.Type)
		idx++
	}
	if filter.Plate != nil {
		query += addWhere(query) + " plate ILIKE $" + itoa(idx)
		args = append(args, "%"+*filter.Plate+"%")
		idx++
	}
	query += " ORDER BY plate ASC LIMIT $" + itoa(idx) + " OFFSET $" + itoa(idx+1)
	args = append(args, limit, offset)

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*vehicle.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVehicle(row pgx.Row) (*vehicle.Vehicle, error) {
	var v vehicle.Vehicle
	if err := row.Scan(&v.ID, &v.TransporterID, &v.Plate, &v.Type, &v.Brand, &v.Model, &v.Year, &v.Renavam, &v.Status, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}
