package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aet-hub/aet-hub/internal/domain/license"
)

const licenseColumns = `id, request_number, owner_user_id, transporter_id, license_type, tractor_unit_id, first_trailer_id, second_trailer_id, dolly_id, flatbed_id, main_plate, additional_plates, length, width, height, cargo_type, states, state_statuses, state_files, state_aet_numbers, state_cnpjs, status, is_draft, comments, created_at, updated_at`

// LicenseRepository implements license.Repository.
type LicenseRepository struct {
	pool *pgxpool.Pool
}

func NewLicenseRepository(pool *pgxpool.Pool) *LicenseRepository {
	return &LicenseRepository{pool: pool}
}

func (r *LicenseRepository) Create(ctx context.Context, req *license.Request) error {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO license_requests
		(request_number, owner_user_id, transporter_id, license_type, tractor_unit_id, first_trailer_id, second_trailer_id, dolly_id, flatbed_id, main_plate, additional_plates, length, width, height, cargo_type, states, state_statuses, state_files, state_aet_numbers, state_cnpjs, status, is_draft, comments, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
		RETURNING id
	`, req.RequestNumber, req.OwnerUserID, req.TransporterID, req.LicenseType, req.TractorUnitID, req.FirstTrailerID, req.SecondTrailerID, req.DollyID, req.FlatbedID, req.MainPlate, nonNil(req.AdditionalPlates), req.Length, req.Width, req.Height, req.CargoType, nonNil(req.States), nonNil(req.StateStatuses), nonNil(req.StateFiles), nonNil(req.StateAETNumbers), nonNil(req.StateCnpjs), req.Status, req.IsDraft, req.Comments, req.CreatedAt, req.UpdatedAt)
	return row.Scan(&req.ID)
}

func (r *LicenseRepository) GetByID(ctx context.Context, id int64) (*license.Request, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+licenseColumns+` FROM license_requests WHERE id=$1`, id)
	return scanLicense(row)
}

func (r *LicenseRepository) GetByIDForUpdate(ctx context.Context, id int64) (*license.Request, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+licenseColumns+` FROM license_requests WHERE id=$1 FOR UPDATE`, id)
	return scanLicense(row)
}

func (r *LicenseRepository) Update(ctx context.Context, req *license.Request) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE license_requests
		SET request_number=$1, transporter_id=$2, license_type=$3, tractor_unit_id=$4, first_trailer_id=$5, second_trailer_id=$6, dolly_id=$7, flatbed_id=$8, main_plate=$9, additional_plates=$10, length=$11, width=$12, height=$13, cargo_type=$14, states=$15, state_statuses=$16, state_files=$17, state_aet_numbers=$18, state_cnpjs=$19, status=$20, is_draft=$21, comments=$22, updated_at=$23
		WHERE id=$24
	`, req.RequestNumber, req.TransporterID, req.LicenseType, req.TractorUnitID, req.FirstTrailerID, req.SecondTrailerID, req.DollyID, req.FlatbedID, req.MainPlate, nonNil(req.AdditionalPlates), req.Length, req.Width, req.Height, req.CargoType, nonNil(req.States), nonNil(req.StateStatuses), nonNil(req.StateFiles), nonNil(req.StateAETNumbers), nonNil(req.StateCnpjs), req.Status, req.IsDraft, req.Comments, req.UpdatedAt, req.ID)
	return err
}

// Delete relies on ON DELETE CASCADE for issued_licenses and status_history.
func (r *LicenseRepository) Delete(ctx context.Context, id int64) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM license_requests WHERE id=$1`, id)
	return err
}

func (r *LicenseRepository) List(ctx context.Context, filter license.Filter, limit, offset int) ([]*license.Request, error) {
	query := `SELECT ` + licenseColumns + ` FROM license_requests`
	args := []interface{}{}
	idx := 1
	if filter.OwnerUserID != nil {
		query += addWhere(query) + " owner_user_id=$" + itoa(idx)
		args = append(args, *filter.OwnerUserID)
		idx++
	}
	if filter.TransporterID != nil {
		query += addWhere(query) + " transporter_id=$" + itoa(idx)
		args = append(args, *filter.TransporterID)
		idx++
	}
	if filter.Status != nil {
		query += addWhere(query) + " status=$" + itoa(idx)
		args = append(args, *filter.Status)
		idx++
	}
	if filter.State != nil {
		query += addWhere(query) + " $" + itoa(idx) + " = ANY(states)"
		args = append(args, *filter.State)
		idx++
	}
	if filter.IsDraft != nil {
		query += addWhere(query) + " is_draft=$" + itoa(idx)
		args = append(args, *filter.IsDraft)
		idx++
	}
	if filter.Search != nil && *filter.Search != "" {
		query += addWhere(query) + " (request_number ILIKE $" + itoa(idx) + " OR main_plate ILIKE $" + itoa(idx) + ")"
		args = append(args, "%"+*filter.Search+"%")
		idx++
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(idx) + " OFFSET $" + itoa(idx+1)
	args = append(args, limit, offset)
	return r.queryLicenses(ctx, query, args...)
}

func (r *LicenseRepository) FindByAETNumber(ctx context.Context, number string) ([]*license.Request, error) {
	return r.queryLicenses(ctx, `
		SELECT `+licenseColumns+` FROM license_requests
		WHERE EXISTS (
			SELECT 1 FROM unnest(state_aet_numbers) AS t(tag)
			WHERE substring(t.tag from position(':' in t.tag) + 1) = $1
		)
	`, number)
}

func (r *LicenseRepository) ListSubmitted(ctx context.Context, limit, offset int) ([]*license.Request, error) {
	return r.queryLicenses(ctx, `
		SELECT `+licenseColumns+` FROM license_requests
		WHERE is_draft = FALSE ORDER BY id ASC LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (r *LicenseRepository) CountByStatus(ctx context.Context) (map[license.Status]int, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT status, COUNT(*) FROM license_requests WHERE is_draft = FALSE GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[license.Status]int)
	for rows.Next() {
		var status license.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *LicenseRepository) NextRequestNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT nextval('license_request_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("AET-%d-%05d", time.Now().UTC().Year(), seq), nil
}

func (r *LicenseRepository) queryLicenses(ctx context.Context, query string, args ...interface{}) ([]*license.Request, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*license.Request
	for rows.Next() {
		req, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanLicense(row pgx.Row) (*license.Request, error) {
	var req license.Request
	if err := row.Scan(&req.ID, &req.RequestNumber, &req.OwnerUserID, &req.TransporterID, &req.LicenseType, &req.TractorUnitID, &req.FirstTrailerID, &req.SecondTrailerID, &req.DollyID, &req.FlatbedID, &req.MainPlate, &req.AdditionalPlates, &req.Length, &req.Width, &req.Height, &req.CargoType, &req.States, &req.StateStatuses, &req.StateFiles, &req.StateAETNumbers, &req.StateCnpjs, &req.Status, &req.IsDraft, &req.Comments, &req.CreatedAt, &req.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
