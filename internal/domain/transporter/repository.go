package transporter

import "context"

// Repository defines persistence for transporters.
type Repository interface {
	Create(ctx context.Context, t *Transporter) error
	GetByID(ctx context.Context, id int64) (*Transporter, error)
	GetByTaxID(ctx context.Context, taxID string) (*Transporter, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Transporter, error)
}
