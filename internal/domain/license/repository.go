package license

import (
	"context"

	"github.com/google/uuid"
)

// Filter controls license request listing.
type Filter struct {
	OwnerUserID   *uuid.UUID
	TransporterID *int64
	Status        *Status
	State         *string
	IsDraft       *bool
	Search        *string
}

// Repository defines persistence for license requests.
type Repository interface {
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, id int64) (*Request, error)
	// GetByIDForUpdate loads the row and holds a lock on it until the surrounding
	// transaction ends. Outside a transaction it behaves like GetByID.
	GetByIDForUpdate(ctx context.Context, id int64) (*Request, error)
	Update(ctx context.Context, req *Request) error
	// Delete removes the request together with its ledger and history rows.
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Request, error)
	// FindByAETNumber returns every request whose permit tags carry number.
	FindByAETNumber(ctx context.Context, number string) ([]*Request, error)
	ListSubmitted(ctx context.Context, limit, offset int) ([]*Request, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	NextRequestNumber(ctx context.Context) (string, error)
}

// TxRunner runs fn inside a read-committed transaction. Nested calls join the
// outer transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
