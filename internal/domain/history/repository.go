package history

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines append-only persistence for status history.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, historyID uuid.UUID) (*Entry, error)
	ListByLicense(ctx context.Context, licenseID int64, state *string) ([]*Entry, error)
}
