package ledger

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"
)

// Repository defines persistence for issued permits.
type Repository interface {
	// Upsert inserts or overwrites the row keyed by (RequestID, State).
	Upsert(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, requestID int64, state string) (*Entry, error)
	ListByRequest(ctx context.Context, requestID int64) ([]*Entry, error)
	// FindActiveByPlates returns active rows for state valid after now whose tractor,
	// first-trailer or second-trailer plate equals one of plates.
	FindActiveByPlates(ctx context.Context, state string, plates []string, now time.Time) ([]*Entry, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Entry, error)
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteByRequest(ctx context.Context, requestID int64) error
}
