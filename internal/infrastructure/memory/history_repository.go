package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/aet-hub/aet-hub/internal/domain/history"
)

// HistoryRepository implements history.Repository.
type HistoryRepository struct {
	s *Store
}

func (r *HistoryRepository) Append(ctx context.Context, e *history.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.id()
	rememberAppend(ctx, e.ID)
	r.s.state.history = append(r.s.state.history, *e)
	return nil
}

func (r *HistoryRepository) GetByID(_ context.Context, historyID uuid.UUID) (*history.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.state.history {
		if e.HistoryID == historyID {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}

// ListByLicense returns entries in append order.
func (r *HistoryRepository) ListByLicense(_ context.Context, licenseID int64, state *string) ([]*history.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*history.Entry
	for _, e := range r.s.state.history {
		if e.LicenseID != licenseID || (state != nil && e.State != *state) {
			continue
		}
		e := e
		out = append(out, &e)
	}
	return out, nil
}
