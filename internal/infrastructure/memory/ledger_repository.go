package memory

import (
	"context"
	"sort"
	"time"

	"github.com/aet-hub/aet-hub/internal/domain/ledger"
)

// LedgerRepository implements ledger.Repository.
type LedgerRepository struct {
	s *Store
}

func (r *LedgerRepository) Upsert(ctx context.Context, e *ledger.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := ledgerKey{requestID: e.RequestID, state: e.State}
	if e.AETNumber != nil && *e.AETNumber != "" {
		for k, other := range r.s.state.ledger {
			if k != key && other.AETNumber != nil && *other.AETNumber == *e.AETNumber {
				return ledger.ErrDuplicateAETNumber
			}
		}
	}
	if existing, ok := r.s.state.ledger[key]; ok {
		e.ID = existing.ID
		e.CreatedAt = existing.CreatedAt
	} else {
		e.ID = r.s.id()
	}
	remember(ctx, &r.s.state, ledgerRows, key)
	r.s.state.ledger[key] = *e
	return nil
}

func (r *LedgerRepository) Get(_ context.Context, requestID int64, state string) (*ledger.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.state.ledger[ledgerKey{requestID: requestID, state: state}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *LedgerRepository) ListByRequest(_ context.Context, requestID int64) ([]*ledger.Entry, error) {
	out := r.collect(func(e *ledger.Entry) bool { return e.RequestID == requestID })
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out, nil
}

func (r *LedgerRepository) FindActiveByPlates(_ context.Context, state string, plates []string, now time.Time) ([]*ledger.Entry, error) {
	if len(plates) == 0 {
		return nil, nil
	}
	wanted := make(map[string]struct{}, len(plates))
	for _, p := range plates {
		wanted[p] = struct{}{}
	}
	out := r.collect(func(e *ledger.Entry) bool {
		if e.State != state || !e.IsBlockingCandidate(now) {
			return false
		}
		for _, p := range e.Plates.ConflictPlates() {
			if _, ok := wanted[p]; ok {
				return true
			}
		}
		return false
	})
	sortByValidUntilDesc(out)
	return out, nil
}

func (r *LedgerRepository) List(_ context.Context, filter ledger.Filter, limit, offset int) ([]*ledger.Entry, error) {
	out := r.collect(func(e *ledger.Entry) bool {
		if filter.State != nil && e.State != *filter.State {
			return false
		}
		if filter.Status != nil && e.Status != *filter.Status {
			return false
		}
		if filter.TransporterID != nil && e.TransporterID != *filter.TransporterID {
			return false
		}
		if filter.AETNumber != nil && (e.AETNumber == nil || *e.AETNumber != *filter.AETNumber) {
			return false
		}
		if filter.Plate != nil && !hasPlate(e.Plates, *filter.Plate) {
			return false
		}
		return true
	})
	sortByValidUntilDesc(out)
	return paginate(out, limit, offset), nil
}

func (r *LedgerRepository) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, e := range r.s.state.ledger {
		if e.Status == ledger.StatusActive && !e.ValidUntil.After(now) {
			e.Status = ledger.StatusExpired
			e.UpdatedAt = now
			remember(ctx, &r.s.state, ledgerRows, k)
			r.s.state.ledger[k] = e
			n++
		}
	}
	return n, nil
}

func (r *LedgerRepository) DeleteByRequest(ctx context.Context, requestID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k := range r.s.state.ledger {
		if k.requestID == requestID {
			remember(ctx, &r.s.state, ledgerRows, k)
			delete(r.s.state.ledger, k)
		}
	}
	return nil
}

func (r *LedgerRepository) collect(match func(e *ledger.Entry) bool) []*ledger.Entry {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*ledger.Entry
	for _, e := range r.s.state.ledger {
		e := e
		if match(&e) {
			out = append(out, &e)
		}
	}
	return out
}

func sortByValidUntilDesc(entries []*ledger.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ValidUntil.Equal(entries[j].ValidUntil) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].ValidUntil.After(entries[j].ValidUntil)
	})
}

func hasPlate(p ledger.Plates, plate string) bool {
	for _, v := range []*string{p.Tractor, p.FirstTrailer, p.SecondTrailer, p.Dolly, p.Flatbed, p.GenericTrailer} {
		if v != nil && *v == plate {
			return true
		}
	}
	return false
}
