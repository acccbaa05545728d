package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aet-hub/aet-hub/internal/domain/history"
	"github.com/aet-hub/aet-hub/internal/domain/license"
)

// LicenseRepository implements license.Repository.
type LicenseRepository struct {
	s *Store
}

func (r *LicenseRepository) Create(ctx context.Context, req *license.Request) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req.ID = r.s.id()
	remember(ctx, &r.s.state, licenseRows, req.ID)
	r.s.state.licenses[req.ID] = *cloneLicense(req)
	return nil
}

func (r *LicenseRepository) GetByID(_ context.Context, id int64) (*license.Request, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	req, ok := r.s.state.licenses[id]
	if !ok {
		return nil, nil
	}
	return cloneLicense(&req), nil
}

// GetByIDForUpdate relies on TxManager serializing transactions.
func (r *LicenseRepository) GetByIDForUpdate(ctx context.Context, id int64) (*license.Request, error) {
	return r.GetByID(ctx, id)
}

func (r *LicenseRepository) Update(ctx context.Context, req *license.Request) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.licenses[req.ID]; !ok {
		return nil
	}
	remember(ctx, &r.s.state, licenseRows, req.ID)
	r.s.state.licenses[req.ID] = *cloneLicense(req)
	return nil
}

// Delete cascades to ledger entries and history, matching the SQL schema.
func (r *LicenseRepository) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	remember(ctx, &r.s.state, licenseRows, id)
	delete(r.s.state.licenses, id)
	for k := range r.s.state.ledger {
		if k.requestID == id {
			remember(ctx, &r.s.state, ledgerRows, k)
			delete(r.s.state.ledger, k)
		}
	}
	var kept, removed []history.Entry
	for _, e := range r.s.state.history {
		if e.LicenseID != id {
			kept = append(kept, e)
		} else {
			removed = append(removed, e)
		}
	}
	rememberHistory(ctx, removed)
	r.s.state.history = kept
	return nil
}

func (r *LicenseRepository) List(_ context.Context, filter license.Filter, limit, offset int) ([]*license.Request, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*license.Request
	for _, req := range r.s.state.licenses {
		if !matchLicense(&req, filter) {
			continue
		}
		out = append(out, cloneLicense(&req))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, limit, offset), nil
}

func matchLicense(req *license.Request, f license.Filter) bool {
	if f.OwnerUserID != nil && req.OwnerUserID != *f.OwnerUserID {
		return false
	}
	if f.TransporterID != nil && req.TransporterID != *f.TransporterID {
		return false
	}
	if f.Status != nil && req.Status != *f.Status {
		return false
	}
	if f.State != nil && !req.HasState(*f.State) {
		return false
	}
	if f.IsDraft != nil && req.IsDraft != *f.IsDraft {
		return false
	}
	if f.Search != nil && *f.Search != "" {
		q := strings.ToLower(*f.Search)
		if !strings.Contains(strings.ToLower(req.RequestNumber), q) && !strings.Contains(strings.ToLower(req.MainPlate), q) {
			return false
		}
	}
	return true
}

func (r *LicenseRepository) FindByAETNumber(_ context.Context, number string) ([]*license.Request, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*license.Request
	for _, req := range r.s.state.licenses {
		for _, v := range license.DecodeValues(req.StateAETNumbers) {
			if v == number {
				out = append(out, cloneLicense(&req))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *LicenseRepository) ListSubmitted(_ context.Context, limit, offset int) ([]*license.Request, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*license.Request
	for _, req := range r.s.state.licenses {
		if !req.IsDraft {
			out = append(out, cloneLicense(&req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, limit, offset), nil
}

func (r *LicenseRepository) CountByStatus(_ context.Context) (map[license.Status]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[license.Status]int)
	for _, req := range r.s.state.licenses {
		if !req.IsDraft {
			counts[req.Status]++
		}
	}
	return counts, nil
}

func (r *LicenseRepository) NextRequestNumber(_ context.Context) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.state.requestNumber++
	return fmt.Sprintf("AET-%d-%05d", time.Now().UTC().Year(), r.s.state.requestNumber), nil
}
