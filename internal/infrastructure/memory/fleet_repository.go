package memory

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/aet-hub/aet-hub/internal/domain/transporter"
	"github.com/aet-hub/aet-hub/internal/domain/vehicle"
)

var (
	errDuplicatePlate = errors.New("plate already registered")
	errDuplicateTaxID = errors.New("tax id already registered")
)

// VehicleRepository implements vehicle.Repository.
type VehicleRepository struct {
	s *Store
}

func (r *VehicleRepository) Create(ctx context.Context, v *vehicle.Vehicle) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.state.vehicles {
		if existing.Plate == v.Plate {
			return errDuplicatePlate
		}
	}
	v.ID = r.s.id()
	remember(ctx, &r.s.state, vehicleRows, v.ID)
	r.s.state.vehicles[v.ID] = *v
	return nil
}

func (r *VehicleRepository) GetByID(_ context.Context, id int64) (*vehicle.Vehicle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, ok := r.s.state.vehicles[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *VehicleRepository) GetByPlate(_ context.Context, plate string) (*vehicle.Vehicle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, v := range r.s.state.vehicles {
		if v.Plate == plate {
			v := v
			return &v, nil
		}
	}
	return nil, nil
}

func (r *VehicleRepository) List(_ context.Context, filter vehicle.Filter, limit, offset int) ([]*vehicle.Vehicle, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*vehicle.Vehicle
	for _, v := range r.s.state.vehicles {
		if filter.TransporterID != nil && v.TransporterID != *filter.TransporterID {
			continue
		}
		if filter.Type != nil && v.Type != *filter.Type {
			continue
		}
		if filter.Plate != nil && !strings.Contains(v.Plate, strings.ToUpper(*filter.Plate)) {
			continue
		}
		v := v
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Plate < out[j].Plate })
	return paginate(out, limit, offset), nil
}

// TransporterRepository implements transporter.Repository.
type TransporterRepository struct {
	s *Store
}

func (r *TransporterRepository) Create(ctx context.Context, t *transporter.Transporter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.state.transporters {
		if existing.TaxID == t.TaxID {
			return errDuplicateTaxID
		}
	}
	t.ID = r.s.id()
	remember(ctx, &r.s.state, transporterRows, t.ID)
	r.s.state.transporters[t.ID] = *t
	return nil
}

func (r *TransporterRepository) GetByID(_ context.Context, id int64) (*transporter.Transporter, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.state.transporters[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *TransporterRepository) GetByTaxID(_ context.Context, taxID string) (*transporter.Transporter, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.state.transporters {
		if t.TaxID == taxID {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (r *TransporterRepository) List(_ context.Context, filter transporter.Filter, limit, offset int) ([]*transporter.Transporter, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*transporter.Transporter
	for _, t := range r.s.state.transporters {
		if filter.OwnerUserID != nil && t.OwnerUserID != *filter.OwnerUserID {
			continue
		}
		if filter.Search != nil && *filter.Search != "" {
			q := strings.ToLower(*filter.Search)
			if !strings.Contains(strings.ToLower(t.Name), q) && !strings.Contains(t.TaxID, q) {
				continue
			}
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return paginate(out, limit, offset), nil
}
