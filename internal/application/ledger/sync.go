package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/aet-hub/aet-hub/internal/domain/ledger"
	"github.com/aet-hub/aet-hub/internal/domain/license"
	"github.com/aet-hub/aet-hub/internal/domain/vehicle"
)

// ErrIncompleteApproval is returned when an approved tag lacks its validity or issuance
// date and cannot be mirrored into the ledger.
var ErrIncompleteApproval = errors.New("approved state has no validity or issuance date")

// Syncer mirrors approved states into the issued-license ledger.
type Syncer struct {
	repo     domain.Repository
	vehicles vehicle.Repository
	now      func() time.Time
	logger   zerolog.Logger
}

func NewSyncer(repo domain.Repository, vehicles vehicle.Repository, logger zerolog.Logger) *Syncer {
	return &Syncer{
		repo:     repo,
		vehicles: vehicles,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("service", "ledger_sync").Logger(),
	}
}

// WithClock replaces the time source.
func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// SyncApprovedState upserts the ledger row for (req, state). Re-running it with the same
// inputs rewrites the same row.
func (s *Syncer) SyncApprovedState(ctx context.Context, req *license.Request, state, permitNumber string, validUntil, issuedAt time.Time) (*domain.Entry, error) {
	if req == nil {
		return nil, errors.New("license request is required")
	}
	if !req.HasState(state) {
		return nil, fmt.Errorf("state %s is not part of request %d", state, req.ID)
	}
	now := s.now()
	entry := &domain.Entry{
		RequestID:     req.ID,
		RequestNumber: req.RequestNumber,
		TransporterID: req.TransporterID,
		State:         state,
		IssuedAt:      issuedAt,
		ValidUntil:    validUntil,
		Status:        domain.StatusActive,
		Plates:        s.resolvePlates(ctx, req),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if !validUntil.After(now) {
		entry.Status = domain.StatusExpired
	}
	if permitNumber != "" {
		entry.AETNumber = &permitNumber
	}
	if taxID, ok := req.SelectedTaxID(state); ok {
		entry.SelectedTaxID = &taxID
	}
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("upsert ledger entry %d/%s: %w", req.ID, state, err)
	}
	return entry, nil
}

// SyncFromTags re-syncs state from the data already stored on req.
func (s *Syncer) SyncFromTags(ctx context.Context, req *license.Request, state string) (*domain.Entry, error) {
	rec := req.StateStatus(state)
	if rec.Status != license.StatusApproved {
		return nil, fmt.Errorf("state %s is %s, not approved", state, rec.Status)
	}
	if rec.ValidUntil == nil || rec.IssuedAt == nil {
		return nil, ErrIncompleteApproval
	}
	number, _ := req.AETNumber(state)
	return s.SyncApprovedState(ctx, req, state, number, *rec.ValidUntil, *rec.IssuedAt)
}

func (s *Syncer) resolvePlates(ctx context.Context, req *license.Request) domain.Plates {
	var plates domain.Plates
	plates.Tractor = s.plateOf(ctx, req.TractorUnitID)
	plates.FirstTrailer = s.plateOf(ctx, req.FirstTrailerID)
	plates.SecondTrailer = s.plateOf(ctx, req.SecondTrailerID)
	plates.Dolly = s.plateOf(ctx, req.DollyID)
	plates.Flatbed = s.plateOf(ctx, req.FlatbedID)

	if plates.Tractor == nil {
		if main := license.NormalizePlate(req.MainPlate); main != "" {
			plates.Tractor = &main
		}
	}
	fillLegacyPlateSlots(&plates, req.AdditionalPlates)
	return plates
}

func (s *Syncer) plateOf(ctx context.Context, id *int64) *string {
	if id == nil || s.vehicles == nil {
		return nil
	}
	v, err := s.vehicles.GetByID(ctx, *id)
	if err != nil {
		s.logger.Warn().Err(err).Int64("vehicle_id", *id).Msg("vehicle lookup failed")
		return nil
	}
	if v == nil {
		return nil
	}
	p := license.NormalizePlate(v.Plate)
	if p == "" {
		return nil
	}
	return &p
}

// fillLegacyPlateSlots assigns additional plates, in order, to the empty slots first
// trailer, second trailer, dolly, flatbed, generic trailer. Older requests stored the
// composition only as this flat list. Plates already present in the snapshot are skipped.
func fillLegacyPlateSlots(plates *domain.Plates, additional []string) {
	present := make(map[string]struct{})
	for _, p := range []*string{plates.Tractor, plates.FirstTrailer, plates.SecondTrailer, plates.Dolly, plates.Flatbed, plates.GenericTrailer} {
		if p != nil {
			present[*p] = struct{}{}
		}
	}
	slots := []**string{&plates.FirstTrailer, &plates.SecondTrailer, &plates.Dolly, &plates.Flatbed, &plates.GenericTrailer}
	next := 0
	for _, raw := range additional {
		p := license.NormalizePlate(raw)
		if p == "" {
			continue
		}
		if _, ok := present[p]; ok {
			continue
		}
		for next < len(slots) && *slots[next] != nil {
			next++
		}
		if next == len(slots) {
			return
		}
		value := p
		*slots[next] = &value
		present[p] = struct{}{}
		next++
	}
}
