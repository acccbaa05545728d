package license

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aet-hub/aet-hub/internal/apperr"
	ledgerapp "github.com/aet-hub/aet-hub/internal/application/ledger"
	"github.com/aet-hub/aet-hub/internal/domain/ledger"
	domain "github.com/aet-hub/aet-hub/internal/domain/license"
	"github.com/aet-hub/aet-hub/internal/domain/notification"
	"github.com/aet-hub/aet-hub/internal/domain/transporter"
	"github.com/aet-hub/aet-hub/internal/domain/user"
	"github.com/aet-hub/aet-hub/internal/domain/vehicle"
)

// ConflictChecker reports blocking permits per state.
type ConflictChecker interface {
	CheckExisting(ctx context.Context, states []string, plates []string) ([]ledger.Conflict, error)
}

// Service handles the lifecycle of license requests outside per-state transitions.
type Service struct {
	repo         domain.Repository
	tx           domain.TxRunner
	transporters transporter.Repository
	vehicles     vehicle.Repository
	conflicts    ConflictChecker
	publisher    notification.Publisher
	logger       zerolog.Logger
}

// Params configure a Service.
type Params struct {
	Repo         domain.Repository
	Tx           domain.TxRunner
	Transporters transporter.Repository
	Vehicles     vehicle.Repository
	Conflicts    ConflictChecker
	Publisher    notification.Publisher
	Logger       zerolog.Logger
}

// NewService creates a license service.
func NewService(p Params) *Service {
	return &Service{
		repo:         p.Repo,
		tx:           p.Tx,
		transporters: p.Transporters,
		vehicles:     p.Vehicles,
		conflicts:    p.Conflicts,
		publisher:    p.Publisher,
		logger:       p.Logger.With().Str("service", "license").Logger(),
	}
}

// Input is the editable content of a request.
type Input struct {
	TransporterID    int64
	LicenseType      string
	TractorUnitID    *int64
	FirstTrailerID   *int64
	SecondTrailerID  *int64
	DollyID          *int64
	FlatbedID        *int64
	MainPlate        string
	AdditionalPlates []string
	Length           float64
	Width            float64
	Height           float64
	CargoType        string
	States           []string
	Comments         *string
}

// DashboardStats summarizes submitted requests.
type DashboardStats struct {
	Total    int                   `json:"total"`
	ByStatus map[domain.Status]int `json:"byStatus"`
}

// CreateDraft stores an incomplete request. No conflict check runs for drafts.
func (s *Service) CreateDraft(ctx context.Context, actor user.Actor, input Input) (*domain.Request, error) {
	req, err := s.build(ctx, actor, input, false)
	if err != nil {
		return nil, err
	}
	req.IsDraft = true
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("license_id", req.ID).Str("actor", actor.ActorString()).Msg("draft created")
	s.publish(notification.EventLicenseCreated, req)
	return req, nil
}

// Create submits a request directly.
func (s *Service) Create(ctx context.Context, actor user.Actor, input Input) (*domain.Request, error) {
	req, err := s.build(ctx, actor, input, true)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNoConflicts(ctx, req); err != nil {
		return nil, err
	}
	if err := s.markSubmitted(ctx, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("license_id", req.ID).Str("request_number", req.RequestNumber).Str("actor", actor.ActorString()).Msg("license request submitted")
	s.publish(notification.EventLicenseCreated, req)
	s.publish(notification.EventDashboardUpdate, map[string]int64{"licenseId": req.ID})
	return req, nil
}

// UpdateDraft replaces the content of a draft.
func (s *Service) UpdateDraft(ctx context.Context, actor user.Actor, id int64, input Input) (*domain.Request, error) {
	current, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !current.IsDraft {
		return nil, apperr.New(apperr.CodeValidation, "only drafts can be edited")
	}
	if !canManage(actor, current) {
		return nil, apperr.New(apperr.CodeForbidden, "not allowed to edit this draft")
	}
	next, err := s.build(ctx, actor, input, false)
	if err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.OwnerUserID = current.OwnerUserID
	next.IsDraft = true
	next.CreatedAt = current.CreatedAt
	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}
	s.publish(notification.EventLicenseUpdated, next)
	return next, nil
}

// Submit turns a draft into a request in place.
func (s *Service) Submit(ctx context.Context, actor user.Actor, id int64) (*domain.Request, error) {
	var submitted *domain.Request
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req == nil || !canView(actor, req) {
			return apperr.Newf(apperr.CodeNotFound, "license request %d not found", id)
		}
		if !req.IsDraft {
			return apperr.New(apperr.CodeValidation, "request was already submitted")
		}
		if !canManage(actor, req) {
			return apperr.New(apperr.CodeForbidden, "not allowed to submit this draft")
		}
		if err := s.validateComplete(ctx, req); err != nil {
			return err
		}
		if err := s.ensureNoConflicts(ctx, req); err != nil {
			return err
		}
		if err := s.markSubmitted(ctx, req); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, req); err != nil {
			return err
		}
		submitted = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("license_id", submitted.ID).Str("request_number", submitted.RequestNumber).Str("actor", actor.ActorString()).Msg("draft submitted")
	s.publish(notification.EventLicenseUpdated, submitted)
	s.publish(notification.EventDashboardUpdate, map[string]int64{"licenseId": submitted.ID})
	return submitted, nil
}

// Renew creates a draft for one state of an existing request, copying its composition.
func (s *Service) Renew(ctx context.Context, actor user.Actor, id int64, state string) (*domain.Request, error) {
	source, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	code, err := domain.NormalizeState(state)
	if err != nil || !source.HasState(code) {
		return nil, apperr.Newf(apperr.CodeInvalidState, "state %s is not part of request %d", state, id)
	}
	if !canManage(actor, source) {
		return nil, apperr.New(apperr.CodeForbidden, "not allowed to renew this request")
	}
	now := time.Now().UTC()
	draft := &domain.Request{
		OwnerUserID:      source.OwnerUserID,
		TransporterID:    source.TransporterID,
		LicenseType:      source.LicenseType,
		TractorUnitID:    source.TractorUnitID,
		FirstTrailerID:   source.FirstTrailerID,
		SecondTrailerID:  source.SecondTrailerID,
		DollyID:          source.DollyID,
		FlatbedID:        source.FlatbedID,
		MainPlate:        source.MainPlate,
		AdditionalPlates: append([]string(nil), source.AdditionalPlates...),
		Length:           source.Length,
		Width:            source.Width,
		Height:           source.Height,
		CargoType:        source.CargoType,
		States:           []string{code},
		Status:           domain.StatusPendingRegistration,
		IsDraft:          true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if source.RequestNumber != "" {
		note := fmt.Sprintf("renewal of %s/%s", source.RequestNumber, code)
		draft.Comments = &note
	}
	if err := s.repo.Create(ctx, draft); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("license_id", draft.ID).Int64("source_id", source.ID).Str("state", code).Msg("renewal draft created")
	s.publish(notification.EventLicenseCreated, draft)
	return draft, nil
}

// Get returns a request visible to actor.
func (s *Service) Get(ctx context.Context, actor user.Actor, id int64) (*domain.Request, error) {
	return s.load(ctx, actor, id)
}

// List lists requests. Plain users only see their own.
func (s *Service) List(ctx context.Context, actor user.Actor, filter domain.Filter, limit, offset int) ([]*domain.Request, error) {
	if actor.Role == user.RoleUser {
		filter.OwnerUserID = &actor.UserID
	}
	return s.repo.List(ctx, filter, limit, offset)
}

// Delete removes a request with its ledger rows and history. Owners may delete their
// drafts; submitted requests need a staff role.
func (s *Service) Delete(ctx context.Context, actor user.Actor, id int64) error {
	req, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if !canManage(actor, req) || (!req.IsDraft && !actor.Role.IsStaff()) {
		return apperr.New(apperr.CodeForbidden, "not allowed to delete this request")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("license_id", id).Str("actor", actor.ActorString()).Msg("license request deleted")
	s.publish(notification.EventLicenseDeleted, map[string]int64{"id": id})
	s.publish(notification.EventDashboardUpdate, map[string]int64{"licenseId": id})
	return nil
}

// Stats counts submitted requests by aggregate status.
func (s *Service) Stats(ctx context.Context) (*DashboardStats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := &DashboardStats{ByStatus: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// CheckConflicts runs the conflict check for a prospective composition.
func (s *Service) CheckConflicts(ctx context.Context, states []string, plates []string, refs domain.Composition) ([]ledger.Conflict, error) {
	codes, err := normalizeStates(states)
	if err != nil {
		return nil, err
	}
	all := append(s.rolePlates(ctx, refs), plates...)
	return s.conflicts.CheckExisting(ctx, codes, ledgerapp.NormalizePlates(all))
}

func (s *Service) load(ctx context.Context, actor user.Actor, id int64) (*domain.Request, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil || !canView(actor, req) {
		return nil, apperr.Newf(apperr.CodeNotFound, "license request %d not found", id)
	}
	return req, nil
}

func (s *Service) build(ctx context.Context, actor user.Actor, input Input, complete bool) (*domain.Request, error) {
	t, err := s.transporters.GetByID(ctx, input.TransporterID)
	if err != nil {
		return nil, err
	}
	if t == nil || (!actor.Role.IsStaff() && t.OwnerUserID != actor.UserID) {
		return nil, apperr.Newf(apperr.CodeNotFound, "transporter %d not found", input.TransporterID)
	}
	states, err := normalizeStates(input.States)
	if err != nil {
		return nil, err
	}
	if err := s.checkVehicles(ctx, t.ID, input); err != nil {
		return nil, err
	}

	owner := actor.UserID
	if actor.Role.IsStaff() {
		owner = t.OwnerUserID
	}
	now := time.Now().UTC()
	req := &domain.Request{
		OwnerUserID:      owner,
		TransporterID:    t.ID,
		LicenseType:      strings.TrimSpace(input.LicenseType),
		TractorUnitID:    input.TractorUnitID,
		FirstTrailerID:   input.FirstTrailerID,
		SecondTrailerID:  input.SecondTrailerID,
		DollyID:          input.DollyID,
		FlatbedID:        input.FlatbedID,
		MainPlate:        domain.NormalizePlate(input.MainPlate),
		AdditionalPlates: normalizePlateList(input.AdditionalPlates),
		Length:           input.Length,
		Width:            input.Width,
		Height:           input.Height,
		CargoType:        strings.TrimSpace(input.CargoType),
		States:           states,
		Status:           domain.StatusPendingRegistration,
		Comments:         input.Comments,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if complete {
		if err := s.validateComplete(ctx, req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (s *Service) validateComplete(_ context.Context, req *domain.Request) error {
	if len(req.States) == 0 {
		return apperr.New(apperr.CodeValidation, "at least one state is required")
	}
	if req.LicenseType == "" {
		return apperr.New(apperr.CodeValidation, "license type is required")
	}
	if req.MainPlate == "" && req.TractorUnitID == nil {
		return apperr.New(apperr.CodeValidation, "main plate or tractor unit is required")
	}
	if req.Length <= 0 || req.Width <= 0 || req.Height <= 0 {
		return apperr.New(apperr.CodeValidation, "dimensions must be positive")
	}
	return nil
}

func (s *Service) checkVehicles(ctx context.Context, transporterID int64, input Input) error {
	for _, id := range (domain.Composition{
		TractorUnitID:   input.TractorUnitID,
		FirstTrailerID:  input.FirstTrailerID,
		SecondTrailerID: input.SecondTrailerID,
		DollyID:         input.DollyID,
		FlatbedID:       input.FlatbedID,
	}).IDs() {
		v, err := s.vehicles.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if v == nil || v.TransporterID != transporterID {
			return apperr.Newf(apperr.CodeNotFound, "vehicle %d not found", id)
		}
	}
	return nil
}

func (s *Service) ensureNoConflicts(ctx context.Context, req *domain.Request) error {
	if s.conflicts == nil {
		return nil
	}
	conflicts, err := s.conflicts.CheckExisting(ctx, req.States, s.compositionPlates(ctx, req))
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		first := conflicts[0]
		return apperr.Newf(apperr.CodeConflictBlocked,
			"permit %s for %s is valid until %s (%d days remaining)",
			first.AETNumber, first.State, domain.FormatDate(first.ValidUntil), first.DaysRemaining).
			WithDetails(conflicts)
	}
	return nil
}

func (s *Service) markSubmitted(ctx context.Context, req *domain.Request) error {
	number, err := s.repo.NextRequestNumber(ctx)
	if err != nil {
		return err
	}
	req.RequestNumber = number
	req.IsDraft = false
	req.Status = domain.StatusPendingRegistration
	req.InitStateStatuses()
	req.UpdatedAt = time.Now().UTC()
	return nil
}

// compositionPlates returns role plates, main plate and additional plates, normalized and
// de-duplicated.
func (s *Service) compositionPlates(ctx context.Context, req *domain.Request) []string {
	plates := s.rolePlates(ctx, req.CompositionRefs())
	plates = append(plates, req.MainPlate)
	plates = append(plates, req.AdditionalPlates...)
	return ledgerapp.NormalizePlates(plates)
}

func (s *Service) rolePlates(ctx context.Context, refs domain.Composition) []string {
	var plates []string
	for _, id := range refs.IDs() {
		v, err := s.vehicles.GetByID(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Int64("vehicle_id", id).Msg("vehicle lookup failed")
			continue
		}
		if v != nil {
			plates = append(plates, v.Plate)
		}
	}
	return plates
}

func (s *Service) publish(eventType notification.EventType, data any) {
	if s.publisher != nil {
		s.publisher.Publish(eventType, data)
	}
}

func normalizeStates(states []string) ([]string, error) {
	out := make([]string, 0, len(states))
	seen := make(map[string]struct{}, len(states))
	for _, raw := range states {
		code, err := domain.NormalizeState(raw)
		if err != nil {
			return nil, apperr.Newf(apperr.CodeValidation, "unknown state %q", raw)
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out, nil
}

func normalizePlateList(plates []string) []string {
	out := make([]string, 0, len(plates))
	for _, p := range plates {
		if n := domain.NormalizePlate(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// canView: plain users only see their own requests.
func canView(actor user.Actor, req *domain.Request) bool {
	return actor.Role != user.RoleUser || req.OwnerUserID == actor.UserID
}

func canManage(actor user.Actor, req *domain.Request) bool {
	return actor.Role.IsStaff() || req.OwnerUserID == actor.UserID
}
