package transition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aet-hub/aet-hub/internal/apperr"
	"github.com/aet-hub/aet-hub/internal/domain/history"
	"github.com/aet-hub/aet-hub/internal/domain/ledger"
	"github.com/aet-hub/aet-hub/internal/domain/license"
	"github.com/aet-hub/aet-hub/internal/domain/notification"
	"github.com/aet-hub/aet-hub/internal/domain/transporter"
	"github.com/aet-hub/aet-hub/internal/domain/user"
	"github.com/aet-hub/aet-hub/internal/infrastructure/storage"
)

// LedgerSyncer copies an approved state into the issued-license ledger.
type LedgerSyncer interface {
	SyncApprovedState(ctx context.Context, req *license.Request, state, permitNumber string, validUntil, issuedAt time.Time) (*ledger.Entry, error)
}

// HistoryRecorder appends status history entries.
type HistoryRecorder interface {
	Record(ctx context.Context, entry *history.Entry) error
}

// Recorder receives transition metrics.
type Recorder interface {
	IncTransition(state, status string)
	IncSyncFailure(state string)
}

// File is a permit document attached to a transition.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Options carry the optional inputs of a transition.
type Options struct {
	Comments      *string
	ValidUntil    *time.Time
	IssuedAt      *time.Time
	AETNumber     *string
	File          *File
	SelectedTaxID *string
}

// Params configure a Service.
type Params struct {
	Licenses             license.Repository
	Tx                   license.TxRunner
	History              HistoryRecorder
	Ledger               LedgerSyncer
	Storage              storage.Store
	Publisher            notification.Publisher
	Metrics              Recorder
	NumberOptionalStates []string
	Logger               zerolog.Logger
}

// Service applies per-state status transitions to license requests.
type Service struct {
	licenses  license.Repository
	tx        license.TxRunner
	history   HistoryRecorder
	ledger    LedgerSyncer
	storage   storage.Store
	publisher notification.Publisher
	metrics   Recorder
	optional  map[string]struct{}
	logger    zerolog.Logger
}

func NewService(p Params) *Service {
	optional := make(map[string]struct{}, len(p.NumberOptionalStates))
	for _, s := range p.NumberOptionalStates {
		optional[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	return &Service{
		licenses:  p.Licenses,
		tx:        p.Tx,
		history:   p.History,
		ledger:    p.Ledger,
		storage:   p.Storage,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		optional:  optional,
		logger:    p.Logger.With().Str("service", "transition").Logger(),
	}
}

// Transition moves one state of a request to newStatus. The request, its tags and the
// history entry are written in one transaction; the ledger sync and the broadcasts happen
// after commit and never fail the call.
func (s *Service) Transition(ctx context.Context, actor user.Actor, requestID int64, state string, newStatus string, opts Options) (*license.Request, error) {
	if !actor.Role.IsStaff() {
		return nil, apperr.New(apperr.CodeForbidden, "only staff may change license statuses")
	}
	target, err := license.ParseStatus(newStatus)
	if err != nil {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown status %q", newStatus)
	}
	code, err := license.NormalizeState(state)
	if err != nil {
		return nil, apperr.Newf(apperr.CodeInvalidState, "unknown state %q", state)
	}
	if err := validateDates(target, &opts); err != nil {
		return nil, err
	}
	taxID, err := normalizeTaxID(opts.SelectedTaxID)
	if err != nil {
		return nil, err
	}

	current, err := s.licenses.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "license request %d not found", requestID)
	}
	if current.IsDraft {
		return nil, apperr.New(apperr.CodeValidation, "drafts have no per-state status")
	}
	if err := s.check(ctx, current, code, target, opts.AETNumber); err != nil {
		return nil, err
	}

	var fileURL string
	if opts.File != nil {
		fileURL, err = s.upload(ctx, requestID, code, opts.File)
		if err != nil {
			return nil, err
		}
	}

	var (
		updated   *license.Request
		oldStatus license.Status
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.licenses.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return apperr.Newf(apperr.CodeNotFound, "license request %d not found", requestID)
		}
		if err := s.check(ctx, req, code, target, opts.AETNumber); err != nil {
			return err
		}
		oldStatus = req.StateStatus(code).Status

		applyTags(req, code, target, opts, fileURL, taxID)
		req.RecomputeAggregate()
		req.UpdatedAt = time.Now().UTC()
		if err := s.licenses.Update(ctx, req); err != nil {
			return err
		}
		entry := history.NewEntry(req.ID, code, actor.ActorString(), oldStatus, target, opts.Comments)
		if err := s.history.Record(ctx, entry); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("license_id", updated.ID).
		Str("state", code).
		Str("from", oldStatus.String()).
		Str("to", target.String()).
		Str("actor", actor.ActorString()).
		Msg("state status changed")
	if s.metrics != nil {
		s.metrics.IncTransition(code, target.String())
	}

	if target == license.StatusApproved {
		s.syncLedger(ctx, updated, code)
	}

	s.publish(notification.EventStatusUpdate, notification.StatusUpdate{
		LicenseID: updated.ID,
		State:     code,
		Status:    target.String(),
		License:   updated,
	})
	s.publish(notification.EventDashboardUpdate, map[string]int64{"licenseId": updated.ID})
	return updated, nil
}

// check validates a transition against the current content of req.
func (s *Service) check(ctx context.Context, req *license.Request, state string, target license.Status, supplied *string) error {
	if !req.HasState(state) {
		return apperr.Newf(apperr.CodeInvalidState, "state %s is not part of request %s", state, req.RequestNumber)
	}
	from := req.StateStatus(state).Status
	if !from.CanTransitionTo(target) {
		return apperr.Newf(apperr.CodeInvalidTransition, "cannot move %s from %s to %s", state, from, target).
			WithDetails(map[string]string{"state": state, "from": from.String(), "to": target.String()})
	}

	number := ""
	if supplied != nil {
		number = strings.TrimSpace(*supplied)
	}
	if number == "" {
		if !s.requiresNumber(state, target) {
			return nil
		}
		if number, _ = req.AETNumber(state); number == "" {
			return apperr.Newf(apperr.CodeValidation, "permit number is required to move %s to %s", state, target)
		}
	}
	return s.ensureUniqueNumber(ctx, req, state, number)
}

func (s *Service) requiresNumber(state string, target license.Status) bool {
	if target != license.StatusUnderReview && target != license.StatusApproved {
		return false
	}
	_, optional := s.optional[state]
	return !optional
}

// ensureUniqueNumber rejects a permit number already stored for another request or for
// another state of the same request.
func (s *Service) ensureUniqueNumber(ctx context.Context, req *license.Request, state, number string) error {
	for otherState, value := range license.DecodeValues(req.StateAETNumbers) {
		if otherState != state && value == number {
			return duplicateNumber(number, req.RequestNumber, otherState)
		}
	}
	holders, err := s.licenses.FindByAETNumber(ctx, number)
	if err != nil {
		return err
	}
	for _, other := range holders {
		if other.ID == req.ID {
			continue
		}
		for otherState, value := range license.DecodeValues(other.StateAETNumbers) {
			if value == number {
				return duplicateNumber(number, other.RequestNumber, otherState)
			}
		}
	}
	return nil
}

func duplicateNumber(number, requestNumber, state string) error {
	return apperr.Newf(apperr.CodeDuplicatePermit, "permit number %s is already used by %s (%s)", number, requestNumber, state).
		WithDetails(map[string]string{"aetNumber": number, "requestNumber": requestNumber, "state": state})
}

func (s *Service) upload(ctx context.Context, requestID int64, state string, f *File) (string, error) {
	if s.storage == nil {
		return "", apperr.New(apperr.CodeDependency, "file storage is not configured")
	}
	folder := fmt.Sprintf("licenses/%d/%s", requestID, strings.ToLower(state))
	url, err := s.storage.Put(ctx, folder, storage.Object{Name: f.Name, ContentType: f.ContentType, Data: f.Data})
	if err != nil {
		if errors.Is(err, storage.ErrEmptyFile) || errors.Is(err, storage.ErrFileTooLarge) || errors.Is(err, storage.ErrFileType) {
			return "", apperr.Wrap(apperr.CodeValidation, err, err.Error())
		}
		return "", apperr.Wrap(apperr.CodeDependency, err, "upload permit file")
	}
	return url, nil
}

func (s *Service) syncLedger(ctx context.Context, req *license.Request, state string) {
	if s.ledger == nil {
		return
	}
	rec := req.StateStatus(state)
	if rec.ValidUntil == nil || rec.IssuedAt == nil {
		return
	}
	number, _ := req.AETNumber(state)
	if _, err := s.ledger.SyncApprovedState(ctx, req, state, number, *rec.ValidUntil, *rec.IssuedAt); err != nil {
		s.logger.Error().Err(err).Int64("license_id", req.ID).Str("state", state).Msg("ledger sync failed")
		if s.metrics != nil {
			s.metrics.IncSyncFailure(state)
		}
	}
}

func (s *Service) publish(eventType notification.EventType, data any) {
	if s.publisher != nil {
		s.publisher.Publish(eventType, data)
	}
}

func applyTags(req *license.Request, state string, target license.Status, opts Options, fileURL, taxID string) {
	var validUntil, issuedAt *time.Time
	if target == license.StatusApproved {
		validUntil, issuedAt = opts.ValidUntil, opts.IssuedAt
	}
	req.StateStatuses = license.UpsertTag(req.StateStatuses, state, license.EncodeStatus(state, target, validUntil, issuedAt))
	if fileURL != "" {
		req.StateFiles = license.UpsertTag(req.StateFiles, state, license.EncodeValue(state, fileURL))
	}
	if opts.AETNumber != nil {
		if number := strings.TrimSpace(*opts.AETNumber); number != "" {
			req.StateAETNumbers = license.UpsertTag(req.StateAETNumbers, state, license.EncodeValue(state, number))
		}
	}
	if taxID != "" {
		req.StateCnpjs = license.UpsertTag(req.StateCnpjs, state, license.EncodeValue(state, taxID))
	}
}

// validateDates requires both dates for an approval and normalizes them to UTC midnight.
func validateDates(target license.Status, opts *Options) error {
	if target != license.StatusApproved {
		return nil
	}
	if opts.ValidUntil == nil || opts.IssuedAt == nil {
		return apperr.New(apperr.CodeValidation, "approval requires issue and validity dates")
	}
	validUntil, issuedAt := truncateDay(*opts.ValidUntil), truncateDay(*opts.IssuedAt)
	if validUntil.Before(issuedAt) {
		return apperr.New(apperr.CodeValidation, "validity date precedes issue date")
	}
	opts.ValidUntil, opts.IssuedAt = &validUntil, &issuedAt
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func normalizeTaxID(raw *string) (string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return "", nil
	}
	id, err := transporter.NormalizeTaxID(*raw)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeValidation, err, "invalid selected tax id")
	}
	return id, nil
}
