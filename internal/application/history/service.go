package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domain "github.com/aet-hub/aet-hub/internal/domain/history"
)

var (
	ErrNotFound     = errors.New("history entry not found")
	ErrNoSigningKey = errors.New("history signing is not configured")
)

// Service records and reads the per-state status history.
type Service struct {
	repo    domain.Repository
	signKey []byte
	logger  zerolog.Logger
}

// NewService creates a history service. An empty signKey disables signing.
func NewService(repo domain.Repository, logger zerolog.Logger, signKey []byte) *Service {
	return &Service{
		repo:    repo,
		signKey: signKey,
		logger:  logger.With().Str("service", "history").Logger(),
	}
}

// Record signs and appends entry. It runs inside the caller's transaction when ctx
// carries one.
func (s *Service) Record(ctx context.Context, entry *domain.Entry) error {
	if len(s.signKey) > 0 {
		sig, err := domain.Sign(entry, s.signKey)
		if err != nil {
			return fmt.Errorf("failed to sign history entry: %w", err)
		}
		entry.Signature = sig
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}
	s.logger.Debug().
		Str("historyId", entry.HistoryID.String()).
		Int64("licenseId", entry.LicenseID).
		Str("state", entry.State).
		Str("actor", entry.Actor).
		Str("oldStatus", string(entry.OldStatus)).
		Str("newStatus", string(entry.NewStatus)).
		Msg("status history recorded")
	return nil
}

// List returns the entries of a license in chronological order, optionally for one state.
func (s *Service) List(ctx context.Context, licenseID int64, state *string) ([]*domain.Entry, error) {
	return s.repo.ListByLicense(ctx, licenseID, state)
}

// Verify checks the stored signature of an entry belonging to licenseID.
func (s *Service) Verify(ctx context.Context, licenseID int64, historyID uuid.UUID) (bool, error) {
	if len(s.signKey) == 0 {
		return false, ErrNoSigningKey
	}
	entry, err := s.repo.GetByID(ctx, historyID)
	if err != nil {
		return false, err
	}
	if entry == nil || entry.LicenseID != licenseID {
		return false, ErrNotFound
	}
	return domain.Verify(entry, s.signKey)
}
