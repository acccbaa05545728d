package ledger

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/aet-hub/aet-hub/internal/domain/ledger"
	"github.com/aet-hub/aet-hub/internal/domain/license"
)

// ConflictRecorder counts blocked submissions.
type ConflictRecorder interface {
	IncConflictBlocked(state string)
}

// ConflictValidator reports active permits that cover the same state and an overlapping
// plate set outside the renewal window.
type ConflictValidator struct {
	repo    domain.Repository
	policy  *BlockPolicy
	metrics ConflictRecorder
	now     func() time.Time
	logger  zerolog.Logger
}

func NewConflictValidator(repo domain.Repository, policy *BlockPolicy, metrics ConflictRecorder, logger zerolog.Logger) *ConflictValidator {
	if policy == nil {
		policy = DefaultBlockPolicy()
	}
	return &ConflictValidator{
		repo:    repo,
		policy:  policy,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With().Str("service", "conflicts").Logger(),
	}
}

// WithClock replaces the time source.
func (v *ConflictValidator) WithClock(now func() time.Time) *ConflictValidator {
	v.now = now
	return v
}

// FindBlockingConflicts returns the blocking conflict for state, or nil. Only the permit
// with the latest validity among the matches is considered.
func (v *ConflictValidator) FindBlockingConflicts(ctx context.Context, state string, plates []string) (*domain.Conflict, error) {
	targets := NormalizePlates(plates)
	if len(targets) == 0 {
		return nil, nil
	}
	now := v.now()
	matches, err := v.repo.FindActiveByPlates(ctx, state, targets, now)
	if err != nil {
		return nil, err
	}
	var latest *domain.Entry
	for _, e := range matches {
		if !e.IsBlockingCandidate(now) {
			continue
		}
		if latest == nil || e.ValidUntil.After(latest.ValidUntil) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}

	days := DaysRemaining(latest.ValidUntil, now)
	if !v.policy.Blocks(state, days) {
		v.logger.Debug().Str("state", state).Int64("request_id", latest.RequestID).Int("days_remaining", days).Msg("overlap inside renewal window")
		return nil, nil
	}

	conflict := &domain.Conflict{
		RequestID:         latest.RequestID,
		RequestNumber:     latest.RequestNumber,
		State:             latest.State,
		ValidUntil:        latest.ValidUntil,
		DaysRemaining:     days,
		OverlappingPlates: overlap(latest.Plates.ConflictPlates(), targets),
		Blocking:          true,
	}
	if latest.AETNumber != nil {
		conflict.AETNumber = *latest.AETNumber
	}
	if v.metrics != nil {
		v.metrics.IncConflictBlocked(state)
	}
	return conflict, nil
}

// CheckExisting runs FindBlockingConflicts per state and collects the blocking ones.
func (v *ConflictValidator) CheckExisting(ctx context.Context, states []string, plates []string) ([]domain.Conflict, error) {
	conflicts := make([]domain.Conflict, 0)
	seen := make(map[string]struct{}, len(states))
	for _, state := range states {
		if _, ok := seen[state]; ok {
			continue
		}
		seen[state] = struct{}{}
		c, err := v.FindBlockingConflicts(ctx, state, plates)
		if err != nil {
			return nil, err
		}
		if c != nil {
			conflicts = append(conflicts, *c)
		}
	}
	return conflicts, nil
}

// DaysRemaining is the number of started days between now and validUntil.
func DaysRemaining(validUntil, now time.Time) int {
	return int(math.Ceil(validUntil.Sub(now).Hours() / 24))
}

// NormalizePlates normalizes, drops empties and de-duplicates while keeping order.
func NormalizePlates(plates []string) []string {
	out := make([]string, 0, len(plates))
	seen := make(map[string]struct{}, len(plates))
	for _, p := range plates {
		n := license.NormalizePlate(p)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func overlap(stored, targets []string) []string {
	want := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		want[t] = struct{}{}
	}
	out := make([]string, 0, len(stored))
	for _, p := range stored {
		if _, ok := want[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
