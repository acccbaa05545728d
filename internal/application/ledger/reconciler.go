package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	domain "github.com/aet-hub/aet-hub/internal/domain/ledger"
	"github.com/aet-hub/aet-hub/internal/domain/license"
)

const (
	ReconcileJobName   = "ledger_reconcile"
	reconcileBatchSize = 200
)

// Lock guards a reconciliation run across replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// JobRecorder records job outcomes.
type JobRecorder interface {
	ObserveDuration(job string, d time.Duration)
	IncSuccess(job string)
	IncFailure(job string)
}

// SyncFailureRecorder counts ledger sync failures.
type SyncFailureRecorder interface {
	IncSyncFailure(state string)
}

// ReconcileResult summarizes one run.
type ReconcileResult struct {
	Skipped bool  `json:"skipped"`
	Expired  int64 `json:"expired"`
	Synced   int   `json:"synced"`
	Canceled int   `json:"canceled"`
	Failed   int   `json:"failed"`
}

// ReconcilerParams configure a Reconciler.
type ReconcilerParams struct {
	Licenses    license.Repository
	Ledger      domain.Repository
	Syncer      *Syncer
	Lock        Lock
	Jobs        JobRecorder
	SyncMetrics SyncFailureRecorder
	Logger      zerolog.Logger
}

// Reconciler repairs the ledger: it expires lapsed permits, re-syncs every approved state
// of every submitted request and cancels rows whose state is no longer approved.
type Reconciler struct {
	licenses    license.Repository
	ledger      domain.Repository
	syncer      *Syncer
	lock        Lock
	jobs        JobRecorder
	syncMetrics SyncFailureRecorder
	now         func() time.Time
	logger      zerolog.Logger
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Licenses == nil || params.Ledger == nil || params.Syncer == nil {
		return nil, errors.New("licenses, ledger and syncer are required")
	}
	return &Reconciler{
		licenses:    params.Licenses,
		ledger:      params.Ledger,
		syncer:      params.Syncer,
		lock:        params.Lock,
		jobs:        params.Jobs,
		syncMetrics: params.SyncMetrics,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      params.Logger.With().Str("service", "reconciler").Logger(),
	}, nil
}

// Run executes one reconciliation pass. Per-state failures are aggregated and do not stop
// the pass.
func (r *Reconciler) Run(ctx context.Context) (result ReconcileResult, err error) {
	if r.lock != nil {
		locked, lockErr := r.lock.Acquire(ctx)
		if lockErr != nil {
			return result, fmt.Errorf("lock acquire: %w", lockErr)
		}
		if !locked {
			r.logger.Info().Msg("another reconciler is running; skipping")
			result.Skipped = true
			return result, nil
		}
		defer func() {
			if relErr := r.lock.Release(ctx); relErr != nil {
				r.logger.Error().Err(relErr).Msg("failed to release reconcile lock")
			}
		}()
	}

	start := time.Now()
	defer func() {
		r.record(time.Since(start), err)
	}()

	expired, err := r.ledger.MarkExpired(ctx, r.now())
	if err != nil {
		return result, fmt.Errorf("mark expired: %w", err)
	}
	result.Expired = expired

	var errs error
	for offset := 0; ; offset += reconcileBatchSize {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, multierr.Append(errs, ctxErr)
		}
		batch, listErr := r.licenses.ListSubmitted(ctx, reconcileBatchSize, offset)
		if listErr != nil {
			return result, multierr.Append(errs, fmt.Errorf("list submitted: %w", listErr))
		}
		for _, req := range batch {
			for _, state := range req.States {
				if req.StateStatus(state).Status != license.StatusApproved {
					continue
				}
				if _, syncErr := r.syncer.SyncFromTags(ctx, req, state); syncErr != nil {
					if errors.Is(syncErr, ErrIncompleteApproval) {
						r.logger.Warn().Int64("license_id", req.ID).Str("state", state).Msg("approved state without dates; skipped")
						continue
					}
					result.Failed++
					if r.syncMetrics != nil {
						r.syncMetrics.IncSyncFailure(state)
					}
					errs = multierr.Append(errs, syncErr)
					continue
				}
				result.Synced++
			}
			canceled, cancelErr := r.cancelStale(ctx, req)
			result.Canceled += canceled
			errs = multierr.Append(errs, cancelErr)
		}
		if len(batch) < reconcileBatchSize {
			break
		}
	}

	r.logger.Info().
		Int64("expired", result.Expired).
		Int("synced", result.Synced).
		Int("canceled", result.Canceled).
		Int("failed", result.Failed).
		Msg("ledger reconciliation complete")
	return result, errs
}

// cancelStale marks ledger rows of req canceled when their state left the request or is
// no longer approved.
func (r *Reconciler) cancelStale(ctx context.Context, req *license.Request) (int, error) {
	entries, err := r.ledger.ListByRequest(ctx, req.ID)
	if err != nil {
		return 0, fmt.Errorf("list ledger of %d: %w", req.ID, err)
	}
	n := 0
	for _, e := range entries {
		if e.Status == domain.StatusCanceled {
			continue
		}
		if req.HasState(e.State) && req.StateStatus(e.State).Status == license.StatusApproved {
			continue
		}
		e.Status = domain.StatusCanceled
		e.UpdatedAt = r.now()
		if err := r.ledger.Upsert(ctx, e); err != nil {
			return n, fmt.Errorf("cancel ledger %d/%s: %w", req.ID, e.State, err)
		}
		r.logger.Warn().Int64("license_id", req.ID).Str("state", e.State).Msg("ledger row canceled; state no longer approved")
		n++
	}
	return n, nil
}

// Loop runs the reconciler every interval until ctx is done.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				r.logger.Error().Err(err).Msg("ledger reconciliation failed")
			}
		}
	}
}

func (r *Reconciler) record(d time.Duration, err error) {
	if r.jobs == nil {
		return
	}
	r.jobs.ObserveDuration(ReconcileJobName, d)
	if err != nil {
		r.jobs.IncFailure(ReconcileJobName)
		return
	}
	r.jobs.IncSuccess(ReconcileJobName)
}
