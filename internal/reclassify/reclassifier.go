// Package reclassify keeps the stored lifecycle group of indexed listings in
// step with the passage of time.
package reclassify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/internal/domain"
	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/listings/internal/lock"
	"github.com/jonesrussell/north-cloud/listings/internal/metrics"
)

// ErrPassFailed is returned by RunOnce when at least one pass failed.
var ErrPassFailed = errors.New("reclassify pass failed")

// Run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomePartial   = "partial"
	OutcomeSkipped   = "skipped"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// IndexStore applies one reclassify pass.
type IndexStore interface {
	ApplyPass(ctx context.Context, b lifecycle.Bounds, target lifecycle.Group) (*domain.PassResult, error)
}

// Locker serializes runs. Acquire returns lock.ErrLockHeld when another run
// is in flight.
type Locker interface {
	Acquire(ctx context.Context) (func(context.Context) error, error)
}

// Params holds the dependencies of a Reclassifier.
type Params struct {
	Index      IndexStore
	Classifier *lifecycle.Classifier
	// Locker is optional; without it runs are not serialized.
	Locker      Locker
	Metrics     *metrics.Metrics
	Logger      logger.Logger
	PassTimeout time.Duration
}

// Reclassifier runs the four reclassify passes.
type Reclassifier struct {
	index       IndexStore
	classifier  *lifecycle.Classifier
	locker      Locker
	metrics     *metrics.Metrics
	log         logger.Logger
	passTimeout time.Duration
}

// New creates a Reclassifier.
func New(p Params) *Reclassifier {
	return &Reclassifier{
		index:       p.Index,
		classifier:  p.Classifier,
		locker:      p.Locker,
		metrics:     p.Metrics,
		log:         p.Logger,
		passTimeout: p.PassTimeout,
	}
}

// PassReport is the outcome of one pass.
type PassReport struct {
	Group  string             `json:"group"`
	Result *domain.PassResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Report is the outcome of one run.
type Report struct {
	StartedAt  time.Time        `json:"started_at"`
	DurationMs int64            `json:"duration_ms"`
	Bounds     lifecycle.Bounds `json:"bounds"`
	Skipped    bool             `json:"skipped"`
	Passes     []PassReport     `json:"passes"`
	Updated    int64            `json:"updated"`
	Conflicts  int64            `json:"version_conflicts"`
	Failed     int              `json:"failed_passes"`
}

// RunOnce runs every pass against a single bounds snapshot. A failed pass is
// logged and counted; the remaining passes still run. Cancelling ctx stops
// the passes not yet started.
func (r *Reclassifier) RunOnce(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{StartedAt: started.UTC()}

	release, skip := r.acquire(ctx)
	if skip {
		report.Skipped = true
		r.metrics.RunFinished(OutcomeSkipped, time.Since(started))
		return report, nil
	}
	if release != nil {
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				r.log.Warn("Failed to release reclassify lock", logger.Error(err))
			}
		}()
	}

	bounds, err := r.classifier.Bounds()
	if err != nil {
		r.metrics.RunFinished(OutcomeError, time.Since(started))
		return nil, fmt.Errorf("compute day bounds: %w", err)
	}
	report.Bounds = bounds

	log := r.log.With(
		logger.Int64("now", bounds.Now),
		logger.Int64("day_start", bounds.DayStart),
		logger.Int64("day_end", bounds.DayEnd),
		logger.String("zone", bounds.Zone),
	)
	log.Debug("Reclassify run started")

	var runErr error
	for _, group := range lifecycle.Groups {
		if ctxErr := ctx.Err(); ctxErr != nil {
			runErr = ctxErr
			break
		}
		pass := r.runPass(ctx, log, bounds, group)
		report.Passes = append(report.Passes, pass)
		if pass.Error != "" {
			report.Failed++
			continue
		}
		report.Updated += pass.Result.Updated
		report.Conflicts += pass.Result.Conflicts
	}

	elapsed := time.Since(started)
	report.DurationMs = elapsed.Milliseconds()

	outcome := OutcomeCompleted
	switch {
	case runErr != nil:
		outcome = OutcomeCancelled
	case report.Failed > 0:
		outcome = OutcomePartial
		runErr = fmt.Errorf("%w: %d of %d passes", ErrPassFailed, report.Failed, len(lifecycle.Groups))
	}
	r.metrics.RunFinished(outcome, elapsed)

	log.Info("Reclassify run finished",
		logger.String("outcome", outcome),
		logger.Int64("updated", report.Updated),
		logger.Int64("version_conflicts", report.Conflicts),
		logger.Int("failed_passes", report.Failed),
		logger.Duration("duration", elapsed),
	)

	return report, runErr
}

// acquire returns skip=true when another run holds the lock. A lock that
// cannot be reached is logged and the run proceeds unserialized.
func (r *Reclassifier) acquire(ctx context.Context) (func(context.Context) error, bool) {
	if r.locker == nil {
		return nil, false
	}

	release, err := r.locker.Acquire(ctx)
	switch {
	case err == nil:
		return release, false
	case errors.Is(err, lock.ErrLockHeld):
		r.log.Info("Reclassify run already in flight, skipping")
		return nil, true
	default:
		r.log.Warn("Reclassify lock unavailable, running without it", logger.Error(err))
		return nil, false
	}
}

func (r *Reclassifier) runPass(ctx context.Context, log logger.Logger, b lifecycle.Bounds, group lifecycle.Group) PassReport {
	passCtx := ctx
	if r.passTimeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, r.passTimeout)
		defer cancel()
	}

	report := PassReport{Group: group.String()}
	result, err := r.index.ApplyPass(passCtx, b, group)
	if err != nil {
		report.Error = err.Error()
		r.metrics.PassFailed(group.String())
		log.Error("Reclassify pass failed",
			logger.String("group", group.String()),
			logger.Error(err),
		)
		return report
	}

	report.Result = result
	r.metrics.PassFinished(group.String(), result.Updated, result.Conflicts)

	if len(result.Failures) > 0 {
		log.Warn("Reclassify pass reported document failures",
			logger.String("group", group.String()),
			logger.Strings("failures", result.Failures),
		)
	}
	log.Debug("Reclassify pass finished",
		logger.String("group", group.String()),
		logger.Int64("selected", result.Total),
		logger.Int64("updated", result.Updated),
		logger.Int64("version_conflicts", result.Conflicts),
	)
	return report
}
