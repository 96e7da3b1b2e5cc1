package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andre-fig/backoffice/db"
	"github.com/andre-fig/backoffice/services"
)

// ErrCycleInProgress is returned when another cycle holds the guard
var ErrCycleInProgress = errors.New("reconciliation cycle already in progress")

// RedirectProcessor applies the activation and deactivation sequences
type RedirectProcessor interface {
	ActivateDue(ctx context.Context, rec db.ScheduledRedirect) (bool, error)
	DeactivateDue(ctx context.Context, rec db.ScheduledRedirect) (bool, error)
}

// RedirectWorkerOptions tunes the reconciliation loop
type RedirectWorkerOptions struct {
	Interval    time.Duration
	Concurrency int
	ItemTimeout time.Duration
	Locker      Locker // optional, for multi-instance deployments
	Now         func() time.Time
}

// ItemFailure records one record that could not be processed in a cycle
type ItemFailure struct {
	RedirectID string `json:"redirectId"`
	Pass       string `json:"pass"` // activation or deactivation
	Step       string `json:"step,omitempty"`
	Error      string `json:"error"`
}

// CycleReport summarizes one reconciliation cycle
type CycleReport struct {
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Activated  int           `json:"activated"`
	Completed  int           `json:"completed"`
	Skipped    int           `json:"skipped"`
	Failures   []ItemFailure `json:"failures"`
}

// RedirectWorker periodically activates due scheduled redirects and
// completes expired active ones
type RedirectWorker struct {
	Processor RedirectProcessor
	Store     services.RedirectStore
	Options   RedirectWorkerOptions
	Logger    *zap.Logger

	running sync.Mutex

	reportMu   sync.RWMutex
	lastReport *CycleReport
}

func NewRedirectWorker(processor RedirectProcessor, store services.RedirectStore, opts RedirectWorkerOptions, logger *zap.Logger) *RedirectWorker {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectWorker{
		Processor: processor,
		Store:     store,
		Options:   opts,
		Logger:    logger,
	}
}

// StartRedirectWorker runs a cycle immediately and then on every tick until ctx is done
func (w *RedirectWorker) StartRedirectWorker(ctx context.Context) {
	w.Logger.Info("redirect worker started", zap.Duration("interval", w.Options.Interval))

	ticker := time.NewTicker(w.Options.Interval)
	defer ticker.Stop()

	w.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("redirect worker stopped")
			return
		case <-ticker.C:
			w.runLogged(ctx)
		}
	}
}

func (w *RedirectWorker) runLogged(ctx context.Context) {
	report, err := w.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			w.Logger.Info("skipping tick, previous cycle still running")
			return
		}
		w.Logger.Error("reconciliation cycle failed", zap.Error(err))
		return
	}
	w.Logger.Info("reconciliation cycle finished",
		zap.Int("activated", report.Activated),
		zap.Int("completed", report.Completed),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
}

// RunCycle performs one activation pass followed by one deactivation pass.
// Per-record failures are collected in the report, the returned error is
// reserved for failures to list records or acquire the guard.
func (w *RedirectWorker) RunCycle(ctx context.Context) (CycleReport, error) {
	if !w.running.TryLock() {
		return CycleReport{}, ErrCycleInProgress
	}
	defer w.running.Unlock()

	if w.Options.Locker != nil {
		release, ok, err := w.Options.Locker.TryLock(ctx)
		if err != nil {
			return CycleReport{}, err
		}
		if !ok {
			return CycleReport{}, ErrCycleInProgress
		}
		defer release()
	}

	col := &collector{report: CycleReport{StartedAt: w.Options.Now().UTC()}}
	now := col.report.StartedAt

	due, err := w.Store.ListDueForActivation(ctx, now)
	if err != nil {
		return CycleReport{}, err
	}
	w.process(ctx, due, "activation", w.Processor.ActivateDue, col)

	active, err := w.Store.ListByStatus(ctx, db.RedirectStatusActive)
	if err != nil {
		col.finish(w.Options.Now)
		w.storeReport(col.report)
		return col.report, err
	}
	expired := make([]db.ScheduledRedirect, 0, len(active))
	for _, rec := range active {
		if rec.IsDueForCompletion(now) {
			expired = append(expired, rec)
		}
	}
	w.process(ctx, expired, "deactivation", w.Processor.DeactivateDue, col)

	col.finish(w.Options.Now)
	w.storeReport(col.report)
	return col.report, nil
}

// process fans records out over a bounded pool. Each record runs its own
// sequence under its own timeout, errors never cancel siblings.
func (w *RedirectWorker) process(ctx context.Context, records []db.ScheduledRedirect, pass string,
	fn func(context.Context, db.ScheduledRedirect) (bool, error), col *collector) {
	if len(records) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(w.Options.Concurrency)

	for _, rec := range records {
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, w.Options.ItemTimeout)
			defer cancel()

			done, err := fn(itemCtx, rec)
			col.record(rec.ID, pass, done, err)
			if err != nil {
				w.Logger.Warn("redirect will be retried next cycle",
					zap.String("redirect_id", rec.ID), zap.String("pass", pass), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// LastReport returns the most recent cycle report, or nil before the first cycle
func (w *RedirectWorker) LastReport() *CycleReport {
	w.reportMu.RLock()
	defer w.reportMu.RUnlock()
	if w.lastReport == nil {
		return nil
	}
	r := *w.lastReport
	r.Failures = append([]ItemFailure(nil), w.lastReport.Failures...)
	return &r
}

func (w *RedirectWorker) storeReport(r CycleReport) {
	w.reportMu.Lock()
	w.lastReport = &r
	w.reportMu.Unlock()
}

type collector struct {
	mu     sync.Mutex
	report CycleReport
}

func (c *collector) record(id, pass string, done bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case err != nil:
		failure := ItemFailure{RedirectID: id, Pass: pass, Error: err.Error()}
		var stepErr *services.StepError
		if errors.As(err, &stepErr) {
			failure.Step = stepErr.Step
		}
		c.report.Failures = append(c.report.Failures, failure)
	case !done:
		c.report.Skipped++
	case pass == "activation":
		c.report.Activated++
	default:
		c.report.Completed++
	}
}

func (c *collector) finish(now func() time.Time) {
	c.mu.Lock()
	c.report.FinishedAt = now().UTC()
	c.mu.Unlock()
}
