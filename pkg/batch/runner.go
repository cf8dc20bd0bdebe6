// Package batch drives many independent backtest runs concurrently,
// bounded by a worker limit, and implements the cancellation surface
// pkg/api's HandleCancelRun depends on.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/algoforge/backtest/pkg/engine"
	"github.com/algoforge/backtest/pkg/metrics"
	"github.com/algoforge/backtest/pkg/observability"
	"github.com/algoforge/backtest/pkg/persistence"
	"github.com/algoforge/backtest/pkg/risk"
	"github.com/algoforge/backtest/pkg/runtracker"
	"github.com/algoforge/backtest/pkg/strategydsl"
	"github.com/algoforge/backtest/pkg/types"
)

// Job is one run's inputs: an already-tracked run ID, its bar series, and
// the compiled strategy/risk manager to drive it.
type Job struct {
	RunID    string
	Bars     []types.Bar
	Strategy *strategydsl.Evaluator
	Risk     *risk.Manager
	Config   types.RunConfig
}

// Runner executes Jobs with bounded concurrency, updating a Tracker as
// each run progresses and persisting trades/metrics through a Persister.
// Store may be nil, in which case results are only reflected in Tracker.
type Runner struct {
	Tracker        *runtracker.Tracker
	Store          persistence.Persister
	Logger         *slog.Logger
	MaxConcurrency int

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	results map[string]engine.Result
}

// NewRunner constructs a Runner. maxConcurrency <= 0 means unbounded.
func NewRunner(tracker *runtracker.Tracker, store persistence.Persister, logger *slog.Logger, maxConcurrency int) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Tracker:        tracker,
		Store:          store,
		Logger:         logger,
		MaxConcurrency: maxConcurrency,
		cancels:        make(map[string]context.CancelFunc),
		results:        make(map[string]engine.Result),
	}
}

// Result returns the engine.Result recorded for runID, and false if none
// was recorded. A result is recorded only when the engine run finishes
// without error and without cancellation, and it is recorded before the
// trades and metrics are persisted, so a run whose persistence then fails
// is FAILED yet still has a result.
func (r *Runner) Result(runID string) (engine.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[runID]
	return res, ok
}

// RunAll drives every job to completion, returning only once all have
// finished (or been cancelled). A single job's engine/persistence error
// marks that run FAILED but does not abort the others.
func (r *Runner) RunAll(ctx context.Context, jobs []Job) error {
	g, gctx := errgroup.WithContext(ctx)
	if r.MaxConcurrency > 0 {
		g.SetLimit(r.MaxConcurrency)
	}
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			r.runOne(gctx, job)
			return nil
		})
	}
	return g.Wait()
}

// RequestCancel implements api.Canceller: it cancels the run's context if
// it is currently in flight, returning false if the run is not found
// among in-flight jobs (already terminal, or never started).
func (r *Runner) RequestCancel(runID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[runID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (r *Runner) registerCancel(runID string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.cancels[runID] = cancel
	r.mu.Unlock()
}

func (r *Runner) unregisterCancel(runID string) {
	r.mu.Lock()
	delete(r.cancels, runID)
	r.mu.Unlock()
}

func (r *Runner) runOne(ctx context.Context, job Job) {
	runCtx, cancel := context.WithCancel(ctx)
	r.registerCancel(job.RunID, cancel)
	defer func() {
		cancel()
		r.unregisterCancel(job.RunID)
	}()

	r.Tracker.MarkRunning(job.RunID)
	observability.RunsInFlight.Inc()
	defer observability.RunsInFlight.Dec()
	start := time.Now()

	lastDone := 0
	eng, err := engine.New(engine.Options{
		Config:   job.Config,
		Risk:     job.Risk,
		Strategy: job.Strategy,
		Logger:   r.Logger,
		Progress: func(done, total int) bool {
			r.Tracker.UpdateProgress(job.RunID, done)
			observability.BarsProcessed.Add(float64(done - lastDone))
			lastDone = done
			select {
			case <-runCtx.Done():
				return false
			default:
				return true
			}
		},
	})
	if err != nil {
		r.Tracker.MarkFailed(job.RunID, err.Error())
		observability.ObserveRunCompletion("failed", time.Since(start).Seconds(), 0, 0)
		return
	}

	result, err := eng.Run(runCtx, job.Bars)
	if err != nil {
		r.Tracker.MarkFailed(job.RunID, err.Error())
		observability.ObserveRunCompletion("failed", time.Since(start).Seconds(), 0, 0)
		return
	}
	if result.Cancelled {
		r.Tracker.MarkCancelled(job.RunID)
		observability.ObserveRunCompletion("cancelled", time.Since(start).Seconds(), len(result.Trades), len(result.Warnings))
		return
	}

	for _, trade := range result.Trades {
		for _, leg := range trade.Legs {
			observability.ObserveExit(string(leg.ExitType))
		}
	}

	r.mu.Lock()
	r.results[job.RunID] = result
	r.mu.Unlock()

	if r.Store != nil {
		if err := r.Store.SaveTrades(ctx, job.RunID, result.Trades); err != nil {
			r.Tracker.MarkFailed(job.RunID, err.Error())
			observability.ObserveRunCompletion("failed", time.Since(start).Seconds(), len(result.Trades), len(result.Warnings))
			return
		}
		m := metrics.Calculate(result.Trades)
		if err := r.Store.SaveMetrics(ctx, job.RunID, m); err != nil {
			r.Tracker.MarkFailed(job.RunID, err.Error())
			observability.ObserveRunCompletion("failed", time.Since(start).Seconds(), len(result.Trades), len(result.Warnings))
			return
		}
	}

	r.Tracker.MarkCompleted(job.RunID, len(result.Trades), result.Warnings)
	observability.ObserveRunCompletion("completed", time.Since(start).Seconds(), len(result.Trades), len(result.Warnings))
}
