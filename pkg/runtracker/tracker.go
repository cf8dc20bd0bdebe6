package runtracker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker provides thread-safe management of run state. It is the
// central store queried by the monitoring API endpoints.
type Tracker struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	logger *slog.Logger

	startedAt time.Time
	version   string
}

// NewTracker creates a new run tracker.
func NewTracker(logger *slog.Logger, version string) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	return &Tracker{
		runs:      make(map[string]*Run),
		logger:    logger,
		startedAt: time.Now(),
		version:   version,
	}
}

// StartedAt returns the time the tracker was created.
func (t *Tracker) StartedAt() time.Time { return t.startedAt }

// Version returns the engine version string reported on every run.
func (t *Tracker) Version() string { return t.version }

// UptimeSeconds returns seconds since the tracker was created.
func (t *Tracker) UptimeSeconds() float64 {
	return time.Since(t.startedAt).Seconds()
}

// StartRun creates a new Run in PENDING status and returns its run_id.
func (t *Tracker) StartRun(datasetID, strategyID, presetID string, totalBars int) string {
	runID := uuid.NewString()
	run := &Run{
		RunID:         runID,
		DatasetID:     datasetID,
		StrategyID:    strategyID,
		PresetID:      presetID,
		EngineVersion: t.version,
		Status:        StatusPending,
		StartedAt:     time.Now(),
		TotalBars:     totalBars,
	}

	t.mu.Lock()
	t.runs[runID] = run
	t.mu.Unlock()

	t.logger.Info("run created", "run_id", runID, "dataset_id", datasetID, "strategy_id", strategyID)
	return runID
}

// MarkRunning transitions a run from PENDING to RUNNING.
func (t *Tracker) MarkRunning(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		t.logger.Warn("MarkRunning: run not found", "run_id", runID)
		return
	}
	run.Status = StatusRunning
}

// UpdateProgress records how many bars have been processed so far.
func (t *Tracker) UpdateProgress(runID string, processedBars int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		return
	}
	run.ProcessedBars = processedBars
}

// MarkCompleted transitions a run to COMPLETED, recording trade count and
// any warnings collected during the run.
func (t *Tracker) MarkCompleted(runID string, tradesCount int, warnings []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		t.logger.Warn("MarkCompleted: run not found", "run_id", runID)
		return
	}
	now := time.Now()
	run.Status = StatusCompleted
	run.CompletedAt = &now
	run.TradesCount = tradesCount
	run.Warnings = warnings
	run.ProcessedBars = run.TotalBars
	t.logger.Info("run completed", "run_id", runID, "trades", tradesCount, "warnings", len(warnings))
}

// MarkFailed transitions a run to FAILED with the given error message.
func (t *Tracker) MarkFailed(runID string, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		t.logger.Warn("MarkFailed: run not found", "run_id", runID)
		return
	}
	now := time.Now()
	run.Status = StatusFailed
	run.CompletedAt = &now
	run.ErrorMessage = errMsg
	t.logger.Warn("run failed", "run_id", runID, "error", errMsg)
}

// MarkCancelled transitions a run to CANCELLED.
func (t *Tracker) MarkCancelled(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		t.logger.Warn("MarkCancelled: run not found", "run_id", runID)
		return
	}
	now := time.Now()
	run.Status = StatusCancelled
	run.CompletedAt = &now
	t.logger.Info("run cancelled", "run_id", runID)
}

// Rerun clears a terminal run's progress/trades/warnings and resets it to
// PENDING, for the rerun operation spec.md §6 describes.
func (t *Tracker) Rerun(runID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok || !run.IsTerminal() {
		return false
	}
	run.Status = StatusPending
	run.StartedAt = time.Now()
	run.CompletedAt = nil
	run.ProcessedBars = 0
	run.TradesCount = 0
	run.Warnings = nil
	run.ErrorMessage = ""
	return true
}

// GetRun returns a copy of the run with the given ID, or nil if not found.
func (t *Tracker) GetRun(runID string) *Run {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[runID]
	if !ok {
		return nil
	}
	cp := *run
	return &cp
}

// ListRuns returns a snapshot of all runs, optionally filtered by status,
// newest first.
func (t *Tracker) ListRuns(statusFilter string, limit int) []*Run {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*Run, 0, len(t.runs))
	for _, run := range t.runs {
		if statusFilter != "" && string(run.Status) != statusFilter {
			continue
		}
		cp := *run
		result = append(result, &cp)
	}

	for i := 0; i < len(result); i++ {
		for j := i + 1; j < len(result); j++ {
			if result[j].StartedAt.After(result[i].StartedAt) {
				result[i], result[j] = result[j], result[i]
			}
		}
	}

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
