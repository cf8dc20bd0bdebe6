// Package runtracker provides in-memory tracking of back-test run progress
// and status. It is queried by the monitoring API so dashboards can
// display live run progress and ETA, and backs the run lifecycle a
// persistence layer later durably records.
package runtracker

import "time"

// RunStatus is the overall lifecycle state of a run: Pending, Running,
// then one terminal state (Completed, Failed, Cancelled). Rerun resets a
// terminal run back to Pending. Tracker's Mark* methods set the status
// they name without checking the current one, so they do not by
// themselves keep a terminal run from changing state.
type RunStatus string

const (
	StatusPending   RunStatus = "PENDING"
	StatusRunning   RunStatus = "RUNNING"
	StatusCompleted RunStatus = "COMPLETED"
	StatusFailed    RunStatus = "FAILED"
	StatusCancelled RunStatus = "CANCELLED"
)

// Run tracks the progress of one engine.Run invocation: one dataset,
// strategy, and preset combination.
type Run struct {
	RunID         string     `json:"run_id"`
	DatasetID     string     `json:"dataset_id"`
	StrategyID    string     `json:"strategy_id"`
	PresetID      string     `json:"preset_id"`
	EngineVersion string     `json:"engine_version"`
	Status        RunStatus  `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	ProcessedBars int        `json:"processed_bars"`
	TotalBars     int        `json:"total_bars"`
	TradesCount   int        `json:"trades_count"`
	Warnings      []string   `json:"warnings,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// ProgressPercent returns 0-100 completion based on processed/total bars.
func (r *Run) ProgressPercent() int {
	if r.TotalBars == 0 {
		return 0
	}
	return r.ProcessedBars * 100 / r.TotalBars
}

// ElapsedSeconds returns seconds since the run started, frozen at
// CompletedAt once the run reaches a terminal state.
func (r *Run) ElapsedSeconds() float64 {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt).Seconds()
	}
	return time.Since(r.StartedAt).Seconds()
}

// EstimatedRemainingSeconds projects remaining time from the current
// processing rate.
func (r *Run) EstimatedRemainingSeconds() float64 {
	if r.ProcessedBars == 0 || r.TotalBars == 0 {
		return 0
	}
	elapsed := r.ElapsedSeconds()
	perBar := elapsed / float64(r.ProcessedBars)
	remaining := r.TotalBars - r.ProcessedBars
	if remaining < 0 {
		remaining = 0
	}
	return perBar * float64(remaining)
}

// ETACompletion returns the estimated completion time, or nil if it
// cannot yet be estimated.
func (r *Run) ETACompletion() *time.Time {
	remaining := r.EstimatedRemainingSeconds()
	if remaining <= 0 {
		return nil
	}
	eta := time.Now().Add(time.Duration(remaining * float64(time.Second)))
	return &eta
}

// IsTerminal reports whether the run has reached a state that only a
// rerun can move it out of.
func (r *Run) IsTerminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
