// Package api provides a minimal HTTP CRUD-lite surface over run
// lifecycle state: create, inspect, list, cancel, and rerun backtest
// runs. It is not a complete relational CRUD layer over every table
// persistence manages — just enough transport to exercise the domain
// stack end to end.
//
// Endpoints:
//
//	GET  /api/v1/status              - service health check
//	GET  /api/v1/runs                - list runs (optional status/limit filters)
//	POST /api/v1/runs                - create a run (PENDING)
//	GET  /api/v1/runs/{run_id}       - run detail
//	POST /api/v1/runs/{run_id}/cancel - request cancellation of a running run
//	POST /api/v1/runs/{run_id}/rerun  - reset a terminal run back to PENDING
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/algoforge/backtest/pkg/runtracker"
)

// Canceller is implemented by whatever is driving an in-flight engine.Run,
// so HandleCancelRun can request cooperative cancellation without the api
// package depending on pkg/engine directly.
type Canceller interface {
	RequestCancel(runID string) bool
}

// Server holds dependencies for the API handlers.
type Server struct {
	Tracker   *runtracker.Tracker
	Canceller Canceller
	Logger    *slog.Logger
}

// NewServer creates a new API server.
func NewServer(tracker *runtracker.Tracker, canceller Canceller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Tracker: tracker, Canceller: canceller, Logger: logger}
}

// RegisterRoutes registers all API routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/status", s.HandleStatus)
	mux.HandleFunc("GET /api/v1/runs", s.HandleListRuns)
	mux.HandleFunc("POST /api/v1/runs", s.HandleCreateRun)
	mux.HandleFunc("GET /api/v1/runs/{run_id}", s.HandleGetRun)
	mux.HandleFunc("POST /api/v1/runs/{run_id}/cancel", s.HandleCancelRun)
	mux.HandleFunc("POST /api/v1/runs/{run_id}/rerun", s.HandleRerun)
}

// ---------------------------------------------------------------------------
// Request/response types
// ---------------------------------------------------------------------------

type statusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version"`
}

type createRunRequest struct {
	DatasetID  string `json:"dataset_id"`
	StrategyID string `json:"strategy_id"`
	PresetID   string `json:"preset_id"`
	TotalBars  int    `json:"total_bars"`
}

type runResponse struct {
	RunID                     string   `json:"run_id"`
	DatasetID                 string   `json:"dataset_id"`
	StrategyID                string   `json:"strategy_id"`
	PresetID                  string   `json:"preset_id"`
	EngineVersion             string   `json:"engine_version"`
	Status                    string   `json:"status"`
	StartedAt                 string   `json:"started_at"`
	CompletedAt               *string  `json:"completed_at"`
	ProgressPercent           int      `json:"progress_percent"`
	ProcessedBars             int      `json:"processed_bars"`
	TotalBars                 int      `json:"total_bars"`
	TradesCount               int      `json:"trades_count"`
	Warnings                  []string `json:"warnings,omitempty"`
	ErrorMessage              string   `json:"error_message,omitempty"`
	ElapsedTimeSeconds        float64  `json:"elapsed_time_seconds"`
	EstimatedRemainingSeconds float64  `json:"estimated_remaining_seconds"`
	ETACompletion             *string  `json:"eta_completion"`
}

type runListResponse struct {
	Runs      []runResponse `json:"runs"`
	TotalRuns int           `json:"total_runs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type actionResponse struct {
	RunID string `json:"run_id"`
	OK    bool   `json:"ok"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// HandleStatus returns overall service health and uptime.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:        "healthy",
		UptimeSeconds: s.Tracker.UptimeSeconds(),
		Version:       s.Tracker.Version(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleListRuns returns runs, optionally filtered by status and capped
// at limit (default 100).
func (s *Server) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	statusFilter := q.Get("status")
	limit := 100
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs := s.Tracker.ListRuns(statusFilter, limit)
	items := make([]runResponse, len(runs))
	for i, run := range runs {
		items[i] = buildRunResponse(run)
	}
	writeJSON(w, http.StatusOK, runListResponse{Runs: items, TotalRuns: len(items)})
}

// HandleCreateRun starts tracking a new run in PENDING status. Actually
// driving the engine.Run invocation is the caller's job (typically
// pkg/batch); this only registers the run so its progress is visible.
func (s *Server) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.DatasetID == "" || req.StrategyID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "dataset_id and strategy_id are required"})
		return
	}

	runID := s.Tracker.StartRun(req.DatasetID, req.StrategyID, req.PresetID, req.TotalBars)
	run := s.Tracker.GetRun(runID)
	writeJSON(w, http.StatusCreated, buildRunResponse(run))
}

// HandleGetRun returns detailed status of a single run.
func (s *Server) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	run := s.Tracker.GetRun(runID)
	if run == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, buildRunResponse(run))
}

// HandleCancelRun requests cooperative cancellation of a running run via
// the registered Canceller. Unknown runs yield 404 and terminal runs 409;
// otherwise the reply is 202, with ok=false when no Canceller is set or
// the Canceller does not find the run in flight.
func (s *Server) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	run := s.Tracker.GetRun(runID)
	if run == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	if run.IsTerminal() {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "run already in a terminal state"})
		return
	}
	ok := s.Canceller != nil && s.Canceller.RequestCancel(runID)
	writeJSON(w, http.StatusAccepted, actionResponse{RunID: runID, OK: ok})
}

// HandleRerun resets a terminal run back to PENDING, clearing its
// progress/trades/warnings per spec.md §6's rerun semantics.
func (s *Server) HandleRerun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	ok := s.Tracker.Rerun(runID)
	if !ok {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "run not found or not in a terminal state"})
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{RunID: runID, OK: true})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", "error", err)
	}
}

func buildRunResponse(run *runtracker.Run) runResponse {
	resp := runResponse{
		RunID:                     run.RunID,
		DatasetID:                 run.DatasetID,
		StrategyID:                run.StrategyID,
		PresetID:                  run.PresetID,
		EngineVersion:             run.EngineVersion,
		Status:                    string(run.Status),
		StartedAt:                 run.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
		CompletedAt:               formatOptionalTime(run.CompletedAt),
		ProgressPercent:           run.ProgressPercent(),
		ProcessedBars:             run.ProcessedBars,
		TotalBars:                 run.TotalBars,
		TradesCount:               run.TradesCount,
		Warnings:                  run.Warnings,
		ErrorMessage:              run.ErrorMessage,
		ElapsedTimeSeconds:        run.ElapsedSeconds(),
		EstimatedRemainingSeconds: run.EstimatedRemainingSeconds(),
		ETACompletion:             formatOptionalTime(run.ETACompletion()),
	}
	return resp
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format("2006-01-02T15:04:05Z")
	return &s
}
