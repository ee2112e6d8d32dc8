// Package server exposes the engine's request/response surface over HTTP.
// The engine stays collaborator-agnostic: this is a thin boundary that
// parses requests, runs cycles, and serializes records.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veldt-labs/vigil/baseline"
	"github.com/veldt-labs/vigil/config"
	"github.com/veldt-labs/vigil/orchestrator"
	"github.com/veldt-labs/vigil/telemetry"
	"github.com/veldt-labs/vigil/types"
)

// Server serves the assessment API
type Server struct {
	orch     *orchestrator.Orchestrator
	profiles map[string]config.Profile
	async    bool
	logger   *telemetry.Logger
}

// New creates a server over an orchestrator and the configured profiles
func New(orch *orchestrator.Orchestrator, profiles map[string]config.Profile, async bool) *Server {
	return &Server{
		orch:     orch,
		profiles: profiles,
		async:    async,
		logger:   telemetry.NewLogger("server"),
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/assessments", s.handleSubmit)
	mux.HandleFunc("GET /v1/reports/{subject}", s.handleReport)
	mux.HandleFunc("GET /v1/baselines/{subject}", s.handleBaseline)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if telemetry.PrometheusRegistry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(
			telemetry.PrometheusRegistry,
			promhttp.HandlerOpts{},
		))
	}

	return mux
}

// submitRequest is the POST /v1/assessments body
type submitRequest struct {
	SubjectID        string              `json:"subject_id"`
	Profile          string              `json:"profile,omitempty"`
	Window           string              `json:"window,omitempty"`
	CrisisIndicators []string            `json:"crisis_indicators,omitempty"`
	Observations     []types.Observation `json:"observations,omitempty"`
}

type submitAccepted struct {
	CycleID string `json:"cycle_id"`
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "decode", err)
		return
	}
	if req.SubjectID == "" {
		s.writeError(w, http.StatusBadRequest, "validate", fmt.Errorf("subject_id is required"))
		return
	}

	profile, err := s.resolveProfile(req.Profile)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "validate", err)
		return
	}

	window, err := parseWindow(req.Window)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "validate", err)
		return
	}

	cycleReq := orchestrator.CycleRequest{
		SubjectID:        req.SubjectID,
		Profile:          profile,
		Window:           window,
		CrisisIndicators: req.CrisisIndicators,
	}

	// Submissions may carry the observations directly instead of relying
	// on a configured snapshot source
	if len(req.Observations) > 0 {
		cycleReq.Snapshot = &types.Snapshot{
			SubjectID:    req.SubjectID,
			TakenAt:      time.Now(),
			Window:       window,
			Observations: req.Observations,
		}
	}

	if s.async {
		cycleReq.CycleID = uuid.NewString()
		go s.runDetached(cycleReq)
		s.writeJSON(w, http.StatusAccepted, submitAccepted{CycleID: cycleReq.CycleID})
		return
	}

	result, err := s.orch.RunCycle(r.Context(), cycleReq)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, orchestrator.ErrCycleCancelled) {
			status = http.StatusRequestTimeout
		}
		// A degraded assessment travels with its error
		s.writeJSON(w, status, struct {
			errorResponse
			Result *orchestrator.CycleResult `json:"result,omitempty"`
		}{
			errorResponse: errorResponse{Error: err.Error(), Stage: "cycle"},
			Result:        result,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// asyncCycleTimeout bounds detached cycles so a stuck snapshot source
// cannot leak goroutines forever
const asyncCycleTimeout = 2 * time.Minute

// runDetached runs an async submission outside the request lifecycle
func (s *Server) runDetached(req orchestrator.CycleRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), asyncCycleTimeout)
	defer cancel()
	if _, err := s.orch.RunCycle(ctx, req); err != nil {
		s.logger.Error().
			Err(err).
			Str("subject_id", req.SubjectID).
			Str("cycle_id", req.CycleID).
			Msg("async assessment cycle failed")
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	subjectID := r.PathValue("subject")

	window, err := parseWindow(r.URL.Query().Get("window"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "validate", err)
		return
	}

	assessments, err := s.orch.Store().History(subjectID, window)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "history", err)
		return
	}
	interventions, err := s.orch.Store().Interventions(subjectID, window)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "history", err)
		return
	}

	if len(assessments) == 0 {
		s.writeError(w, http.StatusNotFound, "history", fmt.Errorf("no assessments for subject %s", subjectID))
		return
	}

	s.writeJSON(w, http.StatusOK, struct {
		SubjectID     string                     `json:"subject_id"`
		Assessments   []types.Assessment         `json:"assessments"`
		Interventions []types.InterventionRecord `json:"interventions"`
	}{subjectID, assessments, interventions})
}

func (s *Server) handleBaseline(w http.ResponseWriter, r *http.Request) {
	subjectID := r.PathValue("subject")

	b, err := s.orch.Tracker().Get(subjectID)
	if err != nil {
		if errors.Is(err, baseline.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "baseline", err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "baseline", err)
		return
	}

	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) resolveProfile(name string) (config.Profile, error) {
	if name == "" {
		if p, ok := s.profiles["default"]; ok {
			return p, nil
		}
		return config.DefaultProfile("default"), nil
	}
	p, ok := s.profiles[name]
	if !ok {
		return config.Profile{}, fmt.Errorf("unknown profile %s", name)
	}
	return p, nil
}

func parseWindow(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	window, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", raw, err)
	}
	if window < 0 {
		return 0, fmt.Errorf("window cannot be negative")
	}
	return window, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, stage string, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Stage: stage})
}
