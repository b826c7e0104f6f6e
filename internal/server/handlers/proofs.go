package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/powdr-labs/proverd/internal/server/middleware"
	"github.com/powdr-labs/proverd/pkg/jobregistry"
)

const defaultLogLines = 200

// ProofHandler serves the proof job lifecycle endpoints backed by the
// in-memory job registry.
type ProofHandler struct {
	registry     *jobregistry.Registry
	logger       *zap.Logger
	onJobStarted func()
}

func NewProofHandler(registry *jobregistry.Registry, logger *zap.Logger) *ProofHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProofHandler{registry: registry, logger: logger}
}

// OnJobStarted registers a callback fired once per spawned job, used to feed
// the jobs-started counter.
func (h *ProofHandler) OnJobStarted(fn func()) {
	h.onJobStarted = fn
}

type startProofRequest struct {
	ProofUUID string `json:"proof_uuid"`
}

// StartProof serves POST /start_proof: 202 when a job is spawned, 200 when
// one is already running for the same id.
func (h *ProofHandler) StartProof(w http.ResponseWriter, r *http.Request) {
	var req startProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest,
			"VALIDATION_ERROR", "invalid request body: "+err.Error(), nil)
		return
	}
	if req.ProofUUID == "" {
		middleware.WriteError(w, r, http.StatusBadRequest,
			"VALIDATION_ERROR", "proof_uuid is required", nil)
		return
	}

	job, started, err := h.registry.StartOrGet(req.ProofUUID)
	if err != nil {
		code := "INTERNAL_ERROR"
		if errors.Is(err, jobregistry.ErrScriptNotFound) {
			h.logger.Error("prove script missing", zap.Error(err))
		} else {
			h.logger.Error("failed to start proof job",
				zap.String("proof_uuid", req.ProofUUID), zap.Error(err))
		}
		middleware.WriteError(w, r, http.StatusInternalServerError, code, err.Error(), nil)
		return
	}

	if !started {
		writeJSON(w, http.StatusOK, map[string]any{
			"message":     "job already running",
			"proof_uuid":  job.ID,
			"pid":         job.PID,
			"stdout_path": job.StdoutPath,
			"stderr_path": job.StderrPath,
		})
		return
	}

	if h.onJobStarted != nil {
		h.onJobStarted()
	}
	h.logger.Info("proof job started",
		zap.String("proof_uuid", job.ID),
		zap.Int("pid", job.PID),
		zap.String("job_dir", job.Dir))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":    "job started",
		"proof_uuid": job.ID,
		"pid":        job.PID,
		"job_dir":    job.Dir,
	})
}

type proofStateResponse struct {
	Status          jobregistry.Status `json:"status"`
	NumInstructions int64              `json:"num_instructions"`
	E2ELatencyMS    *int64             `json:"e2e_latency_ms"`
}

// ProofState serves GET /proof_state/{proof_uuid}.
func (h *ProofHandler) ProofState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "proof_uuid")
	job, err := h.registry.Get(id)
	if err != nil {
		middleware.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "job not found", nil)
		return
	}

	metrics := job.Metrics()
	writeJSON(w, http.StatusOK, proofStateResponse{
		Status:          job.Status(),
		NumInstructions: metrics.NumInstructions,
		E2ELatencyMS:    metrics.E2ELatencyMS,
	})
}

// Logs serves GET /logs?proof_uuid=...&n=... with the captured stream tails.
func (h *ProofHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("proof_uuid")
	if id == "" {
		middleware.WriteError(w, r, http.StatusBadRequest,
			"VALIDATION_ERROR", "proof_uuid query parameter is required", nil)
		return
	}

	n := defaultLogLines
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			middleware.WriteError(w, r, http.StatusBadRequest,
				"VALIDATION_ERROR", "n must be a non-negative integer", nil)
			return
		}
		n = parsed
	}

	job, err := h.registry.Get(id)
	if err != nil {
		middleware.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "job not found", nil)
		return
	}

	stdout, err := jobregistry.TailLines(job.StdoutPath, n)
	if err != nil {
		middleware.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
		return
	}
	stderr, err := jobregistry.TailLines(job.StderrPath, n)
	if err != nil {
		middleware.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stdout": stdout,
		"stderr": stderr,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
