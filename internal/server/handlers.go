package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/paceline-ai/stride/internal/model"
	"github.com/paceline-ai/stride/internal/runlog"
	"github.com/paceline-ai/stride/internal/workflow"
)

type handlers struct {
	router    *workflow.Router
	runLog    runlog.Store
	retriever HealthChecker
	logger    *slog.Logger
	version   string
	maxBody   int64
}

func newHandlers(cfg Config) *handlers {
	maxBody := cfg.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &handlers{
		router:    cfg.Router,
		runLog:    cfg.RunLog,
		retriever: cfg.Retriever,
		logger:    cfg.Logger,
		version:   cfg.Version,
		maxBody:   maxBody,
	}
}

// workflowResponse is the wire shape of a workflow result. The artifact is
// kind-tagged JSON so clients can dispatch without guessing.
type workflowResponse struct {
	Artifact json.RawMessage     `json:"artifact"`
	Verdict  model.SafetyVerdict `json:"verdict"`
	Evidence []model.Evidence    `json:"evidence"`
}

func toWorkflowResponse(result model.WorkflowResult) (workflowResponse, error) {
	artifact, err := model.MarshalArtifact(result.Artifact)
	if err != nil {
		return workflowResponse{}, err
	}
	return workflowResponse{
		Artifact: artifact,
		Verdict:  result.Verdict,
		Evidence: result.Evidence,
	}, nil
}

type planRequest struct {
	Profile model.RunnerProfile `json:"profile"`
}

func (h *handlers) handlePlan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.router.Handle(r.Context(), model.Request{
		Kind:    model.RequestGeneratePlan,
		Profile: req.Profile,
	})
	if err != nil {
		h.writeWorkflowError(w, r, err)
		return
	}
	h.writeResult(w, r, result)
}

type adjustRequest struct {
	Profile model.RunnerProfile      `json:"profile"`
	Plan    *model.TrainingPlan      `json:"plan"`
	Context *model.AdjustmentContext `json:"context"`
}

func (h *handlers) handleAdjust(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.router.Handle(r.Context(), model.Request{
		Kind:    model.RequestAdjustToday,
		Profile: req.Profile,
		Plan:    req.Plan,
		Context: req.Context,
	})
	if err != nil {
		h.writeWorkflowError(w, r, err)
		return
	}
	h.writeResult(w, r, result)
}

func (h *handlers) writeResult(w http.ResponseWriter, r *http.Request, result model.WorkflowResult) {
	resp, err := toWorkflowResponse(result)
	if err != nil {
		h.logger.Error("serialize workflow result", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to serialize result")
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// writeWorkflowError maps the workflow error taxonomy onto HTTP statuses.
func (h *handlers) writeWorkflowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrUnrecognizedRequestKind):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeUnrecognized, err.Error())
	case errors.Is(err, workflow.ErrIncompleteRequest):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, err.Error())
	case errors.Is(err, model.ErrDateOutOfPlanRange):
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeOutOfPlanRange, err.Error())
	case errors.Is(err, model.ErrIndexUnavailable),
		errors.Is(err, model.ErrGenerationTimeout),
		errors.Is(err, model.ErrGenerationRefused),
		errors.Is(err, model.ErrPlanGenerationFailed):
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUpstream, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; the status is best-effort.
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUpstream, "request cancelled")
	default:
		h.logger.Error("workflow failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "internal server error")
	}
}

// runLogEntryDTO is the wire shape of a run-log entry: the artifact stays
// raw JSON and the generator output is exposed as text.
type runLogEntryDTO struct {
	ID          uuid.UUID                `json:"id"`
	Seq         int64                    `json:"seq"`
	Timestamp   time.Time                `json:"timestamp"`
	RequestKind model.RequestKind        `json:"request_kind"`
	Profile     model.RunnerProfile      `json:"profile"`
	Context     *model.AdjustmentContext `json:"context,omitempty"`
	Evidence    []model.Evidence         `json:"evidence"`
	RawOutput   string                   `json:"raw_output,omitempty"`
	Verdict     model.SafetyVerdict      `json:"verdict"`
	Artifact    json.RawMessage          `json:"artifact"`
	ChainHash   string                   `json:"chain_hash"`
}

func (h *handlers) handleRunLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := runlog.Filter{Limit: 50}
	if kind := q.Get("kind"); kind != "" {
		filter.Kind = model.RequestKind(kind)
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid since timestamp, want RFC3339")
			return
		}
		filter.Since = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "limit must be in [1, 1000]")
			return
		}
		filter.Limit = n
	}

	entries, err := h.runLog.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("run log query failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "run log unavailable")
		return
	}

	out := make([]runLogEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, runLogEntryDTO{
			ID:          e.ID,
			Seq:         e.Seq,
			Timestamp:   e.Timestamp,
			RequestKind: e.RequestKind,
			Profile:     e.Profile,
			Context:     e.Context,
			Evidence:    e.Evidence,
			RawOutput:   string(e.RawOutput),
			Verdict:     e.Verdict,
			Artifact:    json.RawMessage(e.Artifact),
			ChainHash:   e.ChainHash,
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"entries": out, "count": len(out)})
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": h.version,
	}
	code := http.StatusOK
	if h.retriever != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.retriever.Healthy(ctx); err != nil {
			status["status"] = "degraded"
			status["retrieval"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status["retrieval"] = "ok"
		}
	}
	writeJSON(w, r, code, status)
}
