// Package workflow implements the orchestration layer: the Router entry
// point and the Planner and Adjuster nodes it dispatches to.
//
// Control flow is a fixed pipeline: Router -> {Planner | Adjuster} ->
// HallucinationGuard -> SafetyGuard -> run log -> response. Retrieval always
// completes before generation within a node because the prompt depends on
// the retrieved passages. The only blocking operations are the two port
// calls per node; everything else is pure computation.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/paceline-ai/stride/internal/generation"
	"github.com/paceline-ai/stride/internal/guard"
	"github.com/paceline-ai/stride/internal/model"
	"github.com/paceline-ai/stride/internal/retrieval"
)

// ErrIncompleteRequest indicates a request whose kind is recognized but
// whose payload is missing required fields. Input fault, never retried.
var ErrIncompleteRequest = errors.New("workflow: request payload incomplete for its kind")

// Ports bundles the external service dependencies shared by the nodes,
// with the per-call timeouts applied to each.
type Ports struct {
	Retriever         retrieval.Retriever
	Generator         generation.Generator
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
}

func (p Ports) withDefaults() Ports {
	if p.RetrievalTimeout <= 0 {
		p.RetrievalTimeout = 10 * time.Second
	}
	if p.GenerationTimeout <= 0 {
		p.GenerationTimeout = 90 * time.Second
	}
	return p
}

// Appender is the slice of the run log the router writes to.
type Appender interface {
	Append(ctx context.Context, entry model.RunLogEntry) (model.RunLogEntry, error)
}

// Router is the workflow entry point. It owns the lifecycle of one
// execution end-to-end: dispatch, guard pipeline, and the run-log append.
type Router struct {
	planner       *Planner
	adjuster      *Adjuster
	hallucination *guard.HallucinationGuard
	safety        *guard.SafetyGuard
	log           Appender
	logger        *slog.Logger
	now           func() time.Time
}

// NewRouter wires the workflow pipeline.
func NewRouter(planner *Planner, adjuster *Adjuster, hg *guard.HallucinationGuard, sg *guard.SafetyGuard, log Appender, logger *slog.Logger) *Router {
	return &Router{
		planner:       planner,
		adjuster:      adjuster,
		hallucination: hg,
		safety:        sg,
		log:           log,
		logger:        logger,
		now:           time.Now,
	}
}

// Handle executes one workflow request. Exactly one run-log entry is
// appended per call that produces a verdict, including rejections. Input
// faults and twice-failed transient faults return a typed error with no
// artifact and no entry. A cancelled request leaves no entry either, since
// no artifact was ever produced.
func (r *Router) Handle(ctx context.Context, req model.Request) (model.WorkflowResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.handle",
		trace.WithAttributes(attribute.String("workflow.request_kind", string(req.Kind))))
	defer span.End()
	defer recordStage(ctx, "handle", time.Now())

	var (
		artifact model.Artifact
		evidence []model.Evidence
		raw      []byte
		err      error
	)

	switch req.Kind {
	case model.RequestGeneratePlan:
		artifact, evidence, raw, err = r.planner.Plan(ctx, req.Profile)
	case model.RequestAdjustToday:
		if req.Plan == nil || req.Context == nil {
			return model.WorkflowResult{}, fmt.Errorf("%w: adjust_today requires plan and context", ErrIncompleteRequest)
		}
		artifact, evidence, raw, err = r.adjuster.Adjust(ctx, req.Profile, req.Plan, *req.Context)
	default:
		return model.WorkflowResult{}, fmt.Errorf("%w: %q", model.ErrUnrecognizedRequestKind, req.Kind)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.WorkflowResult{}, ctxErr
		}
		return model.WorkflowResult{}, err
	}

	checked := r.hallucination.Check(artifact, evidence)
	verdict := r.safety.Validate(checked, req.Profile, req.Context)

	span.SetAttributes(
		attribute.String("workflow.outcome", string(verdict.Outcome)),
		attribute.Int("workflow.evidence_count", len(evidence)),
	)

	r.logger.Info("workflow: request handled",
		"kind", string(req.Kind),
		"outcome", string(verdict.Outcome),
		"rules", verdict.Rules,
		"evidence", len(evidence),
	)

	if err := r.append(ctx, req, evidence, raw, verdict); err != nil {
		return model.WorkflowResult{}, err
	}

	return model.WorkflowResult{
		Artifact: verdict.Artifact,
		Verdict:  verdict,
		Evidence: evidence,
	}, nil
}

func (r *Router) append(ctx context.Context, req model.Request, evidence []model.Evidence, raw []byte, verdict model.SafetyVerdict) error {
	artifactJSON, err := model.MarshalArtifact(verdict.Artifact)
	if err != nil {
		return fmt.Errorf("workflow: serialize artifact: %w", err)
	}
	entry := model.RunLogEntry{
		ID:          uuid.New(),
		Timestamp:   r.now().UTC(),
		RequestKind: req.Kind,
		Profile:     req.Profile,
		Context:     req.Context,
		Evidence:    evidence,
		RawOutput:   raw,
		Verdict:     verdict,
		Artifact:    artifactJSON,
	}
	if _, err := r.log.Append(ctx, entry); err != nil {
		return fmt.Errorf("workflow: append run log: %w", err)
	}
	return nil
}
