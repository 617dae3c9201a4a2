package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/paceline-ai/stride/internal/telemetry"
)

var (
	tracer        = telemetry.Tracer("stride/workflow")
	workflowMeter = telemetry.Meter("stride/workflow")
)

// recordStage records one pipeline stage duration (best-effort, instruments
// lazily created).
func recordStage(ctx context.Context, stage string, start time.Time) {
	if hist, err := workflowMeter.Float64Histogram("workflow.stage.duration",
		otelmetric.WithUnit("ms")); err == nil {
		hist.Record(ctx, float64(time.Since(start).Milliseconds()),
			otelmetric.WithAttributes(attribute.String("stage", stage)))
	}
}
