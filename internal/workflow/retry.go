package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/paceline-ai/stride/internal/model"
)

// transient reports whether the error is a transient service fault that the
// workflow retries exactly once with identical inputs. A refusal is not
// transient: the backend saw the inputs and declined, so retrying the same
// inputs cannot succeed.
func transient(err error) bool {
	return errors.Is(err, model.ErrIndexUnavailable) ||
		errors.Is(err, model.ErrGenerationTimeout)
}

// retryTransient invokes fn and retries it once when it fails with a
// transient fault. The second failure is surfaced as-is; a cancelled parent
// context is never retried.
func retryTransient[T any](ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	defer recordStage(ctx, op, time.Now())

	out, err := fn(ctx)
	if err == nil || !transient(err) || ctx.Err() != nil {
		return out, err
	}
	logger.Warn("workflow: transient fault, retrying once", "op", op, "error", err)
	return fn(ctx)
}
