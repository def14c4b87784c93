package chat

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type failurePolicy int

const (
	// propagate stops the pipeline and returns the step's error.
	propagate failurePolicy = iota
	// absorb records the error, lets the step degrade its output through
	// recover, and continues with the next step.
	absorb
)

type step[S any] struct {
	name      string
	onFailure failurePolicy
	run       func(ctx context.Context, state *S) error
	// recover is called for absorbed failures and returns the error to
	// record. Optional.
	recover func(state *S, err error) error
}

// runPipeline executes steps in order. It returns the absorbed failures
// combined, and the first propagated failure.
func runPipeline[S any](ctx context.Context, logger *zap.Logger, state *S, steps []step[S]) (degraded error, err error) {
	for _, st := range steps {
		stepErr := st.run(ctx, state)
		if stepErr == nil {
			continue
		}
		if st.onFailure == propagate {
			logger.Debug("pipeline step failed", zap.String("step", st.name), zap.Error(stepErr))
			return degraded, stepErr
		}
		if st.recover != nil {
			stepErr = st.recover(state, stepErr)
		}
		logger.Warn("pipeline step degraded", zap.String("step", st.name), zap.Error(stepErr))
		degraded = multierr.Append(degraded, stepErr)
	}
	return degraded, nil
}
