package checkout

import (
	"context"
	"fmt"
	"time"

	"pos-checkout/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const compensationTimeout = 15 * time.Second

// sagaStep pairs a write with the action that undoes it. compensate must
// only undo what run actually did, including a partially completed run.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

type saga struct {
	steps  []sagaStep
	logger *zap.Logger
}

// execute runs the steps in order. On failure the failed step and every
// step before it are compensated in reverse order.
func (s *saga) execute(ctx context.Context) error {
	for i, st := range s.steps {
		stepCtx, span := util.StartSpan(ctx, "Saga."+st.name, attribute.String("saga.step", st.name))
		start := time.Now()
		err := st.run(stepCtx)
		util.SagaStepLatency.WithLabelValues(st.name).Observe(time.Since(start).Seconds())
		util.RecordError(span, err)
		span.End()

		if err != nil {
			s.logger.Error("Checkout step failed, compensating",
				zap.String("step", st.name),
				zap.Error(err))
			util.CheckoutFailuresTotal.WithLabelValues(st.name).Inc()

			compErrs := s.compensate(ctx, i)
			return &PersistenceFailure{
				Step:               st.name,
				Err:                err,
				Compensated:        len(compErrs) == 0,
				CompensationErrors: compErrs,
			}
		}
	}
	return nil
}

func (s *saga) compensate(ctx context.Context, failed int) []error {
	// the commit context may already be expired; compensation still has to run
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var errs []error
	for j := failed; j >= 0; j-- {
		st := s.steps[j]
		if st.compensate == nil {
			continue
		}
		if err := st.compensate(ctx); err != nil {
			s.logger.Error("Compensation failed",
				zap.String("step", st.name),
				zap.Error(err))
			util.CompensationsTotal.WithLabelValues(st.name, "failed").Inc()
			errs = append(errs, fmt.Errorf("compensate %s: %w", st.name, err))
			continue
		}
		util.CompensationsTotal.WithLabelValues(st.name, "ok").Inc()
	}
	return errs
}
