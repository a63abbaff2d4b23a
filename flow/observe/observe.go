// Package observe instruments streams with OpenTelemetry metrics.
// Instruments come from a caller-supplied metric.Meter, so a noop meter
// provider makes observation free.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lguimbarda/parflow/flow/core"
)

// ElementsMetric is the name of the per-element counter.
const ElementsMetric = "parflow.elements"

// Attribute keys attached to every count.
const (
	StageKey   = attribute.Key("stage")
	OutcomeKey = attribute.Key("outcome")
)

// Outcome values.
const (
	OutcomeValue = "value"
	OutcomeError = "error"
)

// NewElementCounter creates the per-element counter on meter.
func NewElementCounter(meter metric.Meter) (metric.Int64Counter, error) {
	return meter.Int64Counter(ElementsMetric,
		metric.WithDescription("elements handled by a pipeline stage"),
		metric.WithUnit("{element}"),
	)
}

// Recorder counts outcomes for one named stage. Attribute sets are built
// once so Record does not allocate.
type Recorder struct {
	counter metric.Int64Counter
	ok      metric.AddOption
	failed  metric.AddOption
}

// NewRecorder binds counter to stage.
func NewRecorder(counter metric.Int64Counter, stage string) *Recorder {
	return &Recorder{
		counter: counter,
		ok:      metric.WithAttributeSet(attribute.NewSet(StageKey.String(stage), OutcomeKey.String(OutcomeValue))),
		failed:  metric.WithAttributeSet(attribute.NewSet(StageKey.String(stage), OutcomeKey.String(OutcomeError))),
	}
}

// Record adds one element with the outcome given by err.
func (r *Recorder) Record(ctx context.Context, err error) {
	if err != nil {
		r.counter.Add(ctx, 1, r.failed)
		return
	}
	r.counter.Add(ctx, 1, r.ok)
}

// Count creates a Transformer that records every value passing through it,
// and every error for which match returns true. A nil match counts all
// errors. Sentinels and unmatched errors are forwarded without being counted.
func Count[T any](rec *Recorder, match func(error) bool) core.Transformer[T, T] {
	return core.Transmit(func(ctx context.Context, in <-chan core.Result[T]) <-chan core.Result[T] {
		out := make(chan core.Result[T])
		go func() {
			defer close(out)
			for res := range in {
				switch {
				case res.IsSentinel():
				case res.IsError() && match != nil && !match(res.Error()):
				default:
					rec.Record(ctx, res.Error())
				}

				select {
				case <-ctx.Done():
					return
				case out <- res:
				}
			}
		}()
		return out
	})
}
