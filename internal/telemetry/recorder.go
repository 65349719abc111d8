package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hession/calcmate/internal/dispatch"
)

// Metric names
const (
	MetricInvocations = "calcmate.invocations"
	MetricDuration    = "calcmate.invocation.duration"
)

// unknownOperation replaces unregistered names to keep attribute cardinality bounded
const unknownOperation = "unknown"

// Recorder turns dispatcher events into metrics
type Recorder struct {
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewRecorder creates the invocation instruments on meter
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	invocations, err := meter.Int64Counter(MetricInvocations,
		metric.WithDescription("Number of operation invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invocation counter: %w", err)
	}

	duration, err := meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Duration of operation invocations"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &Recorder{invocations: invocations, duration: duration}, nil
}

// Observe records one invocation; it matches dispatch.Observer
func (r *Recorder) Observe(event dispatch.Event) {
	operation := event.Request.OperationName
	if event.Result.Kind == dispatch.UnknownOperation {
		operation = unknownOperation
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("status", string(event.Result.Status)),
	}
	if !event.Result.OK() {
		attrs = append(attrs, attribute.String("kind", string(event.Result.Kind)))
	}

	ctx := context.Background()
	set := metric.WithAttributes(attrs...)
	r.invocations.Add(ctx, 1, set)
	r.duration.Record(ctx, float64(event.Duration.Microseconds())/1000, set)
}
