package workflow

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "workflow-engine/api/services/workflow"

// Metrics holds the OpenTelemetry instruments for engine activity.
type Metrics struct {
	events            metric.Int64Counter
	validations       metric.Int64Counter
	validationLatency metric.Float64Histogram
}

// NewMetrics creates the instruments on meter. A nil meter uses the global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	events, err := meter.Int64Counter("workflow.events",
		metric.WithDescription("Workflow execution events by kind"))
	if err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}
	validations, err := meter.Int64Counter("workflow.validations",
		metric.WithDescription("Edge validations by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create validations counter: %w", err)
	}
	latency, err := meter.Float64Histogram("workflow.validation.duration",
		metric.WithDescription("Time spent evaluating edge criteria"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create validation histogram: %w", err)
	}
	return &Metrics{events: events, validations: validations, validationLatency: latency}, nil
}

// Observe counts every event delivered through d.
func (m *Metrics) Observe(workflowID string, d *Dispatcher) Subscription {
	return d.OnAny(func(ev Event) {
		m.events.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("workflow_id", workflowID),
			attribute.String("kind", string(ev.Kind)),
		))
	})
}

func (m *Metrics) recordValidation(ctx context.Context, edge Edge, ok bool, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("edge_id", edge.ID),
		attribute.Bool("passed", ok),
	)
	ctx = context.WithoutCancel(ctx)
	m.validations.Add(ctx, 1, attrs)
	m.validationLatency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}
