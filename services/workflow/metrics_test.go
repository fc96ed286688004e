package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumInt64(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok, "got %T", agg)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_ObserveCountsEvents(t *testing.T) {
	m, reader := newTestMetrics(t)
	e, _ := newTestEngine(t, linearDefinition(), Options{})
	sub := m.Observe("linear", e.Dispatcher())

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.NavigateToNode(ctx, "a"))

	data := collect(t, reader)
	require.Contains(t, data, "workflow.events")
	assert.Equal(t, int64(len(e.Events())), sumInt64(t, data["workflow.events"]))

	sub.Unsubscribe()
	require.NoError(t, e.NavigateToNode(ctx, "end"))
	data = collect(t, reader)
	assert.Equal(t, int64(4), sumInt64(t, data["workflow.events"]))
}

func TestMetrics_RecordsValidations(t *testing.T) {
	m, reader := newTestMetrics(t)
	v := NewValidator(testRegistry(), nil).WithMetrics(m)
	ctx := context.Background()

	v.Validate(ctx, gatedEdge("always-true"), nil)
	v.Validate(ctx, gatedEdge("always-false"), nil)
	// the fast path records nothing
	v.Validate(ctx, Edge{ID: "free"}, nil)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumInt64(t, data["workflow.validations"]))

	hist, ok := data["workflow.validation.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}
