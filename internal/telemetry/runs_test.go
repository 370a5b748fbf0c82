package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/roundtable/agent/conversation"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += int64(dp.Count)
				}
			}
		}
	}
	return out
}

func TestRunMeter_CountsRunsAndTurns(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	p := &Providers{mp: mp}
	m, err := NewRunMeter(p.Meter("roundtable/conversation"), zaptest.NewLogger(t))
	require.NoError(t, err)

	events := []conversation.Event{
		{Type: conversation.EventRunStarted, Kind: conversation.RunKindMessage, QueueLen: 2},
		{Type: conversation.EventTurnStarting, Kind: conversation.RunKindMessage},
		{Type: conversation.EventTurnAppended, Kind: conversation.RunKindMessage},
		{Type: conversation.EventTurnAppended, Kind: conversation.RunKindMessage},
		{Type: conversation.EventRunCompleted, Kind: conversation.RunKindMessage},
		{Type: conversation.EventRunStarted, Kind: conversation.RunKindSummary, QueueLen: 1},
		{Type: conversation.EventRunAborted, Kind: conversation.RunKindSummary},
	}
	for _, e := range events {
		m.OnEvent(e)
	}

	sums := collectSums(t, reader)
	assert.Equal(t, int64(2), sums["roundtable.conversation.runs"])
	assert.Equal(t, int64(2), sums["roundtable.conversation.turns"])
	assert.Equal(t, int64(2), sums["roundtable.conversation.queue_length"])
}

func TestProviders_MeterFallsBackToGlobal(t *testing.T) {
	var p *Providers
	assert.NotNil(t, p.Meter("roundtable"))
	assert.NotNil(t, (&Providers{}).Meter("roundtable"))
}
