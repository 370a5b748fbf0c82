package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/agent/conversation"
)

// Meter returns a named meter from the SDK provider, or from the
// global provider when telemetry is disabled.
func (p *Providers) Meter(name string) metric.Meter {
	if p == nil || p.mp == nil {
		return otel.Meter(name)
	}
	return p.mp.Meter(name)
}

// RunMeter 把编排事件导出为 OTel 指标，实现 conversation.Observer
type RunMeter struct {
	runs  metric.Int64Counter
	turns metric.Int64Counter
	queue metric.Int64Histogram
}

// NewRunMeter 在 meter 上注册运行相关的 instrument
func NewRunMeter(meter metric.Meter, logger *zap.Logger) (*RunMeter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runs, err := meter.Int64Counter("roundtable.conversation.runs",
		metric.WithDescription("Finished conversation runs by kind and final state"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}
	turns, err := meter.Int64Counter("roundtable.conversation.turns",
		metric.WithDescription("Persona turns appended during runs"),
		metric.WithUnit("{turn}"))
	if err != nil {
		return nil, err
	}
	queue, err := meter.Int64Histogram("roundtable.conversation.queue_length",
		metric.WithDescription("Planned speakers per run"),
		metric.WithUnit("{speaker}"))
	if err != nil {
		return nil, err
	}
	logger.Debug("run meter registered")
	return &RunMeter{runs: runs, turns: turns, queue: queue}, nil
}

// OnEvent implements conversation.Observer.
func (m *RunMeter) OnEvent(e conversation.Event) {
	ctx := context.Background()
	kind := attribute.String("kind", string(e.Kind))
	switch e.Type {
	case conversation.EventRunStarted:
		m.queue.Record(ctx, int64(e.QueueLen), metric.WithAttributes(kind))
	case conversation.EventTurnAppended:
		m.turns.Add(ctx, 1, metric.WithAttributes(kind))
	case conversation.EventRunCompleted:
		m.runs.Add(ctx, 1, metric.WithAttributes(kind, attribute.String("state", string(conversation.StateCompleted))))
	case conversation.EventRunAborted:
		m.runs.Add(ctx, 1, metric.WithAttributes(kind, attribute.String("state", string(conversation.StateAborted))))
	}
}
