// Package obs defines OpenTelemetry metric instruments for pool, router,
// memory and session statistics, backed by a Prometheus exporter, the
// same Counter/Histogram instrument style the teacher's observability
// package uses for its own agent/tool/LLM metrics, generalized here to
// this module's own domain.
package obs

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds every instrument this module registers. Construct one per
// process with New and pass it down to the session manager and router.
// PoolQueueDepth, MemoryPromotions and MemoryDemotions are registered but
// not recorded by any component.
type Metrics struct {
	Registry *prometheus.Registry

	TasksDispatched  metric.Int64Counter
	TasksCompleted   metric.Int64Counter
	TasksFailed      metric.Int64Counter
	TaskDuration     metric.Float64Histogram
	PoolQueueDepth   metric.Int64Counter // delta counter; pools do not record to it
	RouterFallbacks  metric.Int64Counter
	RouterLatency    metric.Float64Histogram
	CheckpointsTaken metric.Int64Counter
	MemoryPromotions metric.Int64Counter
	MemoryDemotions  metric.Int64Counter
}

// New builds a Metrics instance backed by a fresh Prometheus registry.
// Scrape Registry with promhttp.HandlerFor in whatever server embeds
// this module.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("github.com/agentmesh/coordinator")

	m := &Metrics{Registry: registry}

	if m.TasksDispatched, err = meter.Int64Counter("coordinator.tasks.dispatched"); err != nil {
		return nil, err
	}
	if m.TasksCompleted, err = meter.Int64Counter("coordinator.tasks.completed"); err != nil {
		return nil, err
	}
	if m.TasksFailed, err = meter.Int64Counter("coordinator.tasks.failed"); err != nil {
		return nil, err
	}
	if m.TaskDuration, err = meter.Float64Histogram("coordinator.tasks.duration_seconds"); err != nil {
		return nil, err
	}
	if m.PoolQueueDepth, err = meter.Int64Counter("coordinator.pool.queue_depth_delta"); err != nil {
		return nil, err
	}
	if m.RouterFallbacks, err = meter.Int64Counter("coordinator.router.fallbacks"); err != nil {
		return nil, err
	}
	if m.RouterLatency, err = meter.Float64Histogram("coordinator.router.latency_seconds"); err != nil {
		return nil, err
	}
	if m.CheckpointsTaken, err = meter.Int64Counter("coordinator.session.checkpoints"); err != nil {
		return nil, err
	}
	if m.MemoryPromotions, err = meter.Int64Counter("coordinator.memory.promotions"); err != nil {
		return nil, err
	}
	if m.MemoryDemotions, err = meter.Int64Counter("coordinator.memory.demotions"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordTaskCompletion records a dispatched task's final outcome: one
// completed or failed count, plus its execution time.
func (m *Metrics) RecordTaskCompletion(ctx context.Context, taskType string, success bool, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes()
	if success {
		m.TasksCompleted.Add(ctx, 1, attrs)
	} else {
		m.TasksFailed.Add(ctx, 1, attrs)
	}
	m.TaskDuration.Record(ctx, seconds, attrs)
	_ = taskType
}

// RecordDispatch records one task handed to a pool.
func (m *Metrics) RecordDispatch(ctx context.Context) {
	if m == nil {
		return
	}
	m.TasksDispatched.Add(ctx, 1)
}

// RecordFallback records one router fallback-chain advance.
func (m *Metrics) RecordFallback(ctx context.Context) {
	if m == nil {
		return
	}
	m.RouterFallbacks.Add(ctx, 1)
}

// RecordCheckpoint records one checkpoint taken by a session.
func (m *Metrics) RecordCheckpoint(ctx context.Context) {
	if m == nil {
		return
	}
	m.CheckpointsTaken.Add(ctx, 1)
}
