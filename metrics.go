package storeconn

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"

	"pkt.systems/storeconn/location"
)

type registryMetrics struct {
	connectCount  metric.Int64Counter
	buildDuration metric.Int64Histogram
	lockWait      metric.Int64Histogram
	releaseCount  metric.Int64Counter
	warningCount  metric.Int64Counter
	activeGauge   metric.Int64ObservableGauge
	registration  metric.Registration
	active        atomic.Int64
}

func newRegistryMetrics(logger pslog.Logger) *registryMetrics {
	meter := otel.Meter("pkt.systems/storeconn/registry")
	m := &registryMetrics{}
	var err error

	m.connectCount, err = meter.Int64Counter(
		"storeconn.connect",
		metric.WithDescription("ConnectCreate calls by result"),
	)
	logMetricInitError(logger, "storeconn.connect", err)

	m.buildDuration, err = meter.Int64Histogram(
		"storeconn.build.duration_ms",
		metric.WithDescription("Store build duration"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "storeconn.build.duration_ms", err)

	m.lockWait, err = meter.Int64Histogram(
		"storeconn.lock.wait_ms",
		metric.WithDescription("Time spent waiting for the process lock"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "storeconn.lock.wait_ms", err)

	m.releaseCount, err = meter.Int64Counter(
		"storeconn.release",
		metric.WithDescription("Connections torn down"),
	)
	logMetricInitError(logger, "storeconn.release", err)

	m.warningCount, err = meter.Int64Counter(
		"storeconn.warning",
		metric.WithDescription("Teardown warnings by kind"),
	)
	logMetricInitError(logger, "storeconn.warning", err)

	m.activeGauge, err = meter.Int64ObservableGauge(
		"storeconn.connections.active",
		metric.WithDescription("Registered connections"),
	)
	logMetricInitError(logger, "storeconn.connections.active", err)

	if m.activeGauge != nil {
		reg, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(m.activeGauge, m.active.Load())
			return nil
		}, m.activeGauge)
		logMetricInitError(logger, "storeconn.connections.active.callback", err)
		m.registration = reg
	}
	return m
}

func (m *registryMetrics) recordConnect(ctx context.Context, loc location.Location, result string) {
	if m == nil || m.connectCount == nil {
		return
	}
	m.connectCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("storeconn.kind", loc.Kind().String()),
		attribute.String("storeconn.result", result),
	))
}

func (m *registryMetrics) recordBuild(ctx context.Context, loc location.Location, d time.Duration, ok bool) {
	if m == nil || m.buildDuration == nil {
		return
	}
	m.buildDuration.Record(ctx, d.Milliseconds(), metric.WithAttributes(
		attribute.String("storeconn.kind", loc.Kind().String()),
		attribute.Bool("storeconn.ok", ok),
	))
}

func (m *registryMetrics) recordLockWait(ctx context.Context, d time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Record(ctx, d.Milliseconds())
}

func (m *registryMetrics) recordRelease(ctx context.Context, op string, forced bool) {
	if m == nil || m.releaseCount == nil {
		return
	}
	m.releaseCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("storeconn.op", op),
		attribute.Bool("storeconn.forced", forced),
	))
}

func (m *registryMetrics) recordWarning(ctx context.Context, kind WarningKind) {
	if m == nil || m.warningCount == nil {
		return
	}
	m.warningCount.Add(ctx, 1, metric.WithAttributes(attribute.String("storeconn.warning", kind.String())))
}

func (m *registryMetrics) setActive(n int) {
	if m == nil {
		return
	}
	m.active.Store(int64(n))
}

func (m *registryMetrics) close() {
	if m == nil || m.registration == nil {
		return
	}
	_ = m.registration.Unregister()
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
