// Package observe provides application-wide observability primitives for
// Troubadour: OpenTelemetry metrics and the Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Troubadour metrics.
const meterName = "github.com/troubadourbot/troubadour"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ResolveDuration tracks how long it takes to resolve a queued
	// reference into a playable stream.
	ResolveDuration metric.Float64Histogram

	// TracksPlayed counts tracks that started playing, per guild.
	TracksPlayed metric.Int64Counter

	// ResolutionFailures counts queued references that could not be turned
	// into a playable stream, per guild.
	ResolutionFailures metric.Int64Counter

	// CommandsHandled counts text commands and reaction controls. Use with
	// attributes:
	//   attribute.String("command", ...), attribute.String("status", ...)
	CommandsHandled metric.Int64Counter

	// QueueLength tracks the number of pending queue entries across all guilds.
	QueueLength metric.Int64UpDownCounter

	// ActiveSessions tracks the number of guilds with a live voice session.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks request latency on the operational HTTP
	// listener (/metrics, /healthz). Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// resolveBuckets defines histogram bucket boundaries (in seconds) sized for
// search plus stream-probe round trips.
var resolveBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ResolveDuration, err = m.Float64Histogram("troubadour.resolve.duration",
		metric.WithDescription("Latency of resolving a track reference into a stream."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(resolveBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TracksPlayed, err = m.Int64Counter("troubadour.tracks.played",
		metric.WithDescription("Total tracks that started playing, by guild."),
	); err != nil {
		return nil, err
	}
	if met.ResolutionFailures, err = m.Int64Counter("troubadour.resolve.failures",
		metric.WithDescription("Total track references that yielded no playable stream, by guild."),
	); err != nil {
		return nil, err
	}
	if met.CommandsHandled, err = m.Int64Counter("troubadour.commands.handled",
		metric.WithDescription("Total commands handled by command name and status."),
	); err != nil {
		return nil, err
	}
	if met.QueueLength, err = m.Int64UpDownCounter("troubadour.queue.length",
		metric.WithDescription("Pending queue entries across all guilds."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("troubadour.active_sessions",
		metric.WithDescription("Guilds with a live voice session."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("troubadour.http.request.duration",
		metric.WithDescription("HTTP request duration on the operational listener."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTrackPlayed records a started track for the guild.
func (m *Metrics) RecordTrackPlayed(ctx context.Context, guildID string) {
	m.TracksPlayed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("guild", guildID)),
	)
}

// RecordResolutionFailure records a reference that could not be resolved.
func (m *Metrics) RecordResolutionFailure(ctx context.Context, guildID string) {
	m.ResolutionFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("guild", guildID)),
	)
}

// RecordResolveDuration records the latency of one resolution attempt.
func (m *Metrics) RecordResolveDuration(ctx context.Context, d time.Duration) {
	m.ResolveDuration.Record(ctx, d.Seconds())
}

// RecordCommand records a handled command with its outcome status.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string) {
	m.CommandsHandled.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}

// AddQueueLength adjusts the pending-entries gauge by delta.
func (m *Metrics) AddQueueLength(ctx context.Context, delta int64) {
	m.QueueLength.Add(ctx, delta)
}

// AddActiveSessions adjusts the live-session gauge by delta.
func (m *Metrics) AddActiveSessions(ctx context.Context, delta int64) {
	m.ActiveSessions.Add(ctx, delta)
}
