package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "textgrab"

// Metrics holds all OTEL metric instruments for textgrab.
// All counters are cumulative (monotonic) and safe for concurrent use.
type Metrics struct {
	// Capture counters (partitioned by channel via attributes)
	TextsEmitted    metric.Int64Counter
	FragmentsSeen   metric.Int64Counter
	DedupSuppressed metric.Int64Counter

	// Session counters
	SessionsStarted metric.Int64Counter
	ChannelErrors   metric.Int64Counter
	DelegateSpawns  metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	// --- Capture counters ---

	m.TextsEmitted, err = meter.Int64Counter("capture.texts.emitted",
		metric.WithDescription("Deduplicated text events delivered to the consumer, partitioned by channel"))
	if err != nil {
		return nil, err
	}

	m.FragmentsSeen, err = meter.Int64Counter("capture.fragments.seen",
		metric.WithDescription("Raw fragments observed before stitching and dedup, partitioned by channel"))
	if err != nil {
		return nil, err
	}

	m.DedupSuppressed, err = meter.Int64Counter("capture.dedup.suppressed",
		metric.WithDescription("Stitched lines suppressed as duplicates or debounced repeats"))
	if err != nil {
		return nil, err
	}

	// --- Session counters ---

	m.SessionsStarted, err = meter.Int64Counter("capture.sessions.started",
		metric.WithDescription("Capture sessions started"))
	if err != nil {
		return nil, err
	}

	m.ChannelErrors, err = meter.Int64Counter("capture.channel.errors",
		metric.WithDescription("Channels that failed to start or died mid-session, partitioned by channel"))
	if err != nil {
		return nil, err
	}

	m.DelegateSpawns, err = meter.Int64Counter("capture.delegate.spawns",
		metric.WithDescription("Helper processes spawned for architecture-mismatched targets"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordText records one delivered text event.
func (m *Metrics) RecordText(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.TextsEmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capture.channel", channel),
	))
}

// RecordFragment records one raw fragment observation.
func (m *Metrics) RecordFragment(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.FragmentsSeen.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capture.channel", channel),
	))
}

// RecordSuppressed records one deduplicated line.
func (m *Metrics) RecordSuppressed(ctx context.Context) {
	if m == nil {
		return
	}
	m.DedupSuppressed.Add(ctx, 1)
}

// RecordSessionStart records a session start.
func (m *Metrics) RecordSessionStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.SessionsStarted.Add(ctx, 1)
}

// RecordChannelError records a channel that failed to start or died.
func (m *Metrics) RecordChannelError(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.ChannelErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capture.channel", channel),
	))
}

// RecordDelegateSpawn records a helper spawn.
func (m *Metrics) RecordDelegateSpawn(ctx context.Context) {
	if m == nil {
		return
	}
	m.DelegateSpawns.Add(ctx, 1)
}
