// Package observe holds Aura's telemetry: OpenTelemetry instruments exported
// to Prometheus, span helpers, a trace-aware logger and the status server
// middleware.
//
// Code records through a [Metrics] value. Production uses [DefaultMetrics],
// which binds to the global meter provider installed by [InitProvider]; tests
// build their own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scope = "github.com/MrWong99/aura"

// Metrics is the set of aura.* instruments.
type Metrics struct {
	ConnectDuration metric.Float64Histogram
	ChatDuration    metric.Float64Histogram
	ImageDuration   metric.Float64Histogram
	HTTPDuration    metric.Float64Histogram

	// ProviderRequests and ProviderErrors carry provider and kind
	// attributes; requests also carry status.
	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter
	ToolCalls        metric.Int64Counter
	AudioChunks      metric.Int64Counter
	DecodeErrors     metric.Int64Counter
	DiscardedUnits   metric.Int64Counter
	Interruptions    metric.Int64Counter

	ActiveSessions metric.Int64UpDownCounter
}

// From a quick handshake to a slow 4K render.
var secondsBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(scope)
	var errs []error
	seconds := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(secondsBuckets...),
		)
		errs = append(errs, err)
		return h
	}
	count := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	m := &Metrics{
		ConnectDuration: seconds("aura.live.connect.duration", "Time from Connect until the live session is open."),
		ChatDuration:    seconds("aura.chat.duration", "Latency of a text chat reply."),
		ImageDuration:   seconds("aura.image.duration", "Latency of image generation."),
		HTTPDuration:    seconds("aura.http.request.duration", "Status server request latency by method and path."),

		ProviderRequests: count("aura.provider.requests", "Provider calls by provider, kind and status."),
		ProviderErrors:   count("aura.provider.errors", "Failed provider calls by provider and kind."),
		ToolCalls:        count("aura.tool.calls", "Tool invocations by tool and status."),
		AudioChunks:      count("aura.audio.chunks", "Audio chunks crossing the live transport by direction."),
		DecodeErrors:     count("aura.audio.decode_errors", "Inbound audio fragments skipped as undecodable."),
		DiscardedUnits:   count("aura.playback.discarded", "Decoded fragments dropped because their turn was interrupted."),
		Interruptions:    count("aura.live.interruptions", "Barge-in interruptions signalled by the service."),
	}
	var err error
	m.ActiveSessions, err = meter.Int64UpDownCounter("aura.active_sessions",
		metric.WithDescription("Open live voice sessions."))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return m, nil
}

// DefaultMetrics returns the process-wide instruments on the global meter
// provider, creating them on first use. Call it after [InitProvider].
var DefaultMetrics = sync.OnceValue(func() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		panic(err)
	}
	return m
})

// RecordProviderRequest counts one provider call. status is "ok" or "error".
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, attrs("provider", provider, "kind", kind, "status", status))
}

// RecordProviderError counts one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, attrs("provider", provider, "kind", kind))
}

// RecordToolCall counts one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, attrs("tool", tool, "status", status))
}

// Directions for [Metrics.RecordAudioChunk].
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// RecordAudioChunk counts one chunk sent (out) or received (in).
func (m *Metrics) RecordAudioChunk(ctx context.Context, direction string) {
	m.AudioChunks.Add(ctx, 1, attrs("direction", direction))
}

// attrs turns key, value pairs into a measurement option.
func attrs(kv ...string) metric.MeasurementOption {
	set := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		set = append(set, attribute.String(kv[i], kv[i+1]))
	}
	return metric.WithAttributes(set...)
}
