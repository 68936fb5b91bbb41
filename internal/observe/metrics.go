// Package observe provides application-wide observability primitives for the
// voice bridge: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voice bridge metrics.
const meterName = "github.com/gregcmartin/claw-voice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// BrainStreamDuration tracks the time from sending a transcript to the
	// brain endpoint to the final streamed token.
	BrainStreamDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency, per sentence.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// UtterancesSegmented counts utterances the audio segmenter closed out
	// and handed to the transcriber.
	UtterancesSegmented metric.Int64Counter

	// TasksDispatched counts tasks the task manager created for the brain
	// client to process.
	TasksDispatched metric.Int64Counter

	// TasksCancelled counts tasks cancelled before completion (e.g. barge-in).
	TasksCancelled metric.Int64Counter

	// SentencesSynthesized counts sentences the synthesis pipeline sent to a
	// TTS provider.
	SentencesSynthesized metric.Int64Counter

	// AlertsDelivered counts alerts included in a spoken alert briefing.
	AlertsDelivered metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveConversations tracks the number of per-speaker conversation
	// histories the task manager currently holds.
	ActiveConversations metric.Int64UpDownCounter

	// QueuedAlerts tracks the number of alerts currently held in the inbox.
	QueuedAlerts metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("voicebridge.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BrainStreamDuration, err = m.Float64Histogram("voicebridge.brain.stream_duration",
		metric.WithDescription("Latency from submitting a transcript to the brain to its final streamed token."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voicebridge.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis, per sentence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("voicebridge.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesSegmented, err = m.Int64Counter("voicebridge.utterances.segmented",
		metric.WithDescription("Total utterances closed out by the audio segmenter."),
	); err != nil {
		return nil, err
	}
	if met.TasksDispatched, err = m.Int64Counter("voicebridge.tasks.dispatched",
		metric.WithDescription("Total tasks dispatched to the brain client."),
	); err != nil {
		return nil, err
	}
	if met.TasksCancelled, err = m.Int64Counter("voicebridge.tasks.cancelled",
		metric.WithDescription("Total tasks cancelled before completion."),
	); err != nil {
		return nil, err
	}
	if met.SentencesSynthesized, err = m.Int64Counter("voicebridge.sentences.synthesized",
		metric.WithDescription("Total sentences sent to a TTS provider."),
	); err != nil {
		return nil, err
	}
	if met.AlertsDelivered, err = m.Int64Counter("voicebridge.alerts.delivered",
		metric.WithDescription("Total alerts included in a spoken alert briefing."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("voicebridge.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConversations, err = m.Int64UpDownCounter("voicebridge.conversations.active",
		metric.WithDescription("Number of per-speaker conversation histories currently held."),
	); err != nil {
		return nil, err
	}
	if met.QueuedAlerts, err = m.Int64UpDownCounter("voicebridge.alerts.queued",
		metric.WithDescription("Number of alerts currently held in the inbox."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicebridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
