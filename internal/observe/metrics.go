// Package observe holds the OpenTelemetry instruments for recording sessions
// and the downstream dispatch, plus the Prometheus bridge that exposes them.
//
// Components take a *Metrics; tests build one with NewMetrics over an SDK
// MeterProvider backed by a ManualReader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/chaz8081/wavtoggle"

// Session outcomes.
const (
	OutcomeFinalized   = "finalized"
	OutcomeAbandoned   = "abandoned"
	OutcomeStartFailed = "start_failed"
)

// Dispatch statuses.
const (
	StatusDelivered       = "delivered"
	StatusEmpty           = "empty"
	StatusTranscribeError = "transcribe_error"
	StatusDeliverError    = "deliver_error"
)

// Metrics holds every instrument. All fields are safe for concurrent use.
type Metrics struct {
	// SessionsStarted counts rising edges that produced a live recording.
	SessionsStarted metric.Int64Counter
	// SessionsFinished counts session ends by "outcome".
	SessionsFinished metric.Int64Counter
	// SamplesWritten counts samples that reached the encoder.
	SamplesWritten metric.Int64Counter
	// SamplesDropped counts samples lost to encoder contention.
	SamplesDropped metric.Int64Counter
	// RecordingDuration is the audio length of finalized recordings.
	RecordingDuration metric.Float64Histogram

	// DispatchJobs counts finished dispatch jobs by "status".
	DispatchJobs metric.Int64Counter
	// DispatchInflight is the number of running dispatch jobs.
	DispatchInflight metric.Int64UpDownCounter
	// TranscribeDuration is the latency of the transcription call.
	TranscribeDuration metric.Float64Histogram
}

var latencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionsStarted, err = m.Int64Counter("wavtoggle.sessions.started",
		metric.WithDescription("Recording sessions started."),
	); err != nil {
		return nil, err
	}
	if met.SessionsFinished, err = m.Int64Counter("wavtoggle.sessions.finished",
		metric.WithDescription("Recording sessions finished, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SamplesWritten, err = m.Int64Counter("wavtoggle.samples.written",
		metric.WithDescription("Samples written to recordings."),
	); err != nil {
		return nil, err
	}
	if met.SamplesDropped, err = m.Int64Counter("wavtoggle.samples.dropped",
		metric.WithDescription("Samples dropped because the encoder was busy or closed."),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("wavtoggle.recording.duration",
		metric.WithDescription("Length of finalized recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchJobs, err = m.Int64Counter("wavtoggle.dispatch.jobs",
		metric.WithDescription("Dispatch jobs finished, by status."),
	); err != nil {
		return nil, err
	}
	if met.DispatchInflight, err = m.Int64UpDownCounter("wavtoggle.dispatch.inflight",
		metric.WithDescription("Dispatch jobs currently running."),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("wavtoggle.transcribe.duration",
		metric.WithDescription("Latency of the transcription request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level instance on the global provider.
// It records nothing until InitProvider installs an SDK provider.
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

// RecordSessionEnd records one finished session and its sample counters.
func (m *Metrics) RecordSessionEnd(ctx context.Context, outcome string, written, dropped uint64, length time.Duration) {
	m.SessionsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if written > 0 {
		m.SamplesWritten.Add(ctx, int64(written))
	}
	if dropped > 0 {
		m.SamplesDropped.Add(ctx, int64(dropped))
	}
	if outcome == OutcomeFinalized {
		m.RecordingDuration.Record(ctx, length.Seconds())
	}
}

// RecordDispatch records one finished dispatch job.
func (m *Metrics) RecordDispatch(ctx context.Context, status string) {
	m.DispatchJobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
