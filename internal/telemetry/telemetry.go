// Package telemetry records outbound API calls made to the social platforms.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Sink receives one event per outbound platform call.
type Sink interface {
	TrackAPICall(ctx context.Context, platform, endpoint string, duration time.Duration, success bool, err error)
}

type NopSink struct{}

func (NopSink) TrackAPICall(context.Context, string, string, time.Duration, bool, error) {}

// OrNop returns s, or a NopSink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return NopSink{}
	}
	return s
}

// Logger returns l, or a logger that discards everything when l is nil.
func Logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l
}

type OtelSink struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
	logger   *slog.Logger
}

// NewOtelSink builds the API call instruments on meter. A nil meter uses the global provider.
func NewOtelSink(meter metric.Meter, logger *slog.Logger) (*OtelSink, error) {
	if meter == nil {
		meter = otel.Meter("postflow")
	}

	calls, err := meter.Int64Counter(
		"postflow_api_calls_total",
		metric.WithDescription("Total number of platform API calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("create api_calls counter: %w", err)
	}

	failures, err := meter.Int64Counter(
		"postflow_api_call_failures_total",
		metric.WithDescription("Total number of failed platform API calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("create api_call_failures counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"postflow_api_call_duration_seconds",
		metric.WithDescription("Duration of platform API calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create api_call_duration histogram: %w", err)
	}

	return &OtelSink{
		calls:    calls,
		failures: failures,
		duration: duration,
		logger:   Logger(logger),
	}, nil
}

func (s *OtelSink) TrackAPICall(ctx context.Context, platform, endpoint string, duration time.Duration, success bool, err error) {
	status := "success"
	if !success {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	)

	s.calls.Add(ctx, 1, attrs)
	s.duration.Record(ctx, duration.Seconds(), attrs)

	if !success {
		s.failures.Add(ctx, 1, attrs)
		s.logger.Warn("platform api call failed",
			"platform", platform,
			"endpoint", endpoint,
			"duration", duration,
			"error", err)
		return
	}
	s.logger.Debug("platform api call",
		"platform", platform,
		"endpoint", endpoint,
		"duration", duration)
}
