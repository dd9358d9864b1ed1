package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability/logctx"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanPrefix prefixes every use case span name.
const SpanPrefix = "UC."

// Instruments carries the tracer, base logger and RED metrics a use case
// reports through. Build it once at wiring time.
type Instruments struct {
	Tracer observability.Tracer
	Log    observability.Logger

	metrics     observability.Metrics
	requests    observability.Counter   // usecase_requests_total{use_case,outcome}
	duration    observability.Histogram // usecase_duration_seconds{use_case}
	extRequests observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extDuration observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstruments(tel observability.Observability, service string) Instruments {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return Instruments{
		Tracer:      tel.Tracer(),
		Log:         tel.Logger().With(observability.F("service", service)),
		metrics:     m,
		requests:    m.Counter(observability.MUsecaseRequests),
		duration:    m.Histogram(observability.MUsecaseDuration),
		extRequests: m.Counter(observability.MExternalRequests),
		extDuration: m.Histogram(observability.MExternalRequestDuration),
	}
}

func (i Instruments) Counter(key observability.MetricKey) observability.Counter {
	if i.metrics == nil {
		return observability.NopCounter()
	}
	return i.metrics.Counter(key)
}

// Logger returns the request logger from ctx, or the base logger, tagged
// with the use case name.
func (i Instruments) Logger(ctx context.Context, useCase string, fallback observability.Logger) observability.Logger {
	if fallback == nil {
		fallback = i.Log
	}
	if fallback == nil {
		fallback = observability.NopLogger()
	}
	return logctx.FromOr(ctx, fallback).With(observability.F("use_case", useCase))
}

// Observe records one use case invocation and returns its latency in seconds.
func (i Instruments) Observe(useCase, outcome string, start time.Time) float64 {
	lat := time.Since(start).Seconds()
	if i.requests != nil {
		i.requests.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
	}
	if i.duration != nil {
		i.duration.Observe(lat, observability.L("use_case", useCase))
	}
	return lat
}

func (i Instruments) ObserveExternal(peer, endpoint, outcome string, start time.Time) {
	if i.extRequests != nil {
		i.extRequests.Add(1,
			observability.L("peer", peer),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
	}
	if i.extDuration != nil {
		i.extDuration.Observe(time.Since(start).Seconds(),
			observability.L("peer", peer),
			observability.L("endpoint", endpoint),
		)
	}
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error, status string) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	} else {
		span.SetStatus(codes.Ok, status)
	}
	span.End()
}

// DoneFields builds the common use_case_done fields.
func DoneFields(ctx context.Context, outcome, status string, latency float64, err error) []observability.Field {
	fields := []observability.Field{
		observability.F("outcome", outcome),
		observability.F("status", status),
		observability.F("latency_seconds", latency),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	if err != nil {
		fields = append(fields, observability.Err(err))
	}
	return fields
}
