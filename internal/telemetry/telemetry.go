// Package telemetry holds the OpenTelemetry instruments of prodstats.
//
// Instruments are created from the global providers, which are no-ops
// unless the binary installs an SDK.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Scope is the instrumentation scope name.
const Scope = "github.com/xtxerr/prodstats"

// Attribute keys.
const (
	AttrQuery   = "query"
	AttrOutcome = "outcome"
	AttrOrigin  = "origin"
	AttrRows    = "rows"
	AttrReason  = "reason"
)

// Metrics records query and load measurements.
type Metrics struct {
	queries       metric.Int64Counter
	queryDuration metric.Float64Histogram
	loads         metric.Int64Counter
	loadDuration  metric.Float64Histogram
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	queries, err := meter.Int64Counter("prodstats.queries",
		metric.WithDescription("statistics queries executed"))
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}

	queryDuration, err := meter.Float64Histogram("prodstats.query.duration.ms",
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create histogram: %w", err)
	}

	loads, err := meter.Int64Counter("prodstats.loads",
		metric.WithDescription("dataset load attempts"))
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}

	loadDuration, err := meter.Float64Histogram("prodstats.load.duration.ms",
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create histogram: %w", err)
	}

	return &Metrics{
		queries:       queries,
		queryDuration: queryDuration,
		loads:         loads,
		loadDuration:  loadDuration,
	}, nil
}

// Default returns instruments on the global meter provider. It falls back
// to no-op instruments if creation fails.
func Default() *Metrics {
	m, err := New(otel.Meter(Scope))
	if err != nil {
		return &Metrics{}
	}
	return m
}

// Query records one statistics query.
func (m *Metrics) Query(ctx context.Context, name string, start time.Time, err error) {
	if m == nil || m.queries == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrQuery, name),
		attribute.String(AttrOutcome, Outcome(err)))
	m.queries.Add(ctx, 1, attrs)
	m.queryDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
}

// Load records one load attempt.
func (m *Metrics) Load(ctx context.Context, origin string, start time.Time, err error) {
	if m == nil || m.loads == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrOrigin, origin),
		attribute.String(AttrOutcome, Outcome(err)))
	m.loads.Add(ctx, 1, attrs)
	m.loadDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
}

// Outcome is "ok" for a nil error and "error" otherwise.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// Tracer returns the prodstats tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(Scope)
}

// StartSpan starts an internal span with attributes.
func StartSpan(ctx context.Context, name string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}
	return ctx, span
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
