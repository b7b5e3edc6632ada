package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewAndRecord(t *testing.T) {
	m, err := New(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	m.Query(ctx, "category_stats", time.Now(), nil)
	m.Load(ctx, "cache", time.Now(), errors.New("boom"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Query(context.Background(), "x", time.Now(), nil)

	(&Metrics{}).Load(context.Background(), "remote", time.Now(), nil)
}

func TestOutcome(t *testing.T) {
	if Outcome(nil) != "ok" || Outcome(errors.New("x")) != "error" {
		t.Error("unexpected outcome labels")
	}
}

func TestSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	if ctx == nil || span == nil {
		t.Fatal("expected span")
	}
	EndSpan(span, errors.New("failed"))
}
