package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withTestTracer installs an in-memory tracer provider as the global one
// for the duration of the test and returns its exporter.
func withTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestStartSpan_RecordsNamedSpan(t *testing.T) {
	exp := withTestTracer(t)

	ctx, span := StartSpan(context.Background(), "resolve_track")
	if CorrelationID(ctx) == "" {
		t.Error("span context carries no trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "resolve_track" {
		t.Errorf("span name = %q, want resolve_track", spans[0].Name)
	}
}

func TestCorrelationID(t *testing.T) {
	withTestTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without a span = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "resolve_track")
	defer span.End()

	id := CorrelationID(ctx)
	if len(id) != 32 {
		t.Fatalf("trace ID %q has length %d, want 32 hex chars", id, len(id))
	}
	if strings.Trim(id, "0123456789abcdef") != "" {
		t.Errorf("trace ID %q is not lowercase hex", id)
	}

	ctx2, span2 := StartSpan(context.Background(), "resolve_track")
	defer span2.End()
	if CorrelationID(ctx2) == id {
		t.Error("two independent spans share one trace ID")
	}
}

// capturedLog redirects the default slog logger into a buffer.
func capturedLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestLogger_CorrelatesWithActiveSpan(t *testing.T) {
	withTestTracer(t)
	buf := capturedLog(t)

	ctx, span := StartSpan(context.Background(), "resolve_track")
	defer span.End()

	Logger(ctx).Info("probing candidate", "rank", 1)

	out := buf.String()
	if !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Errorf("log line lacks trace correlation: %s", out)
	}
}

func TestLogger_PlainWithoutSpan(t *testing.T) {
	buf := capturedLog(t)

	Logger(context.Background()).Info("no active span")

	if out := buf.String(); strings.Contains(out, "trace_id") {
		t.Errorf("log line has a trace_id without a span: %s", out)
	}
}
