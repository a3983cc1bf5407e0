package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer makes an in-memory exporter the global span sink until the
// test ends.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs points the default slog logger at a buffer, debug and up.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

func TestEndSpan(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   codes.Code
		wantDesc   string
		wantEvents int
	}{
		{name: "success", wantCode: codes.Ok},
		{name: "failure", err: errors.New("quota exceeded"), wantCode: codes.Error, wantDesc: "quota exceeded", wantEvents: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exp := useTestTracer(t)

			_, span := StartSpan(context.Background(), "chat.send")
			EndSpan(span, tc.err)

			spans := exp.GetSpans()
			if len(spans) != 1 || spans[0].Name != "chat.send" {
				t.Fatalf("spans = %v", spans)
			}
			got := spans[0]
			if got.Status.Code != tc.wantCode || got.Status.Description != tc.wantDesc {
				t.Errorf("status = %+v, want %v %q", got.Status, tc.wantCode, tc.wantDesc)
			}
			if len(got.Events) != tc.wantEvents {
				t.Errorf("events = %v, want %d", got.Events, tc.wantEvents)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	useTestTracer(t)
	logs := captureLogs(t)

	Logger(context.Background()).Info("outside")
	ctx, span := StartSpan(context.Background(), "live.connect")
	Logger(ctx).Info("inside")
	span.End()

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %q", lines)
	}
	if strings.Contains(lines[0], "trace_id") {
		t.Errorf("line without span has ids: %s", lines[0])
	}
	want := "trace_id=" + span.SpanContext().TraceID().String()
	if !strings.Contains(lines[1], want) || !strings.Contains(lines[1], "span_id=") {
		t.Errorf("line = %s, want %s and a span id", lines[1], want)
	}
}
