package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitFallsBackWhenExporterUnavailable(t *testing.T) {
	restore := setExporterFactoryForTest(func(context.Context, string) (sdktrace.SpanExporter, error) {
		return nil, errors.New("connection refused")
	})
	defer restore()

	shutdown, err := Init(context.Background())
	if err != nil {
		t.Fatalf("init with failing exporter must fall back, got %v", err)
	}
	shutdown()
	shutdown() // idempotent
}

func TestStderrSpanExporterHandlesNilWriter(t *testing.T) {
	t.Parallel()

	var exporter *stderrSpanExporter
	if err := exporter.ExportSpans(context.Background(), nil); err != nil {
		t.Fatalf("nil exporter export: %v", err)
	}

	withOut := &stderrSpanExporter{out: &bytes.Buffer{}}
	if err := withOut.ExportSpans(context.Background(), nil); err != nil {
		t.Fatalf("empty span export: %v", err)
	}
	if err := withOut.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
