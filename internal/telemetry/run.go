package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BuildRunRequest defines telemetry metadata for one acknowledged build.
type BuildRunRequest struct {
	Root        string
	RunID       string
	Incremental bool
	Wait        bool
}

// BuildRun tracks one build.run span from server acknowledgement to outcome.
type BuildRun struct {
	span      trace.Span
	startedAt time.Time

	mu       sync.Mutex
	records  int
	failures int
	ended    bool
}

// StartBuildRun opens a build.run span. Callers must End it exactly once.
func StartBuildRun(ctx context.Context, req BuildRunRequest) (context.Context, *BuildRun) {
	if ctx == nil {
		ctx = context.Background()
	}

	spanCtx, span := otel.Tracer("drydock/client").Start(
		ctx,
		"build.run",
		trace.WithAttributes(
			attribute.String("root", req.Root),
			attribute.String("run_id", req.RunID),
			attribute.Bool("incremental", req.Incremental),
			attribute.Bool("wait", req.Wait),
		),
	)

	return spanCtx, &BuildRun{
		span:      span,
		startedAt: time.Now(),
	}
}

// RecordStreamRecord counts one consumed record, flagging failures.
func (r *BuildRun) RecordStreamRecord(failure bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return
	}
	r.records++
	if failure {
		r.failures++
	}
}

// End closes the span with the invocation's exit code. Ending twice is a
// no-op.
func (r *BuildRun) End(exitCode int) {
	if r == nil || r.span == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return
	}
	r.ended = true

	r.span.SetAttributes(
		attribute.Int("stream.records", r.records),
		attribute.Int("stream.failures", r.failures),
		attribute.Int("exit_code", exitCode),
		attribute.Int64("duration_ms", time.Since(r.startedAt).Milliseconds()),
	)
	if exitCode == 0 {
		r.span.SetStatus(codes.Ok, "")
	} else {
		r.span.SetStatus(codes.Error, "build finished with a non-zero exit code")
	}
	r.span.End()
}
