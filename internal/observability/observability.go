// Package observability wires structured logging and tracing for the memory
// core: a zerolog logger for human/operator-facing events, and an otel
// TracerProvider backed by a span exporter that writes the JSONL records
// consumers aggregate into daily reports (counts, P95 latencies, error
// taxonomies).
package observability

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Operation names the spec requires to appear verbatim in span records.
const (
	OpAgentLoop       = "agent.loop"
	OpMemorySearch    = "memory.search"
	OpMemoryVectorize = "memory.vectorize"
	OpToolExecute     = "tool.execute"
	OpStateTransition = "state.transition"
	OpFeatureHandle   = "feature"
)

// Logger returns a zerolog.Logger writing structured JSON to w.
func Logger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// jsonlExporter writes one JSON line per finished span, append-only.
type jsonlExporter struct {
	mu sync.Mutex
	w  io.Writer
}

type spanRecord struct {
	TraceID   string         `json:"trace_id"`
	SpanID    string         `json:"span_id"`
	Name      string         `json:"name"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	DurationMS float64       `json:"duration_ms"`
	Attrs     map[string]any `json:"attrs,omitempty"`
	Status    string         `json:"status"`
}

// NewJSONLExporter returns an otel sdktrace.SpanExporter writing JSONL
// records of the shape observability consumers (daily report jobs) expect.
func NewJSONLExporter(w io.Writer) sdktrace.SpanExporter {
	return &jsonlExporter{w: w}
}

func (e *jsonlExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	enc := json.NewEncoder(e.w)
	for _, s := range spans {
		attrs := make(map[string]any, len(s.Attributes()))
		for _, kv := range s.Attributes() {
			attrs[string(kv.Key)] = kv.Value.AsInterface()
		}
		rec := spanRecord{
			TraceID:    s.SpanContext().TraceID().String(),
			SpanID:     s.SpanContext().SpanID().String(),
			Name:       s.Name(),
			StartTime:  s.StartTime(),
			EndTime:    s.EndTime(),
			DurationMS: float64(s.EndTime().Sub(s.StartTime()).Microseconds()) / 1000.0,
			Attrs:      attrs,
			Status:     s.Status().Code.String(),
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func (e *jsonlExporter) Shutdown(ctx context.Context) error { return nil }

// NewTracerProvider builds an otel TracerProvider that flushes spans to the
// given writer via NewJSONLExporter, batching to keep the hot path cheap.
func NewTracerProvider(w io.Writer) *sdktrace.TracerProvider {
	exp := NewJSONLExporter(w)
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
}

// Tracer is the handle UCM and its collaborators use to emit spans.
type Tracer struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
	log    zerolog.Logger
}

// NewTracer installs tp as the global otel TracerProvider and returns a
// Tracer that emits spans through tp and logs via logger.
func NewTracer(tp *sdktrace.TracerProvider, logger zerolog.Logger) *Tracer {
	otel.SetTracerProvider(tp)
	return &Tracer{tp: tp, tracer: tp.Tracer("memorycore"), log: logger}
}

// Start begins a span for the named operation, e.g. "agent.loop.classify" or
// "tool.execute.search_memory".
func (t *Tracer) Start(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}

// Log returns the structured logger for non-span events.
func (t *Tracer) Log() zerolog.Logger { return t.log }

// Shutdown flushes any buffered spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.tp.Shutdown(ctx)
}

// OpenJSONLFile is a convenience for cmd/memoryd to create the span sink.
func OpenJSONLFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
