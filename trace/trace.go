// Package trace provides tracing instrumentation for WebDriver sessions.
package trace

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "webdriver.launcher"

// liveSpan represents the active span of a WebDriver session.
//
// A session outlives the calls made on it, so the tracer keeps the span
// for each session to parent the spans of later calls.
type liveSpan struct {
	ctx  context.Context
	span trace.Span
}

// Tracer generates spans for sessions and for the calls made on them.
// Every span carries the tracer metadata as attributes.
type Tracer struct {
	logger logrus.FieldLogger

	trace.Tracer

	metadata []attribute.KeyValue

	liveSpansMu sync.RWMutex
	liveSpans   map[string]*liveSpan
}

// TracerProvider hands out named tracers. Both the SDK providers and
// otel.TraceProvider satisfy it.
type TracerProvider interface {
	Tracer(name string, options ...trace.TracerOption) trace.Tracer
}

// NewTracer creates a new Tracer from the given TracerProvider.
func NewTracer(
	logger logrus.FieldLogger, tp TracerProvider, metadata map[string]string, options ...trace.TracerOption,
) *Tracer {
	return &Tracer{
		logger:    logger,
		Tracer:    tp.Tracer(tracerName, options...),
		metadata:  buildMetadataAttributes(metadata),
		liveSpans: make(map[string]*liveSpan),
	}
}

// NewNoopTracer returns a Tracer that records nothing.
func NewNoopTracer(logger logrus.FieldLogger) *Tracer {
	return NewTracer(logger, noop.NewTracerProvider(), nil)
}

// Start overrides the underlying OTEL tracer method to include the tracer metadata.
func (t *Tracer) Start(
	ctx context.Context, spanName string, opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	opts = append(opts, trace.WithAttributes(t.metadata...))
	return t.Tracer.Start(ctx, spanName, opts...)
}

// GetTraceID returns the trace ID of spanCtx, or an empty string.
func GetTraceID(spanCtx trace.SpanContext) string {
	if spanCtx.HasTraceID() {
		traceID := spanCtx.TraceID()
		return traceID.String()
	}
	return ""
}

// TraceSession records a new liveSpan for sessionID. A previous live
// span for the same session is ended first. The span ends with
// EndSession.
func (t *Tracer) TraceSession(
	ctx context.Context, sessionID string, opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	ls := t.liveSpans[sessionID]
	if ls != nil {
		ls.span.End()
	} else {
		ls = &liveSpan{}
	}

	opts = append(opts, trace.WithAttributes(attribute.String("webdriver.session_id", sessionID)))

	spanName := "session"
	ls.ctx, ls.span = t.Start(ctx, spanName, opts...)
	t.liveSpans[sessionID] = ls

	traceID := GetTraceID(trace.SpanContextFromContext(ls.ctx))
	t.logger.Debugf("TraceSession: spanName: %q traceID: %q sessionID: %q", spanName, traceID, sessionID)

	return ls.ctx, &SpanLogger{Span: ls.span, logger: t.logger, spanName: spanName}
}

// EndSession ends and forgets the live span of sessionID.
func (t *Tracer) EndSession(sessionID string, opts ...trace.SpanEndOption) {
	t.liveSpansMu.Lock()
	defer t.liveSpansMu.Unlock()

	ls := t.liveSpans[sessionID]
	if ls == nil {
		return
	}
	ls.span.End(opts...)
	delete(t.liveSpans, sessionID)
}

// TraceAPICall adds a new span to the liveSpan of sessionID and returns it.
// It is the caller's responsibility to end the generated span.
// Without a liveSpan, the span is parented by whatever span ctx carries.
func (t *Tracer) TraceAPICall(
	ctx context.Context, sessionID string, spanName string, opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	t.liveSpansMu.RLock()
	ls := t.liveSpans[sessionID]
	t.liveSpansMu.RUnlock()

	if ls == nil {
		t.logger.Debugf("TraceAPICall: no live span spanName: %q sessionID: %q", spanName, sessionID)
		sCtx, span := t.Start(ctx, spanName, opts...)

		return sCtx, &SpanLogger{Span: span, logger: t.logger, spanName: spanName}
	}

	traceID := GetTraceID(trace.SpanContextFromContext(ls.ctx))
	t.logger.Debugf("TraceAPICall: with live span spanName: %q traceID: %q sessionID: %q", spanName, traceID, sessionID)
	sCtx, span := t.Start(ls.ctx, spanName, opts...)

	return sCtx, &SpanLogger{Span: span, logger: t.logger, spanName: spanName}
}

// LiveSessions returns the IDs of the sessions with a live span.
func (t *Tracer) LiveSessions() []string {
	t.liveSpansMu.RLock()
	defer t.liveSpansMu.RUnlock()

	ids := make([]string, 0, len(t.liveSpans))
	for id := range t.liveSpans {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func buildMetadataAttributes(metadata map[string]string) []attribute.KeyValue {
	meta := make([]attribute.KeyValue, 0, len(metadata))
	for mk, mv := range metadata {
		meta = append(meta, attribute.String(mk, mv))
	}

	return meta
}

// SpanLogger is a Span that will log the method calls.
type SpanLogger struct {
	trace.Span
	logger   logrus.FieldLogger
	spanName string
}

// SetStatus will log some info before calling the underlying SetStatus.
func (i *SpanLogger) SetStatus(code codes.Code, description string) {
	traceID := GetTraceID(i.SpanContext())
	i.logger.Debugf("SetStatus: spanName: %q traceID: %q code: %q description: %q", i.spanName, traceID, code, description)

	i.Span.SetStatus(code, description)
}

// End will log some info before calling the underlying End.
func (i *SpanLogger) End(options ...trace.SpanEndOption) {
	traceID := GetTraceID(i.SpanContext())
	i.logger.Debugf("End: spanName: %q traceID: %q", i.spanName, traceID)

	i.Span.End(options...)
}

// RecordError will log some info before calling the underlying RecordError.
func (i *SpanLogger) RecordError(err error, options ...trace.EventOption) {
	traceID := GetTraceID(i.SpanContext())
	i.logger.Debugf("RecordError: spanName: %q traceID: %q err: %q", i.spanName, traceID, err)

	i.Span.RecordError(err, options...)
}
