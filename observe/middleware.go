package observe

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Middleware instruments inbound HTTP requests and tool calls with tracing,
// metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: spans are attached to the request context passed downstream.
//   - Errors: errors from wrapped functions are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Tracer returns the middleware's tracer.
func (m *Middleware) Tracer() Tracer { return m.tracer }

// Metrics returns the middleware's metrics.
func (m *Middleware) Metrics() Metrics { return m.metrics }

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger { return m.logger }

// Handler wraps next with a server span, request metrics and an access log
// entry. The route label is the chi route pattern, so it must run inside a
// chi router.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := m.tracer.StartSpan(r.Context(), "HTTP "+r.Method, trace.SpanKindServer,
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(ctx)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		duration := time.Since(start)

		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		var spanErr error
		if status >= http.StatusInternalServerError {
			spanErr = httpStatusError(status)
		}
		m.tracer.EndSpan(span, spanErr)
		m.metrics.RecordRequest(ctx, r.Method, route, status, duration)

		fields := []Field{
			{Key: "method", Value: r.Method},
			{Key: "route", Value: route},
			{Key: "status", Value: status},
			{Key: "duration_ms", Value: ms(duration)},
		}
		if status >= http.StatusInternalServerError {
			m.logger.Error(ctx, "request failed", fields...)
		} else {
			m.logger.Info(ctx, "request completed", fields...)
		}
	})
}

// Track runs fn as the tool call named tool, recording a span, metrics and a
// log entry.
func (m *Middleware) Track(ctx context.Context, tool string, kind trace.SpanKind, fn func(context.Context) error) error {
	ctx, span := m.tracer.StartSpan(ctx, SpanToolCall+"."+tool, kind, attribute.String("tool.name", tool))
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	m.tracer.EndSpan(span, err)
	m.metrics.RecordToolCall(ctx, tool, duration, err)

	fields := []Field{
		{Key: "tool", Value: tool},
		{Key: "duration_ms", Value: ms(duration)},
	}
	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err})
		m.logger.Error(ctx, "tool call failed", fields...)
	} else {
		m.logger.Debug(ctx, "tool call completed", fields...)
	}
	return err
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return "http status " + http.StatusText(int(e))
}
