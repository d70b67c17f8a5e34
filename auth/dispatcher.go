package auth

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/toolgate/observe"
)

// ForwardingTransport attaches the bearer token bound to each request's
// context as its Authorization header.
//
// The token is read at send time from req.Context(), so one transport can
// serve any number of concurrent callers without sharing credentials.
// Requests whose context carries no token are sent unchanged.
type ForwardingTransport struct {
	// Base is the underlying transport. Default: http.DefaultTransport.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *ForwardingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, ok := TokenFromContext(req.Context())
	if !ok {
		return t.base().RoundTrip(req)
	}

	// RoundTrip must not modify the caller's request.
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return t.base().RoundTrip(out)
}

func (t *ForwardingTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// DispatcherOptions configures NewDispatcher.
type DispatcherOptions struct {
	// Timeout bounds every outbound call.
	// Default: 30 seconds
	Timeout time.Duration

	// Base is the pooled transport under the forwarding layer.
	// Default: a clone of http.DefaultTransport.
	Base http.RoundTripper

	Metrics observe.Metrics
	Tracer  observe.Tracer
}

// NewDispatcher builds the single shared outbound client. Construct it once
// and reuse it for all requests.
func NewDispatcher(opts DispatcherOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Base == nil {
		opts.Base = http.DefaultTransport.(*http.Transport).Clone()
	}

	var rt http.RoundTripper = &ForwardingTransport{Base: opts.Base}
	if opts.Metrics != nil || opts.Tracer != nil {
		rt = &instrumentedTransport{
			next:    rt,
			metrics: orNopMetrics(opts.Metrics),
			tracer:  orNopTracer(opts.Tracer),
		}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
	}
}

type instrumentedTransport struct {
	next    http.RoundTripper
	metrics observe.Metrics
	tracer  observe.Tracer
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.StartSpan(req.Context(), observe.SpanDispatch, trace.SpanKindClient,
		attribute.String("http.request.method", req.Method),
		attribute.String("server.address", req.URL.Host),
	)
	start := time.Now()

	resp, err := t.next.RoundTrip(req.WithContext(ctx))

	status := 0
	if resp != nil {
		status = resp.StatusCode
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	t.tracer.EndSpan(span, err)
	t.metrics.RecordDispatch(ctx, status, time.Since(start), err)
	return resp, err
}

func orNopMetrics(m observe.Metrics) observe.Metrics {
	if m == nil {
		return observe.NopMetrics()
	}
	return m
}

func orNopTracer(t observe.Tracer) observe.Tracer {
	if t == nil {
		return observe.NopTracer()
	}
	return t
}
