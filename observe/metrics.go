package observe

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics records the counters and histograms of the credential path.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordVerification counts one token verification by outcome.
	RecordVerification(ctx context.Context, outcome string)

	// RecordKeyFetch records one remote key-set fetch.
	RecordKeyFetch(ctx context.Context, duration time.Duration, err error)

	// RecordDispatch records one outbound call made by the dispatcher.
	// status is 0 when no response was received.
	RecordDispatch(ctx context.Context, status int, duration time.Duration, err error)

	// RecordRequest records one inbound HTTP request.
	RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration)

	// RecordToolCall records one tool invocation, client or server side.
	RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	verifyCount    metric.Int64Counter
	keyFetchCount  metric.Int64Counter
	keyFetchHist   metric.Float64Histogram
	dispatchCount  metric.Int64Counter
	dispatchHist   metric.Float64Histogram
	requestCount   metric.Int64Counter
	requestHist    metric.Float64Histogram
	toolCallCount  metric.Int64Counter
	toolCallErrors metric.Int64Counter
	toolCallHist   metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.verifyCount, "auth.verify.total", "Token verifications by outcome", "{verification}"},
		{&m.keyFetchCount, "auth.keyset.fetch.total", "Remote key set fetches", "{fetch}"},
		{&m.dispatchCount, "dispatch.total", "Outbound calls made by the dispatcher", "{call}"},
		{&m.requestCount, "http.server.requests", "Inbound HTTP requests", "{request}"},
		{&m.toolCallCount, "tool.call.total", "Tool calls", "{call}"},
		{&m.toolCallErrors, "tool.call.errors", "Failed tool calls", "{error}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.keyFetchHist, "auth.keyset.fetch.duration_ms", "Remote key set fetch duration in milliseconds"},
		{&m.dispatchHist, "dispatch.duration_ms", "Outbound call duration in milliseconds"},
		{&m.requestHist, "http.server.duration_ms", "Inbound request duration in milliseconds"},
		{&m.toolCallHist, "tool.call.duration_ms", "Tool call duration in milliseconds"},
	}
	for _, h := range histograms {
		*h.dst, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("ms"))
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func resultAttr(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("result", "error")
	}
	return attribute.String("result", "ok")
}

func (m *metricsImpl) RecordVerification(ctx context.Context, outcome string) {
	m.verifyCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metricsImpl) RecordKeyFetch(ctx context.Context, duration time.Duration, err error) {
	opt := metric.WithAttributes(resultAttr(err))
	m.keyFetchCount.Add(ctx, 1, opt)
	m.keyFetchHist.Record(ctx, ms(duration), opt)
}

func (m *metricsImpl) RecordDispatch(ctx context.Context, status int, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("status", strconv.Itoa(status)),
		resultAttr(err),
	)
	m.dispatchCount.Add(ctx, 1, opt)
	m.dispatchHist.Record(ctx, ms(duration), opt)
}

func (m *metricsImpl) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.requestCount.Add(ctx, 1, opt)
	m.requestHist.Record(ctx, ms(duration), opt)
}

func (m *metricsImpl) RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("tool", tool))
	m.toolCallCount.Add(ctx, 1, opt)
	if err != nil {
		m.toolCallErrors.Add(ctx, 1, opt)
	}
	m.toolCallHist.Record(ctx, ms(duration), opt)
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}
