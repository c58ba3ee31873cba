package middleware

import (
	"context"
	"strconv"

	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"github.com/Suhaibinator/SIntercept/pkg/intercept"
	"github.com/Suhaibinator/SIntercept/pkg/metrics"
)

type metricsKey struct{}

type prometheusMetrics struct {
	intercept.Base
	m *metrics.Metrics
}

// Metrics creates an interceptor that records request count, latency, response
// size and in-flight requests into m. Overridden responses are recorded too.
func Metrics(m *metrics.Metrics) intercept.Interceptor {
	return &prometheusMetrics{m: m}
}

func (p *prometheusMetrics) BeforeRequest(_ context.Context, req *intercept.Request) (intercept.Result, error) {
	p.m.RequestsInFlight.Inc()
	req.Set(metricsKey{}, newResponseInfo())
	return intercept.Continue(), nil
}

func (p *prometheusMetrics) Send(ctx context.Context, req *intercept.Request, msg exchange.Message, next exchange.Send) error {
	if v, ok := req.Get(metricsKey{}); ok {
		v.(*responseInfo).observe(msg)
	}
	return next(ctx, msg)
}

func (p *prometheusMetrics) AfterRequest(_ context.Context, req *intercept.Request) error {
	v, ok := req.Get(metricsKey{})
	if !ok {
		return nil
	}
	p.m.RequestsInFlight.Dec()

	status, bytes, duration := v.(*responseInfo).snapshot()
	method := metrics.NormalizeMethod(req.Method())
	code := strconv.Itoa(status)

	p.m.RequestsTotal.WithLabelValues(method, code).Inc()
	p.m.RequestDuration.WithLabelValues(method, code).Observe(duration.Seconds())
	p.m.ResponseBytes.WithLabelValues(method, code).Add(float64(bytes))
	return nil
}
