package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"lrpc/message"
)

// MetricsMiddleware records per-method call counts, failures by kind and latency in the
// default VictoriaMetrics set:
//
//	lrpc_server_requests_total{service,method}
//	lrpc_server_errors_total{service,method,kind}
//	lrpc_server_request_duration_seconds{service,method}
func MetricsMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := Run(ctx, next, req)

			labels := fmt.Sprintf(`service=%q,method=%q`, req.ServiceKey(), req.MethodName)
			metrics.GetOrCreateCounter(`lrpc_server_requests_total{` + labels + `}`).Inc()
			metrics.GetOrCreateHistogram(`lrpc_server_request_duration_seconds{` + labels + `}`).Update(time.Since(start).Seconds())
			if resp.HasException() {
				metrics.GetOrCreateCounter(fmt.Sprintf(`lrpc_server_errors_total{%s,kind=%q}`, labels, resp.Exception.Kind)).Inc()
			}
			return resp
		}
	}
}
