package middleware

import (
	"context"

	"github.com/VictoriaMetrics/metrics"
	"golang.org/x/time/rate"

	"lrpc/message"
)

// RateLimitMiddleware admits r requests per second with bursts of up to burst, shared by all
// services of the server. Rejected requests are answered with a RateLimited exception and are
// never dispatched.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	rejected := metrics.GetOrCreateCounter(`lrpc_server_rate_limited_total`)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !limiter.Allow() {
				rejected.Inc()
				return message.Failure(req.RequestID, message.KindRateLimited,
					"rate limit exceeded for %s (%g req/s, burst %d)", req.ServiceKey(), r, burst)
			}
			return next(ctx, req)
		}
	}
}
