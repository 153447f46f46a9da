package middleware

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"lrpc/message"
)

func LoggingMiddleware(log *logrus.Entry) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := Run(ctx, next, req)

			entry := log.WithFields(logrus.Fields{
				"request":  req.RequestID,
				"service":  req.ServiceKey(),
				"method":   req.MethodName,
				"duration": time.Since(start),
			})
			if resp.HasException() {
				entry.Warnf("call failed: %v", resp.Exception)
			} else {
				entry.Debug("call done")
			}
			return resp
		}
	}
}
