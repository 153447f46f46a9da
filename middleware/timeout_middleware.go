package middleware

import (
	"context"
	"time"

	"lrpc/message"
)

// TimeOutMiddleware answers with a Timeout exception when next takes longer than timeout.
// The late call keeps running with a cancelled context; its result is dropped.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- Run(ctx, next, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.Failure(req.RequestID, message.KindTimeout,
					"%s.%s timed out after %s", req.ServiceKey(), req.MethodName, timeout)
			}
		}
	}
}
