// Package middleware wraps the server's dispatch function with cross-cutting behavior.
// A middleware never returns nil: failures are reported as a Response carrying an exception.
package middleware

import (
	"context"
	"runtime/debug"

	"lrpc/logger"
	"lrpc/message"
)

// HandlerFunc answers one decoded request.
type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件，第一个中间件在最外层
// nil entries are skipped, so optional middlewares can be listed unconditionally.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			if middlewares[i] == nil {
				continue
			}
			next = middlewares[i](next)
		}
		return next
	}
}

var log = logger.For("middleware")

// Run calls next for req and always yields a Response: a panic anywhere below becomes a Panic
// exception, a nil Response an Internal one.
func Run(ctx context.Context, next HandlerFunc, req *message.Request) (resp *message.Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic handling %s.%s: %v\n%s", req.ServiceKey(), req.MethodName, r, debug.Stack())
			resp = message.Failure(req.RequestID, message.KindPanic, "%s.%s panicked: %v", req.ServiceKey(), req.MethodName, r)
		}
	}()

	resp = next(ctx, req)
	if resp == nil {
		resp = message.Failure(req.RequestID, message.KindInternal, "%s.%s: no response produced", req.ServiceKey(), req.MethodName)
	}
	return resp
}
