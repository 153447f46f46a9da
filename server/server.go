// Package server implements the RPC dispatcher: explicit service registration, registry
// publishing, one request per connection, middleware chain and graceful shutdown.
//
// Request processing pipeline:
//
//	Accept conn → serveConn (one goroutine per connection)
//	  → ReadFrame → DecodeRequest → Middleware Chain → dispatch (reflect.Call)
//	  → EncodeResponse → WriteFrame → close
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"lrpc/codec"
	"lrpc/config"
	"lrpc/logger"
	"lrpc/message"
	"lrpc/middleware"
	"lrpc/registry"
)

var log = logger.For("server")

var (
	ErrServerStarted   = errors.New("server already started")
	ErrServerClosed    = errors.New("server closed")
	ErrDuplicateKey    = errors.New("service key already registered")
	ErrNoServices      = errors.New("no services registered")
	ErrNoAdvertiseAddr = errors.New("cannot publish an unspecified listen address, set AdvertiseAddr")
)

// Exposed binds an implementation to the interface name and version it is published under.
type Exposed struct {
	InterfaceName string
	Version       string
	Impl          any
}

// Expose names impl after the service interface T, e.g. Expose[hello.HelloService](impl, "").
func Expose[T any](impl T, version string) Exposed {
	return Exposed{InterfaceName: codec.NameOf[T](), Version: version, Impl: impl}
}

// Server is the RPC server that registers services and handles incoming requests.
type Server struct {
	conf  config.ServerConfig
	codec codec.Codec
	reg   registry.Registry // nil means nothing is published

	mu          sync.RWMutex
	services    map[string]*service     // service key → service, read-only once started
	middlewares []middleware.Middleware // Use()d middlewares, applied after the built-in ones
	handler     middleware.HandlerFunc  // middleware(middleware(...(dispatch)))

	listener      net.Listener
	advertiseAddr string   // guarded by mu
	published     []string // service keys successfully published, guarded by mu

	started  atomic.Bool
	shutdown atomic.Bool // Set during shutdown to suppress Accept errors
	ready    chan struct{}
	wg       sync.WaitGroup // Tracks open connections for graceful shutdown

	connMu sync.Mutex
	conns  map[*conn]struct{}
}

// NewServer creates a server that publishes its services to reg. reg may be nil.
func NewServer(conf config.ServerConfig, reg registry.Registry) (*Server, error) {
	if conf.MaxFrameSize <= 0 {
		return nil, fmt.Errorf("invalid max frame size %d", conf.MaxFrameSize)
	}
	return &Server{
		conf:     conf,
		codec:    codec.GetCodec(conf.Codec),
		reg:      reg,
		services: make(map[string]*service),
		ready:    make(chan struct{}),
		conns:    make(map[*conn]struct{}),
	}, nil
}

// Register exposes impl under the service key of interfaceName and version.
// All exported methods with a supported signature become callable.
func (svr *Server) Register(interfaceName, version string, impl any) error {
	if interfaceName == "" {
		return fmt.Errorf("rpc: empty interface name")
	}
	key := message.ServiceKey(interfaceName, version)

	svc, err := newService(key, impl)
	if err != nil {
		return err
	}

	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.started.Load() {
		return ErrServerStarted
	}
	if _, dup := svr.services[key]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	svr.services[key] = svc
	log.Debugf("registered %s (%s)", key, svc.typ)
	return nil
}

// RegisterServices registers every entry, stopping at the first failure.
func (svr *Server) RegisterServices(exposed []Exposed) error {
	for _, e := range exposed {
		if err := svr.Register(e.InterfaceName, e.Version, e.Impl); err != nil {
			return err
		}
	}
	return nil
}

// Use registers a middleware. Middlewares are applied in the order they are added,
// inside the built-in metrics, logging, timeout and rate limit middlewares.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	svr.middlewares = append(svr.middlewares, mw)
}

// Keys returns the registered service keys.
func (svr *Server) Keys() []string {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	keys := make([]string, 0, len(svr.services))
	for k := range svr.services {
		keys = append(keys, k)
	}
	return keys
}

// Addr returns the listener address once serving, nil before.
func (svr *Server) Addr() net.Addr {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// Ready is closed once every service is published and the accept loop runs.
func (svr *Server) Ready() <-chan struct{} {
	return svr.ready
}

// ListenAndServe listens on conf.Endpoint and serves.
func (svr *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", svr.conf.Endpoint)
	if err != nil {
		return fmt.Errorf("listen %s: %w", svr.conf.Endpoint, err)
	}
	return svr.Serve(l)
}

// Serve publishes every registered service at the advertise address and runs the accept loop
// on l until Shutdown. It returns nil after a Shutdown.
func (svr *Server) Serve(l net.Listener) error {
	if !svr.started.CompareAndSwap(false, true) {
		l.Close()
		return ErrServerStarted
	}
	if svr.shutdown.Load() {
		l.Close()
		return ErrServerClosed
	}

	svr.mu.Lock()
	if len(svr.services) == 0 {
		svr.mu.Unlock()
		l.Close()
		return ErrNoServices
	}
	svr.listener = l
	// Build the middleware chain once at startup (not per-request)
	//   Chain(A, B, C)(handler) → A(B(C(handler)))
	svr.handler = middleware.Chain(svr.chain()...)(svr.dispatch)
	svr.mu.Unlock()

	advertise, err := svr.resolveAdvertise(l.Addr())
	if err != nil {
		l.Close()
		return err
	}
	svr.mu.Lock()
	svr.advertiseAddr = advertise
	svr.mu.Unlock()

	if err := svr.publish(); err != nil {
		svr.unpublish()
		l.Close()
		return err
	}
	// Shutdown may have run while publish was still registering; whatever was added after
	// its unpublish must not outlive the listener.
	if svr.shutdown.Load() {
		svr.unpublish()
		l.Close()
		return ErrServerClosed
	}

	log.Infof("serving %d service(s) on %s, advertised as %s", len(svr.Keys()), l.Addr(), advertise)
	close(svr.ready)

	// Accept loop: one goroutine per connection
	for {
		nc, err := l.Accept()
		if err != nil {
			// listener.Close() during shutdown makes Accept fail, that is not an error
			if svr.shutdown.Load() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Warnf("accept: %v", err)
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return err
		}

		c := newConn(nc)
		if !svr.trackConn(c) {
			nc.Close()
			continue
		}
		go svr.serveConn(c)
	}
}

func (svr *Server) chain() []middleware.Middleware {
	var timeout, limit middleware.Middleware
	if svr.conf.RequestTimeout > 0 {
		timeout = middleware.TimeOutMiddleware(svr.conf.RequestTimeout)
	}
	if svr.conf.RateLimit > 0 {
		limit = middleware.RateLimitMiddleware(svr.conf.RateLimit, max(svr.conf.RateBurst, 1))
	}
	mws := []middleware.Middleware{
		middleware.MetricsMiddleware(),
		middleware.LoggingMiddleware(log),
		timeout,
		limit,
	}
	return append(mws, svr.middlewares...)
}

// resolveAdvertise picks the address published to the registry. A wildcard listen address
// (":8080" → "[::]:8080") is not routable and needs an explicit AdvertiseAddr.
func (svr *Server) resolveAdvertise(listenAddr net.Addr) (string, error) {
	if svr.conf.AdvertiseAddr != "" {
		if _, _, err := registry.ParseAddress(svr.conf.AdvertiseAddr); err != nil {
			return "", err
		}
		return svr.conf.AdvertiseAddr, nil
	}
	if tcp, ok := listenAddr.(*net.TCPAddr); ok && tcp.IP.IsUnspecified() && svr.reg != nil {
		return "", ErrNoAdvertiseAddr
	}
	return listenAddr.String(), nil
}

// publish registers every service key in the registry. It stops early once Shutdown began.
func (svr *Server) publish() error {
	if svr.reg == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svr.mu.RLock()
	addr := svr.advertiseAddr
	svr.mu.RUnlock()

	for _, key := range svr.Keys() {
		if svr.shutdown.Load() {
			return nil
		}
		if err := svr.reg.Register(ctx, key, registry.ServiceInstance{Addr: addr}); err != nil {
			return fmt.Errorf("publish %s: %w", key, err)
		}
		svr.mu.Lock()
		svr.published = append(svr.published, key)
		svr.mu.Unlock()
		log.WithFields(logrus.Fields{"service": key, "addr": addr}).Info("published")
	}
	return nil
}

// unpublish removes what publish created, logging failures.
func (svr *Server) unpublish() {
	if svr.reg == nil {
		return
	}
	svr.mu.Lock()
	keys, addr := svr.published, svr.advertiseAddr
	svr.published = nil
	svr.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, key := range keys {
		if err := svr.reg.Deregister(ctx, key, addr); err != nil {
			log.Warnf("deregister %s: %v", key, err)
		}
	}
}

// Shutdown performs graceful shutdown:
//  1. Set shutdown flag (so Accept error is recognized as intentional and a publish
//     still in progress is undone by Serve)
//  2. Deregister all published services (clients stop routing to this server)
//  3. Close the listener and every connection still waiting for its request
//  4. Wait for in-flight requests to finish (with timeout)
func (svr *Server) Shutdown(timeout time.Duration) error {
	if !svr.shutdown.CompareAndSwap(false, true) {
		return ErrServerClosed
	}

	svr.mu.RLock()
	l := svr.listener
	svr.mu.RUnlock()
	if l == nil {
		return nil // never served
	}

	svr.unpublish()
	l.Close()
	svr.closeIdleConns()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}

// dispatch is the innermost handler: find the service, find the method, call it.
func (svr *Server) dispatch(ctx context.Context, req *message.Request) *message.Response {
	key := req.ServiceKey()

	svr.mu.RLock()
	svc, ok := svr.services[key]
	svr.mu.RUnlock()
	if !ok {
		return message.Failure(req.RequestID, message.KindServiceNotFound, "Cannot find service bean by key: %s", key)
	}

	mt, ok := svc.lookup(req.MethodName, req.ParameterTypes)
	if !ok {
		return message.Failure(req.RequestID, message.KindMethodNotFound,
			"%s has no method %s(%s)", key, req.MethodName, joinTypes(req.ParameterTypes))
	}
	return svc.call(ctx, mt, req)
}
