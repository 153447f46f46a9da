package client

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"lrpc/codec"
	"lrpc/config"
	"lrpc/discovery"
	"lrpc/loadbalance"
	"lrpc/message"
	"lrpc/registry"
)

// Proxy turns method calls on remote services into Requests.
type Proxy struct {
	client *Client
	disc   discovery.Discoverer
	reg    registry.Registry // owned registry, closed by Close; nil if none
}

// NewProxy combines a Client with a Discoverer.
func NewProxy(client *Client, disc discovery.Discoverer) *Proxy {
	return &Proxy{client: client, disc: disc}
}

// Open builds a Proxy from conf: a fixed Address resolves every service to it, otherwise the
// configured registry and balancer are used. Close releases the registry.
func Open(conf config.ClientConfig) (*Proxy, error) {
	client := NewClient(conf)
	if conf.Address != "" {
		if _, _, err := registry.ParseAddress(conf.Address); err != nil {
			return nil, err
		}
		return NewProxy(client, discovery.Static(conf.Address)), nil
	}

	bal, err := loadbalance.New(conf.Balancer)
	if err != nil {
		return nil, err
	}
	reg, err := registry.Open(conf.Registry)
	if err != nil {
		return nil, err
	}
	p := NewProxy(client, discovery.New(reg, bal))
	p.reg = reg
	return p, nil
}

func (p *Proxy) Close() error {
	if p.reg == nil {
		return nil
	}
	return p.reg.Close()
}

// Call invokes method on the service identified by interfaceName and version. Each argument's
// dynamic type determines the parameter type the server matches against, so untyped nil
// arguments are rejected.
//
// It returns the remote result, a *ResolutionError when no instance is found, a
// *TransportError when the round trip fails, or the *message.RemoteError sent by the server.
func (p *Proxy) Call(ctx context.Context, interfaceName, version, method string, args ...any) (any, error) {
	req, err := newRequest(interfaceName, version, method, args)
	if err != nil {
		return nil, err
	}
	key := req.ServiceKey()

	start := time.Now()
	addr, err := p.disc.Discover(ctx, key)
	if err != nil {
		observe(key, "resolution", start)
		return nil, &ResolutionError{ServiceKey: key, Err: err}
	}

	resp, err := p.client.Send(ctx, addr, req)
	if err != nil {
		observe(key, "transport", start)
		return nil, err
	}
	if resp.HasException() {
		observe(key, string(resp.Exception.Kind), start)
		return nil, resp.Exception
	}
	observe(key, "", start)
	return resp.Result, nil
}

// Service returns a Stub bound to one service key.
func (p *Proxy) Service(interfaceName, version string) *Stub {
	return &Stub{proxy: p, interfaceName: interfaceName, version: version}
}

// ServiceOf is Service named after the service interface T.
func ServiceOf[T any](p *Proxy, version string) *Stub {
	return p.Service(codec.NameOf[T](), version)
}

// Stub calls methods of one remote service.
type Stub struct {
	proxy         *Proxy
	interfaceName string
	version       string
}

func (s *Stub) Call(ctx context.Context, method string, args ...any) (any, error) {
	return s.proxy.Call(ctx, s.interfaceName, s.version, method, args...)
}

// Invoke calls method through s and converts the result to T. T is registered with the
// decoder first, so results of user-defined types decode to T rather than failing as unknown.
func Invoke[T any](ctx context.Context, s *Stub, method string, args ...any) (T, error) {
	var zero T
	if t := reflect.TypeFor[T](); t.Kind() != reflect.Interface {
		if err := codec.RegisterType(t); err != nil {
			return zero, err
		}
	}

	res, err := s.Call(ctx, method, args...)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%s.%s returned %T, want %T", message.ServiceKey(s.interfaceName, s.version), method, res, zero)
	}
	return v, nil
}

var errUntypedNil = errors.New("untyped nil argument")

func newRequest(interfaceName, version, method string, args []any) (*message.Request, error) {
	req := &message.Request{
		RequestID:      message.NewRequestID(),
		InterfaceName:  interfaceName,
		ServiceVersion: version,
		MethodName:     method,
		ParameterTypes: make([]string, len(args)),
		Parameters:     args,
	}
	for i, a := range args {
		if a == nil {
			return nil, fmt.Errorf("%s.%s argument %d: %w", interfaceName, method, i, errUntypedNil)
		}
		name, err := codec.TypeNameOf(a)
		if err != nil {
			return nil, fmt.Errorf("%s.%s argument %d: %w", interfaceName, method, i, err)
		}
		req.ParameterTypes[i] = name
	}
	return req, req.Validate()
}

// observe records one call in the default VictoriaMetrics set. failure is empty on success.
func observe(serviceKey, failure string, start time.Time) {
	metrics.GetOrCreateHistogram(fmt.Sprintf(`lrpc_client_call_duration_seconds{service=%q}`, serviceKey)).Update(time.Since(start).Seconds())
	if failure != "" {
		metrics.GetOrCreateCounter(fmt.Sprintf(`lrpc_client_errors_total{service=%q,kind=%q}`, serviceKey, failure)).Inc()
	}
}
