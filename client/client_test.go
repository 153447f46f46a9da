package client

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"lrpc/config"
	"lrpc/discovery"
	"lrpc/message"
	"lrpc/registry"
	"lrpc/server"
	"lrpc/transport"
)

type Args struct {
	A, B int
}

type Point struct {
	X, Y int
	Tag  string
}

type Arith interface {
	Add(args Args) int
}

type arith struct{}

func (a *arith) Add(args Args) int {
	return args.A + args.B
}

func (a *arith) Div(args Args) (int, error) {
	if args.B == 0 {
		return 0, errors.New("divide by zero")
	}
	return args.A / args.B, nil
}

func (a *arith) Move(p Point, dx int) *Point {
	return &Point{X: p.X + dx, Y: p.Y, Tag: p.Tag}
}

func (a *arith) Sleep(ms int) int {
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return ms
}

// startServer serves arith under the Arith interface name and publishes it to reg.
func startServer(t *testing.T, reg registry.Registry, version string) string {
	t.Helper()
	svr, err := server.NewServer(config.DefaultServerConfig(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if err := svr.RegisterServices([]server.Exposed{server.Expose[Arith](&arith{}, version)}); err != nil {
		t.Fatal(err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go svr.Serve(l)
	select {
	case <-svr.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server not ready")
	}
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return l.Addr().String()
}

func TestSend(t *testing.T) {
	addr := startServer(t, nil, "")

	c := NewClient(config.DefaultClientConfig())
	req, err := newRequest("lrpc/client.Arith", "", "Add", []any{Args{1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Send(context.Background(), addr, req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.RequestID != req.RequestID || resp.Result != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSendMalformedAddress(t *testing.T) {
	c := NewClient(config.DefaultClientConfig())
	req, _ := newRequest("X", "", "M", nil)

	for _, addr := range []string{"localhost", "localhost:0", "localhost:99999", ""} {
		_, err := c.Send(context.Background(), addr, req)
		var te *TransportError
		if !errors.As(err, &te) || te.Op != OpAddress {
			t.Fatalf("%q: expect address error, got %v", addr, err)
		}
	}
}

func TestSendRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	c := NewClient(config.DefaultClientConfig())
	req, _ := newRequest("X", "", "M", nil)
	_, err = c.Send(context.Background(), addr, req)
	var te *TransportError
	if !errors.As(err, &te) || te.Op != transport.OpDial || te.Addr != addr {
		t.Fatalf("expect dial error for %s, got %v", addr, err)
	}
}

func TestCallTimeout(t *testing.T) {
	addr := startServer(t, nil, "")

	conf := config.DefaultClientConfig()
	conf.CallTimeout = 100 * time.Millisecond
	conf.Address = addr
	p, err := Open(conf)
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err = ServiceOf[Arith](p, "").Call(context.Background(), "Sleep", 1000)
	var te *TransportError
	if !errors.As(err, &te) || te.Op != transport.OpTimeout {
		t.Fatalf("expect timeout, got %v", err)
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Fatal("call timeout not honored")
	}
}

func TestCallCancel(t *testing.T) {
	addr := startServer(t, nil, "")

	conf := config.DefaultClientConfig()
	conf.Address = addr
	p, err := Open(conf)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	_, err = ServiceOf[Arith](p, "").Call(ctx, "Sleep", 1000)
	var te *TransportError
	if !errors.As(err, &te) || te.Op != transport.OpCancel {
		t.Fatalf("expect cancel, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expect context.Canceled, got %v", err)
	}
}

func TestProxyWithRegistry(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	startServer(t, reg, "")
	startServer(t, reg, "")

	p := NewProxy(NewClient(config.DefaultClientConfig()), discovery.New(reg, nil))
	stub := ServiceOf[Arith](p, "")

	for i := 0; i < 10; i++ {
		sum, err := Invoke[int](context.Background(), stub, "Add", Args{i, 1})
		if err != nil {
			t.Fatal(err)
		}
		if sum != i+1 {
			t.Fatalf("expect %d, got %d", i+1, sum)
		}
	}
}

func TestResolutionError(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	startServer(t, reg, "v1")

	p := NewProxy(NewClient(config.DefaultClientConfig()), discovery.New(reg, nil))

	// Published under Arith-v1 only
	_, err := ServiceOf[Arith](p, "").Call(context.Background(), "Add", Args{1, 2})
	var re *ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expect ResolutionError, got %v", err)
	}
	if !errors.Is(err, registry.ErrNotFound) || re.ServiceKey != "lrpc/client.Arith" {
		t.Fatalf("unexpected resolution error %v", err)
	}

	res, err := ServiceOf[Arith](p, "v1").Call(context.Background(), "Add", Args{1, 2})
	if err != nil || res != 3 {
		t.Fatalf("expect 3, got %v %v", res, err)
	}
}

func TestRemoteError(t *testing.T) {
	addr := startServer(t, nil, "")
	p := NewProxy(NewClient(config.DefaultClientConfig()), discovery.Static(addr))
	stub := ServiceOf[Arith](p, "")

	_, err := Invoke[int](context.Background(), stub, "Div", Args{1, 0})
	var remote *message.RemoteError
	if !errors.As(err, &remote) || remote.Kind != message.KindApplication {
		t.Fatalf("expect application error, got %v", err)
	}
	if !strings.Contains(err.Error(), "divide by zero") {
		t.Fatalf("message lost: %v", err)
	}
	if !errors.Is(err, &message.RemoteError{Kind: message.KindApplication}) {
		t.Fatal("errors.Is should match on kind")
	}

	_, err = stub.Call(context.Background(), "Pow", 2, 3)
	if !errors.Is(err, &message.RemoteError{Kind: message.KindMethodNotFound}) {
		t.Fatalf("expect method not found, got %v", err)
	}

	_, err = p.Call(context.Background(), "Nope", "", "Add", Args{})
	if !errors.Is(err, &message.RemoteError{Kind: message.KindServiceNotFound}) {
		t.Fatalf("expect service not found, got %v", err)
	}
}

func TestInvokeStruct(t *testing.T) {
	addr := startServer(t, nil, "")
	p := NewProxy(NewClient(config.DefaultClientConfig()), discovery.Static(addr))
	stub := ServiceOf[Arith](p, "")

	moved, err := Invoke[*Point](context.Background(), stub, "Move", Point{X: 1, Y: 2, Tag: "a"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if moved == nil || *moved != (Point{X: 11, Y: 2, Tag: "a"}) {
		t.Fatalf("unexpected %+v", moved)
	}

	if _, err := Invoke[string](context.Background(), stub, "Add", Args{1, 2}); err == nil {
		t.Fatal("expect type mismatch error")
	}
}

func TestUntypedNilArgument(t *testing.T) {
	p := NewProxy(NewClient(config.DefaultClientConfig()), discovery.Static("127.0.0.1:1"))
	_, err := p.Call(context.Background(), "Arith", "", "Add", nil)
	if !errors.Is(err, errUntypedNil) {
		t.Fatalf("expect untyped nil error, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	conf := config.DefaultClientConfig()
	conf.Address = "bad address"
	if _, err := Open(conf); err == nil {
		t.Fatal("expect error for malformed fixed address")
	}

	conf = config.DefaultClientConfig()
	conf.Balancer = "nope"
	if _, err := Open(conf); err == nil {
		t.Fatal("expect error for unknown balancer")
	}

	conf = config.DefaultClientConfig()
	p, err := Open(conf)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	_, err = p.Call(context.Background(), "Arith", "", "Add", Args{})
	var re *ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expect ResolutionError from empty registry, got %v", err)
	}
}
