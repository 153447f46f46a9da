package test

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"lrpc/client"
	"lrpc/codec"
	"lrpc/config"
	"lrpc/discovery"
	"lrpc/loadbalance"
	"lrpc/message"
	"lrpc/registry"
	"lrpc/sample/hello"
	"lrpc/server"
)

// ---- 测试用的服务 ----

type Args struct {
	A, B int
}

type Arith interface {
	Add(args Args) int
	Multiply(args Args) int
	Where() string
}

type arith struct{ addr string }

func (a *arith) Add(args Args) int      { return args.A + args.B }
func (a *arith) Multiply(args Args) int { return args.A * args.B }
func (a *arith) Where() string          { return a.addr }

// startArith serves arith on a fresh port and publishes it to reg.
func startArith(t testing.TB, conf config.ServerConfig, reg registry.Registry) (*server.Server, string) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()

	svr, err := server.NewServer(conf, reg)
	if err != nil {
		t.Fatal(err)
	}
	if err := svr.RegisterServices([]server.Exposed{server.Expose[Arith](&arith{addr: addr}, "")}); err != nil {
		t.Fatal(err)
	}
	go svr.Serve(l)
	select {
	case <-svr.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("server not ready")
	}
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr, addr
}

// TestFullIntegration 完整端到端测试
// 链路: Proxy → Registry → Balancer → Transport → Protocol → Codec → Middleware → Server → 反射调用
func TestFullIntegration(t *testing.T) {
	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeGob} {
		t.Run(ct.String(), func(t *testing.T) {
			reg := registry.NewMemoryRegistry()
			conf := config.DefaultServerConfig()
			conf.Codec = ct
			startArith(t, conf, reg)

			cconf := config.DefaultClientConfig()
			cconf.Codec = ct
			p := client.NewProxy(client.NewClient(cconf), discovery.New(reg, nil))
			stub := client.ServiceOf[Arith](p, "")

			sum, err := client.Invoke[int](context.Background(), stub, "Add", Args{3, 5})
			if err != nil {
				t.Fatalf("Call Add failed: %v", err)
			}
			if sum != 8 {
				t.Fatalf("Add: expect 8, got %d", sum)
			}

			product, err := client.Invoke[int](context.Background(), stub, "Multiply", Args{4, 6})
			if err != nil {
				t.Fatalf("Call Multiply failed: %v", err)
			}
			if product != 24 {
				t.Fatalf("Multiply: expect 24, got %d", product)
			}
		})
	}
}

// TestMultiServer 多实例 + 随机负载均衡
func TestMultiServer(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	_, addr1 := startArith(t, config.DefaultServerConfig(), reg)
	_, addr2 := startArith(t, config.DefaultServerConfig(), reg)

	p := client.NewProxy(client.NewClient(config.DefaultClientConfig()), discovery.New(reg, nil))
	stub := client.ServiceOf[Arith](p, "")

	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		where, err := client.Invoke[string](context.Background(), stub, "Where")
		if err != nil {
			t.Fatal(err)
		}
		counts[where]++
	}
	if counts[addr1] < 50 || counts[addr2] < 50 {
		t.Fatalf("uneven distribution: %v", counts)
	}
}

// TestRoundRobinAcrossServers checks that every instance is visited in turn.
func TestRoundRobinAcrossServers(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	_, addr1 := startArith(t, config.DefaultServerConfig(), reg)
	_, addr2 := startArith(t, config.DefaultServerConfig(), reg)

	p := client.NewProxy(client.NewClient(config.DefaultClientConfig()), discovery.New(reg, &loadbalance.RoundRobinBalancer{}))
	stub := client.ServiceOf[Arith](p, "")

	seen := map[string]int{}
	for i := 0; i < 10; i++ {
		where, err := client.Invoke[string](context.Background(), stub, "Where")
		if err != nil {
			t.Fatal(err)
		}
		seen[where]++
	}
	if seen[addr1] != 5 || seen[addr2] != 5 {
		t.Fatalf("expect 5/5, got %v", seen)
	}
}

// TestServerGoneAfterShutdown 下线的实例不再被发现，调用方不做重试
func TestServerGoneAfterShutdown(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	svr1, addr1 := startArith(t, config.DefaultServerConfig(), reg)
	_, addr2 := startArith(t, config.DefaultServerConfig(), reg)

	if err := svr1.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}

	p := client.NewProxy(client.NewClient(config.DefaultClientConfig()), discovery.New(reg, nil))
	stub := client.ServiceOf[Arith](p, "")
	for i := 0; i < 20; i++ {
		where, err := client.Invoke[string](context.Background(), stub, "Where")
		if err != nil {
			t.Fatal(err)
		}
		if where != addr2 {
			t.Fatalf("routed to %s after %s shut down", where, addr1)
		}
	}
}

func TestConcurrentCalls(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	startArith(t, config.DefaultServerConfig(), reg)
	startArith(t, config.DefaultServerConfig(), reg)

	p := client.NewProxy(client.NewClient(config.DefaultClientConfig()), discovery.New(reg, nil))
	stub := client.ServiceOf[Arith](p, "")

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sum, err := client.Invoke[int](context.Background(), stub, "Add", Args{i, i})
			if err != nil {
				errs <- err
				return
			}
			if sum != 2*i {
				errs <- errors.New("wrong sum")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestHelloSample(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	svr, err := server.NewServer(config.DefaultServerConfig(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if err := svr.RegisterServices(hello.Services()); err != nil {
		t.Fatal(err)
	}
	l, _ := net.Listen("tcp", "127.0.0.1:0")
	go svr.Serve(l)
	<-svr.Ready()
	defer svr.Shutdown(time.Second)

	p := client.NewProxy(client.NewClient(config.DefaultClientConfig()), discovery.New(reg, nil))
	got, err := hello.NewHelloClient(p, "").Hello(context.Background(), "World")
	if err != nil || got != "Hello!World" {
		t.Fatalf("unexpected %q %v", got, err)
	}

	// Unknown version: nothing published under that key
	_, err = hello.NewHelloClient(p, "v9").Hello(context.Background(), "World")
	var re *client.ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expect ResolutionError, got %v", err)
	}

	// Bypassing discovery reaches the server, which reports the missing key itself
	direct := client.NewProxy(client.NewClient(config.DefaultClientConfig()), discovery.Static(l.Addr().String()))
	_, err = hello.NewHelloClient(direct, "v9").Hello(context.Background(), "World")
	if !errors.Is(err, &message.RemoteError{Kind: message.KindServiceNotFound}) {
		t.Fatalf("expect ServiceNotFound, got %v", err)
	}
}

// TestFullIntegrationWithEtcd 完整端到端测试（需要本地 etcd）
func TestFullIntegrationWithEtcd(t *testing.T) {
	endpoint := os.Getenv("LRPC_TEST_ETCD")
	if endpoint == "" {
		endpoint = "127.0.0.1:2379"
	}
	if conn, err := net.DialTimeout("tcp", endpoint, 300*time.Millisecond); err != nil {
		t.Skipf("etcd not reachable at %s: %v", endpoint, err)
	} else {
		conn.Close()
	}

	rconf := config.RegistryConfig{
		Type:      config.RegistryEtcd,
		Endpoints: []string{endpoint},
		Root:      "/lrpc-it/" + time.Now().Format("150405.000000"),
		TTLSecond: 5,
	}
	serverReg, err := registry.Open(rconf)
	if err != nil {
		t.Fatal(err)
	}
	defer serverReg.Close()
	_, addr1 := startArith(t, config.DefaultServerConfig(), serverReg)
	_, addr2 := startArith(t, config.DefaultServerConfig(), serverReg)

	cconf := config.DefaultClientConfig()
	cconf.Registry = rconf
	p, err := client.Open(cconf)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	stub := client.ServiceOf[Arith](p, "")

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		where, err := client.Invoke[string](context.Background(), stub, "Where")
		if err != nil {
			t.Fatal(err)
		}
		seen[where] = true
	}
	if !seen[addr1] || !seen[addr2] {
		t.Fatalf("expect both instances, got %v", seen)
	}
}
