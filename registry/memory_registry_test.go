package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"lrpc/config"
)

func TestMemoryRegistrySequentialNodes(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	for _, addr := range []string{"127.0.0.1:8001", "127.0.0.1:8002", "127.0.0.1:8001"} {
		if err := reg.Register(ctx, "Greeter", ServiceInstance{Addr: addr}); err != nil {
			t.Fatal(err)
		}
	}

	nodes := reg.Nodes("Greeter")
	want := []string{
		"/registry/Greeter/address-0000000000",
		"/registry/Greeter/address-0000000001",
		"/registry/Greeter/address-0000000002",
	}
	if len(nodes) != len(want) {
		t.Fatalf("expect %d nodes, got %v", len(want), nodes)
	}
	for i := range want {
		if nodes[i] != want[i] {
			t.Fatalf("node %d: expect %s, got %s", i, want[i], nodes[i])
		}
	}

	instances, err := reg.Instances(ctx, "Greeter")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 3 {
		t.Fatalf("expect 3 instances, got %d", len(instances))
	}
}

func TestMemoryRegistryDeregister(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	reg.Register(ctx, "Greeter", ServiceInstance{Addr: "127.0.0.1:8001"})
	reg.Register(ctx, "Greeter", ServiceInstance{Addr: "127.0.0.1:8002"})
	reg.Register(ctx, "Greeter-v2", ServiceInstance{Addr: "127.0.0.1:8001"})

	if err := reg.Deregister(ctx, "Greeter", "127.0.0.1:8001"); err != nil {
		t.Fatal(err)
	}

	instances, _ := reg.Instances(ctx, "Greeter")
	if len(instances) != 1 || instances[0].Addr != "127.0.0.1:8002" {
		t.Fatalf("unexpected instances after deregister: %+v", instances)
	}
	instances, _ = reg.Instances(ctx, "Greeter-v2")
	if len(instances) != 1 {
		t.Fatalf("deregister leaked into another key: %+v", instances)
	}
}

func TestMemoryRegistryClose(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	reg.Register(ctx, "Greeter", ServiceInstance{Addr: "127.0.0.1:8001"})
	if err := reg.Close(); err != nil {
		t.Fatal(err)
	}
	instances, err := reg.Instances(ctx, "Greeter")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 0 {
		t.Fatalf("expect no instances after close, got %d", len(instances))
	}
}

func TestMemoryRegistryConcurrentRegister(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.Register(ctx, "Greeter", ServiceInstance{Addr: fmt.Sprintf("127.0.0.1:%d", 9000+i)})
		}(i)
	}
	wg.Wait()

	nodes := reg.Nodes("Greeter")
	seen := make(map[string]bool)
	for _, n := range nodes {
		if seen[n] {
			t.Fatalf("duplicate node %s", n)
		}
		seen[n] = true
	}
	if len(nodes) != 50 {
		t.Fatalf("expect 50 nodes, got %d", len(nodes))
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		addr string
		host string
		port int
		ok   bool
	}{
		{"127.0.0.1:8080", "127.0.0.1", 8080, true},
		{"localhost:1", "localhost", 1, true},
		{"[::1]:65535", "::1", 65535, true},
		{"127.0.0.1", "", 0, false},
		{"127.0.0.1:0", "", 0, false},
		{"127.0.0.1:65536", "", 0, false},
		{"127.0.0.1:http", "", 0, false},
		{"", "", 0, false},
	}
	for _, tt := range tests {
		host, port, err := ParseAddress(tt.addr)
		if tt.ok {
			if err != nil {
				t.Fatalf("%q: unexpected error %v", tt.addr, err)
			}
			if host != tt.host || port != tt.port {
				t.Fatalf("%q: got %s %d", tt.addr, host, port)
			}
		} else if err == nil {
			t.Fatalf("%q: expect error", tt.addr)
		}
	}
}

func TestOpen(t *testing.T) {
	reg, err := Open(config.RegistryConfig{Type: config.RegistryMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.(*MemoryRegistry); !ok {
		t.Fatalf("expect *MemoryRegistry, got %T", reg)
	}
	if _, err := Open(config.RegistryConfig{Type: config.RegistryEtcd}); err == nil {
		t.Fatal("expect error for etcd without endpoints")
	}
	if _, err := Open(config.RegistryConfig{Type: "zookeeper"}); err == nil {
		t.Fatal("expect error for unknown type")
	}
}
