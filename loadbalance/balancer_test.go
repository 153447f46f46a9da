package loadbalance

import (
	"errors"
	"math"
	"sync"
	"testing"

	"lrpc/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: "127.0.0.1:8001", Weight: 10},
	{Addr: "127.0.0.1:8002", Weight: 5},
	{Addr: "127.0.0.1:8003", Weight: 10},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all instances in order
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		if inst.Addr != testInstances[i].Addr {
			t.Fatalf("pick %d: expect %s, got %s", i, testInstances[i].Addr, inst.Addr)
		}
	}

	// Pick again, should wrap around to first
	inst, _ := b.Pick(testInstances)
	if inst.Addr != testInstances[0].Addr {
		t.Fatalf("expect wrap around to %s, got %s", testInstances[0].Addr, inst.Addr)
	}
}

func TestEmptyInstances(t *testing.T) {
	for _, b := range []Balancer{&RandomBalancer{}, &RoundRobinBalancer{}, &WeightedRandomBalancer{}} {
		_, err := b.Pick([]registry.ServiceInstance{})
		if !errors.Is(err, ErrNoInstances) {
			t.Fatalf("%s: expect ErrNoInstances, got %v", b.Name(), err)
		}
	}
}

func TestRandomUniform(t *testing.T) {
	b := &RandomBalancer{}

	counts := map[string]int{}
	n := 30000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// Each of the 3 instances should get about a third, weights are ignored
	for _, inst := range testInstances {
		share := float64(counts[inst.Addr]) / float64(n)
		if share < 0.30 || share > 0.37 {
			t.Fatalf("%s got share %.3f, expect ~0.333", inst.Addr, share)
		}
	}
}

func TestRandomSingle(t *testing.T) {
	b := &RandomBalancer{}
	only := []registry.ServiceInstance{{Addr: "127.0.0.1:9000"}}
	for i := 0; i < 100; i++ {
		inst, err := b.Pick(only)
		if err != nil {
			t.Fatal(err)
		}
		if inst.Addr != "127.0.0.1:9000" {
			t.Fatalf("unexpected pick %s", inst.Addr)
		}
	}
}

func TestRandomConcurrent(t *testing.T) {
	b := &RandomBalancer{}
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if _, err := b.Pick(testInstances); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts["127.0.0.1:8001"]) / float64(counts["127.0.0.1:8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomLargeWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	cases := [][]registry.ServiceInstance{
		{{Addr: "127.0.0.1:8001", Weight: 1}, {Addr: "127.0.0.1:8002", Weight: math.MaxInt}},
		// 总和超过 uint64，饱和处理
		{{Addr: "127.0.0.1:8001", Weight: 1}, {Addr: "127.0.0.1:8002", Weight: math.MaxInt}, {Addr: "127.0.0.1:8003", Weight: math.MaxInt}, {Addr: "127.0.0.1:8004", Weight: math.MaxInt}},
	}
	for _, instances := range cases {
		light := 0
		for i := 0; i < 1000; i++ {
			inst, err := b.Pick(instances)
			if err != nil {
				t.Fatal(err)
			}
			if inst.Addr == "127.0.0.1:8001" {
				light++
			}
		}
		if light > 0 {
			t.Fatalf("weight 1 instance picked %d times next to max weights", light)
		}
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	unweighted := []registry.ServiceInstance{{Addr: "127.0.0.1:8001"}, {Addr: "127.0.0.1:8002"}}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		inst, err := b.Pick(unweighted)
		if err != nil {
			t.Fatal(err)
		}
		seen[inst.Addr] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expect both instances picked, got %v", seen)
	}
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{"": "Random", "random": "Random", "roundrobin": "RoundRobin", "weighted": "WeightedRandom"} {
		b, err := New(name)
		if err != nil {
			t.Fatal(err)
		}
		if b.Name() != want {
			t.Fatalf("New(%q) = %s, expect %s", name, b.Name(), want)
		}
	}
	if _, err := New("consistent"); err == nil {
		t.Fatal("expect error for unknown balancer")
	}
}
