// Package loadbalance selects one instance out of the live instances of a service.
//
// Three strategies are implemented:
//   - Random:          uniform pick, the default used by discovery
//   - RoundRobin:      strict rotation over the list as returned by the registry
//   - WeightedRandom:  heterogeneous instances (different CPU/memory)
package loadbalance

import (
	"errors"
	"fmt"

	"lrpc/registry"
)

var ErrNoInstances = errors.New("no instances available")

// Balancer is the interface for load balancing strategies.
// Discovery calls Pick() once per resolution when more than one instance is live.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Called concurrently from many callers, must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer registered under name: "random" (also ""), "roundrobin" or "weighted".
func New(name string) (Balancer, error) {
	switch name {
	case "", "random":
		return &RandomBalancer{}, nil
	case "roundrobin":
		return &RoundRobinBalancer{}, nil
	case "weighted":
		return &WeightedRandomBalancer{}, nil
	default:
		return nil, fmt.Errorf("unknown balancer %q", name)
	}
}
