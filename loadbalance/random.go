package loadbalance

import (
	"github.com/valyala/fastrand"

	"lrpc/registry"
)

// RandomBalancer picks each instance with equal probability.
// fastrand keeps per-P state, so concurrent callers never contend on a shared source.
type RandomBalancer struct{}

func (b *RandomBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	return &instances[fastrand.Uint32n(uint32(len(instances)))], nil
}

func (b *RandomBalancer) Name() string {
	return "Random"
}
