package loadbalance

import (
	"math"

	"github.com/valyala/fastrand"

	"lrpc/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional to its weight.
// A weight of zero or less counts as 1, so unweighted registrations still get traffic.
type WeightedRandomBalancer struct{}

func weightOf(inst registry.ServiceInstance) uint64 {
	if inst.Weight <= 0 {
		return 1
	}
	return uint64(inst.Weight)
}

func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	// 计算总权重，权重不截断，总和在 uint64 中累加，溢出时饱和
	var totalWeight uint64
	for _, v := range instances {
		w := weightOf(v)
		if totalWeight > math.MaxUint64-w {
			totalWeight = math.MaxUint64
			break
		}
		totalWeight += w
	}

	// 生成一个随机数，范围是0到总权重
	r := rand64() % totalWeight
	for i := range instances {
		w := weightOf(instances[i])
		if r < w {
			return &instances[i], nil
		}
		r -= w
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

// rand64 joins two fastrand draws. The modulo bias against a uint64 total is negligible.
func rand64() uint64 {
	return uint64(fastrand.Uint32())<<32 | uint64(fastrand.Uint32())
}
