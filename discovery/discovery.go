// Package discovery resolves a service key to the address of one live instance.
package discovery

import (
	"context"
	"fmt"

	"lrpc/loadbalance"
	"lrpc/registry"
)

// Discoverer resolves a service key to a "host:port" address.
type Discoverer interface {
	Discover(ctx context.Context, serviceKey string) (string, error)
}

// Discovery reads the registry on every call; nothing is cached between calls.
type Discovery struct {
	reg      registry.Registry
	balancer loadbalance.Balancer
}

// New returns a Discovery over reg. A nil balancer means uniform random selection.
func New(reg registry.Registry, balancer loadbalance.Balancer) *Discovery {
	if balancer == nil {
		balancer = &loadbalance.RandomBalancer{}
	}
	return &Discovery{reg: reg, balancer: balancer}
}

// Discover returns the address of one live instance of serviceKey.
// With no instance it fails with an error wrapping registry.ErrNotFound.
func (d *Discovery) Discover(ctx context.Context, serviceKey string) (string, error) {
	instances, err := d.reg.Instances(ctx, serviceKey)
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", serviceKey, err)
	}

	switch len(instances) {
	case 0:
		return "", fmt.Errorf("%w: %s", registry.ErrNotFound, serviceKey)
	case 1:
		return instances[0].Addr, nil
	}

	inst, err := d.balancer.Pick(instances)
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", serviceKey, err)
	}
	return inst.Addr, nil
}

// Static resolves every service key to the same fixed address.
type Static string

func (s Static) Discover(ctx context.Context, serviceKey string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: %s", registry.ErrNotFound, serviceKey)
	}
	return string(s), nil
}
