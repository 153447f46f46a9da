// Package registry publishes and lists service instances by service key.
//
// Entries are ephemeral: each one is tied to the session of the process that registered it and
// disappears when that session ends. Every registration gets its own sequentially numbered
// node, so several processes can serve the same key without colliding:
//
//	<root>/<serviceKey>/address-0000000000
//	<root>/<serviceKey>/address-0000000001
package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

const (
	DefaultRoot = "/registry"
	nodePrefix  = "address-"
)

// ErrNotFound is returned when no live instance exists for a service key.
var ErrNotFound = errors.New("service not found")

type ServiceInstance struct {
	Addr   string // "host:port"
	Weight int    // Weight for load balancing, 0 means 1
}

type Registry interface {
	// Register publishes an ephemeral, uniquely numbered entry for instance under serviceKey.
	Register(ctx context.Context, serviceKey string, instance ServiceInstance) error
	// Deregister removes the entries this registry created for serviceKey at addr.
	Deregister(ctx context.Context, serviceKey string, addr string) error
	// Instances lists the live entries for serviceKey; an empty list is not an error.
	Instances(ctx context.Context, serviceKey string) ([]ServiceInstance, error)
	// Close ends the session, removing every entry it owns.
	Close() error
}

func servicePath(root, serviceKey string) string {
	return root + "/" + serviceKey
}

func nodePath(root, serviceKey string, seq uint64) string {
	return fmt.Sprintf("%s/%s%010d", servicePath(root, serviceKey), nodePrefix, seq)
}

// ParseAddress splits "host:port", failing on a missing separator or an invalid port.
func ParseAddress(addr string) (host string, port int, err error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err = strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid address %q: bad port %q", addr, portStr)
	}
	return host, port, nil
}
