package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRegistry keeps entries in process memory with the same node layout as EtcdRegistry.
// It serves single-process deployments and tests; Close plays the part of a lost session.
type MemoryRegistry struct {
	mu    sync.RWMutex
	root  string
	nodes map[string]ServiceInstance // node path → instance
	seq   map[string]uint64          // service key → next sequence number
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		root:  DefaultRoot,
		nodes: make(map[string]ServiceInstance),
		seq:   make(map[string]uint64),
	}
}

func (r *MemoryRegistry) Register(ctx context.Context, serviceKey string, instance ServiceInstance) error {
	if _, _, err := ParseAddress(instance.Addr); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.seq[serviceKey]
	r.seq[serviceKey] = seq + 1
	r.nodes[nodePath(r.root, serviceKey, seq)] = instance
	return nil
}

func (r *MemoryRegistry) Deregister(ctx context.Context, serviceKey string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := servicePath(r.root, serviceKey) + "/" + nodePrefix
	for path, inst := range r.nodes {
		if strings.HasPrefix(path, prefix) && inst.Addr == addr {
			delete(r.nodes, path)
		}
	}
	return nil
}

func (r *MemoryRegistry) Instances(ctx context.Context, serviceKey string) ([]ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefix := servicePath(r.root, serviceKey) + "/" + nodePrefix
	paths := make([]string, 0)
	for path := range r.nodes {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths) // registration order, like a prefix scan

	instances := make([]ServiceInstance, 0, len(paths))
	for _, path := range paths {
		instances = append(instances, r.nodes[path])
	}
	return instances, nil
}

// Nodes returns the node paths currently registered under serviceKey.
func (r *MemoryRegistry) Nodes(serviceKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefix := servicePath(r.root, serviceKey) + "/" + nodePrefix
	var paths []string
	for path := range r.nodes {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

func (r *MemoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = make(map[string]ServiceInstance)
	return nil
}
