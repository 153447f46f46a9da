package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"

	"lrpc/logger"
)

// EtcdConfig configures an EtcdRegistry.
type EtcdConfig struct {
	Endpoints   []string
	Root        string        // Key prefix, DefaultRoot if empty
	TTL         int           // Session lease TTL in seconds, 10 if zero
	DialTimeout time.Duration // 5s if zero
	Logger      *zap.Logger   // Logger for the etcd client itself, nop if nil
}

// EtcdRegistry implements the Registry interface using etcd v3.
//
//	Key:   <root>/<serviceKey>/address-<seq>
//	Value: JSON-encoded ServiceInstance
//
// All entries share the lease of one concurrency.Session, kept alive in the background. If the
// process dies or loses etcd for longer than the TTL, the lease expires and every entry goes
// with it, no "ghost" instances.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
	root   string
	ttl    int
	log    *logrus.Entry

	mu      sync.Mutex
	session *concurrency.Session // created on first Register, discovery-only users never grant a lease
	owned   map[string][]string  // serviceKey + "|" + addr → node keys created by this registry
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(conf EtcdConfig) (*EtcdRegistry, error) {
	if conf.Root == "" {
		conf.Root = DefaultRoot
	}
	if conf.TTL <= 0 {
		conf.TTL = 10
	}
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = 5 * time.Second
	}
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}

	c, err := clientv3.New(clientv3.Config{
		Endpoints:   conf.Endpoints,
		DialTimeout: conf.DialTimeout,
		Logger:      conf.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{
		client: c,
		root:   conf.Root,
		ttl:    conf.TTL,
		log:    logger.For("registry"),
		owned:  make(map[string][]string),
	}, nil
}

// getSession returns the registry's session, creating it on first use.
func (r *EtcdRegistry) getSession() (*concurrency.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		select {
		case <-r.session.Done():
			r.log.Warnf("etcd session %x expired, creating a new one", r.session.Lease())
		default:
			return r.session, nil
		}
	}

	s, err := concurrency.NewSession(r.client, concurrency.WithTTL(r.ttl))
	if err != nil {
		return nil, err
	}
	r.session = s
	return s, nil
}

// Register adds an ephemeral sequential entry for instance.
//
// Flow:
//  1. Get (or create) the session, whose lease is renewed by KeepAlive in the background
//  2. In one STM transaction: read the per-service counter, bump it, and put
//     address-<counter> with the session lease attached
//
// The transaction retries on conflict, so concurrent registrations from several processes
// always end up with distinct sequence numbers.
func (r *EtcdRegistry) Register(ctx context.Context, serviceKey string, instance ServiceInstance) error {
	if _, _, err := ParseAddress(instance.Addr); err != nil {
		return err
	}

	session, err := r.getSession()
	if err != nil {
		return fmt.Errorf("registry unreachable: %w", err)
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	seqKey := servicePath(r.root, serviceKey) + "/seq"
	var node string
	_, err = concurrency.NewSTM(r.client, func(stm concurrency.STM) error {
		var seq uint64
		if cur := stm.Get(seqKey); cur != "" {
			parsed, err := strconv.ParseUint(cur, 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt sequence at %s: %w", seqKey, err)
			}
			seq = parsed
		}
		node = nodePath(r.root, serviceKey, seq)
		stm.Put(seqKey, strconv.FormatUint(seq+1, 10))
		stm.Put(node, string(val), clientv3.WithLease(session.Lease()))
		return nil
	}, concurrency.WithAbortContext(ctx))
	if err != nil {
		return fmt.Errorf("register %s: %w", serviceKey, err)
	}

	r.mu.Lock()
	owner := serviceKey + "|" + instance.Addr
	r.owned[owner] = append(r.owned[owner], node)
	r.mu.Unlock()

	r.log.Debugf("create address node: %s => %s", node, instance.Addr)
	return nil
}

// Deregister removes the entries this registry created for serviceKey at addr.
// Called during graceful shutdown before closing the listener.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceKey string, addr string) error {
	r.mu.Lock()
	owner := serviceKey + "|" + addr
	nodes := r.owned[owner]
	delete(r.owned, owner)
	r.mu.Unlock()

	for _, node := range nodes {
		if _, err := r.client.Delete(ctx, node); err != nil {
			return err
		}
	}
	return nil
}

// Instances returns all currently registered instances for a service.
// Queries etcd with the key prefix <root>/<serviceKey>/address-.
func (r *EtcdRegistry) Instances(ctx context.Context, serviceKey string) ([]ServiceInstance, error) {
	prefix := servicePath(r.root, serviceKey) + "/" + nodePrefix

	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.log.Warnf("skip malformed entry %s: %v", kv.Key, err)
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Close revokes the session lease (removing all entries it owns) and closes the client.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	session := r.session
	r.session = nil
	r.owned = make(map[string][]string)
	r.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			r.log.Warnf("close etcd session: %v", err)
		}
	}
	return r.client.Close()
}
