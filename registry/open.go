package registry

import (
	"fmt"
	"time"

	"lrpc/config"
	"lrpc/logger"
)

// Open builds the registry backend selected by conf.
func Open(conf config.RegistryConfig) (Registry, error) {
	switch conf.Type {
	case "", config.RegistryMemory:
		return NewMemoryRegistry(), nil
	case config.RegistryEtcd:
		if len(conf.Endpoints) == 0 {
			return nil, fmt.Errorf("etcd registry needs at least one endpoint")
		}
		return NewEtcdRegistry(EtcdConfig{
			Endpoints:   conf.Endpoints,
			Root:        conf.Root,
			TTL:         conf.TTLSecond,
			DialTimeout: 5 * time.Second,
			Logger:      logger.Zap(),
		})
	default:
		return nil, fmt.Errorf("unknown registry type %q", conf.Type)
	}
}
