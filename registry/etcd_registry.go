package registry

// EtcdRegistry stores one key per server:
//
//	Key:   /temctl/{device}/{addr}
//	Value: JSON-encoded ServiceInstance
//
// Registration uses TTL-based leases: if the server dies, the lease expires
// and the entry disappears with it.

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// KeyPrefix roots every key the registry writes.
const KeyPrefix = "/temctl/"

const requestTimeout = 5 * time.Second

var log = commonlog.GetLogger("temctl.registry")

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client

	mu     sync.Mutex
	leases map[string]leaseHandle // by key
}

type leaseHandle struct {
	id     clientv3.LeaseID
	cancel context.CancelFunc // stops KeepAlive
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: requestTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, leases: make(map[string]leaseHandle)}, nil
}

func key(device, addr string) string {
	return KeyPrefix + device + "/" + addr
}

func prefix(device string) string {
	return KeyPrefix + device + "/"
}

// Register puts the instance under a fresh lease and keeps the lease alive in
// the background until Deregister or Close.
func (r *EtcdRegistry) Register(device string, instance ServiceInstance, ttl int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	k := key(device, instance.Addr)
	if _, err := r.client.Put(ctx, k, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	keepCtx, stop := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(keepCtx, lease.ID)
	if err != nil {
		stop()
		return err
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
		log.Debugf("lease for %s no longer renewed", k)
	}()

	r.mu.Lock()
	if old, ok := r.leases[k]; ok {
		old.cancel()
	}
	r.leases[k] = leaseHandle{id: lease.ID, cancel: stop}
	r.mu.Unlock()

	log.Infof("registered %s with ttl %ds", k, ttl)
	return nil
}

// Deregister deletes the key and revokes its lease.
func (r *EtcdRegistry) Deregister(device string, addr string) error {
	k := key(device, addr)

	r.mu.Lock()
	h, ok := r.leases[k]
	delete(r.leases, k)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if ok {
		h.cancel()
		if _, err := r.client.Revoke(ctx, h.id); err != nil {
			log.Warningf("revoke lease for %s: %s", k, err)
		}
	}
	if _, err := r.client.Delete(ctx, k); err != nil {
		return err
	}
	log.Infof("deregistered %s", k)
	return nil
}

// Discover returns all currently registered instances for a device.
func (r *EtcdRegistry) Discover(device string) ([]ServiceInstance, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := r.client.Get(ctx, prefix(device), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			log.Warningf("skipping malformed entry %s", kv.Key)
			continue
		}
		instances = append(instances, instance)
	}
	sortNewestFirst(instances)
	return instances, nil
}

// Close stops every keepalive and closes the etcd client. Leases left behind
// expire on their own.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for k, h := range r.leases {
		h.cancel()
		delete(r.leases, k)
	}
	r.mu.Unlock()
	return r.client.Close()
}

func sortNewestFirst(instances []ServiceInstance) {
	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].Started.After(instances[j].Started)
	})
}
