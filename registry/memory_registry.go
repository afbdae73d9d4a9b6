package registry

import (
	"sync"
)

// MemoryRegistry keeps registrations in process. TTLs are ignored. It serves
// single-host setups and tests that should not depend on etcd.
type MemoryRegistry struct {
	mu        sync.Mutex
	instances map[string]map[string]ServiceInstance // device → addr → instance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{instances: make(map[string]map[string]ServiceInstance)}
}

func (r *MemoryRegistry) Register(device string, instance ServiceInstance, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byAddr, ok := r.instances[device]
	if !ok {
		byAddr = make(map[string]ServiceInstance)
		r.instances[device] = byAddr
	}
	byAddr[instance.Addr] = instance
	return nil
}

func (r *MemoryRegistry) Deregister(device string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances[device], addr)
	return nil
}

func (r *MemoryRegistry) Discover(device string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	instances := make([]ServiceInstance, 0, len(r.instances[device]))
	for _, inst := range r.instances[device] {
		instances = append(instances, inst)
	}
	sortNewestFirst(instances)
	return instances, nil
}

func (r *MemoryRegistry) Close() error { return nil }
