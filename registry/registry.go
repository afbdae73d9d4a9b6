// Package registry lets microscope servers advertise where they listen, so a
// client configured with registry endpoints can find the server for its
// device without a fixed host and port.
package registry

import "time"

// ServiceInstance is one advertised server.
type ServiceInstance struct {
	Addr    string    `json:"addr"`
	Device  string    `json:"device"`
	PID     int       `json:"pid"`
	Started time.Time `json:"started"`
}

type Registry interface {
	// Register advertises instance under device; the entry expires ttl seconds
	// after the process stops renewing it.
	Register(device string, instance ServiceInstance, ttl int64) error
	Deregister(device string, addr string) error
	// Discover lists live instances, most recently started first.
	Discover(device string) ([]ServiceInstance, error)
	Close() error
}
