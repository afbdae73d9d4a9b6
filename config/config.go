// Package config resolves, parses, validates and defaults temctl configuration.
//
// One Config is built at process start and handed to the server, supervisor
// and client constructors; nothing reads configuration from package state.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the fully materialized runtime configuration.
type Config struct {
	// Device names the registered driver the server instantiates and the
	// client discovers operations for.
	Device     string           `yaml:"device"`
	Server     ServerConfig     `yaml:"server"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Registry   RegistryConfig   `yaml:"registry"`
	Simulation SimulationConfig `yaml:"simulation"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig controls where the device server listens and how it frames traffic.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	Codec             string        `yaml:"codec"` // "json" or "binary"
	MaxMessageSize    uint32        `yaml:"max_message_size"`
	RateLimit         float64       `yaml:"rate_limit"` // operations per second, 0 disables
	RateBurst         int           `yaml:"rate_burst"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // client side, 0 disables
	Advertise         string        `yaml:"advertise"`          // address registered for discovery
}

// Addr is the host:port the server listens on and the client dials.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SupervisorConfig controls how the client brings up a server on demand.
type SupervisorConfig struct {
	Executable    string        `yaml:"executable"` // empty: the running executable
	Args          []string      `yaml:"args"`
	Attempts      int           `yaml:"attempts"`
	Interval      time.Duration `yaml:"interval"`
	QuietAttempts int           `yaml:"quiet_attempts"` // attempts before "waiting" is logged
	DialTimeout   time.Duration `yaml:"dial_timeout"`
}

// RegistryConfig enables etcd-based discovery of the server address.
type RegistryConfig struct {
	Endpoints []string `yaml:"endpoints"`
	TTL       int64    `yaml:"ttl"` // seconds
}

// Enabled reports whether discovery is configured.
func (r RegistryConfig) Enabled() bool {
	return len(r.Endpoints) > 0
}

// SimulationConfig parameterizes the simulated microscope.
type SimulationConfig struct {
	Seed           int64            `yaml:"seed"`
	StageSpeed     StageSpeed       `yaml:"stage_speed"`
	PollInterval   time.Duration    `yaml:"poll_interval"`
	Magnifications map[string][]int `yaml:"magnifications"` // function mode -> ascending table
}

// StageSpeed is the travel speed per stage axis: nm/s for x, y, z and deg/s for a, b.
type StageSpeed struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
}

// LogConfig controls commonlog output.
type LogConfig struct {
	Verbosity int    `yaml:"verbosity"`
	File      string `yaml:"file"` // empty: stderr
}
