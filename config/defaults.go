package config

import "time"

const (
	DefaultDevice = "simulate"
	DefaultHost   = "localhost"
	DefaultPort   = 8088
)

// Default returns the baseline configuration used when no file overrides it.
func Default() Config {
	return Config{
		Device: DefaultDevice,
		Server: ServerConfig{
			Host:              DefaultHost,
			Port:              DefaultPort,
			Codec:             "json",
			MaxMessageSize:    16 << 20,
			RateBurst:         1,
			ShutdownTimeout:   3 * time.Second,
			HeartbeatInterval: 30 * time.Second,
		},
		Supervisor: SupervisorConfig{
			Args:          []string{"serve"},
			Attempts:      30,
			Interval:      time.Second,
			QuietAttempts: 3,
			DialTimeout:   2 * time.Second,
		},
		Registry: RegistryConfig{
			TTL: 10,
		},
		Simulation: SimulationConfig{
			Seed: 1,
			StageSpeed: StageSpeed{
				X: 50_000,
				Y: 50_000,
				Z: 10_000,
				A: 10,
				B: 10,
			},
			PollInterval:   100 * time.Millisecond,
			Magnifications: DefaultMagnifications(),
		},
		Log: LogConfig{
			Verbosity: 1,
		},
	}
}

// DefaultMagnifications is a JEOL-like set of ranges. The diff table holds
// camera lengths in mm.
func DefaultMagnifications() map[string][]int {
	return map[string][]int{
		"lowmag": {50, 80, 100, 150, 200, 250, 300, 400, 500, 600, 800, 1000, 1200, 1500, 2000},
		"mag1": {
			2500, 3000, 4000, 5000, 6000, 8000, 10000, 12000, 15000, 20000,
			25000, 30000, 40000, 50000, 60000, 80000, 100000, 120000, 150000, 200000,
			250000, 300000, 400000, 500000, 600000, 800000, 1000000, 1200000, 1500000,
		},
		"mag2":  {4000, 5000, 6000, 8000, 10000, 12000, 15000, 20000, 25000, 30000, 40000, 50000},
		"samag": {8000, 10000, 12000, 15000, 20000, 25000, 30000},
		"diff":  {150, 200, 250, 300, 400, 500, 600, 800, 1000, 1200, 1500, 2000},
	}
}
