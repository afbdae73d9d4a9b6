package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable consulted when no explicit path is given.
const EnvPath = "TEMCTL_CONFIG"

// ResolvePath selects the explicit path, then $TEMCTL_CONFIG. An empty result
// means "defaults only".
func ResolvePath(explicitPath string) string {
	if p := strings.TrimSpace(explicitPath); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(EnvPath))
}

// Load resolves, reads, parses and validates the configuration. Values in the
// file override Default(); omitted keys keep their defaults.
func Load(explicitPath string) (Config, error) {
	cfg := Default()

	path := ResolvePath(explicitPath)
	if path == "" {
		return cfg, cfg.Validate()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg, err = Parse(content, cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML content on top of base and validates the result.
func Parse(content []byte, base Config) (Config, error) {
	cfg := base
	// yaml.v3 writes into existing maps, so give the decoder its own copy
	cfg.Simulation.Magnifications = cloneTables(base.Simulation.Magnifications)

	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func cloneTables(in map[string][]int) map[string][]int {
	out := make(map[string][]int, len(in))
	for k, v := range in {
		out[k] = append([]int(nil), v...)
	}
	return out
}

var knownModes = []string{"mag1", "mag2", "lowmag", "samag", "diff"}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Device) == "" {
		errs = append(errs, errors.New("device must not be empty"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Server.Codec {
	case "json", "binary":
	default:
		errs = append(errs, fmt.Errorf("server.codec %q must be json or binary", c.Server.Codec))
	}
	if c.Server.MaxMessageSize == 0 {
		errs = append(errs, errors.New("server.max_message_size must be positive"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must not be negative"))
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		errs = append(errs, errors.New("server.rate_burst must be at least 1 when rate_limit is set"))
	}
	if c.Server.HeartbeatInterval < 0 {
		errs = append(errs, errors.New("server.heartbeat_interval must not be negative"))
	}

	if c.Supervisor.Attempts < 1 {
		errs = append(errs, errors.New("supervisor.attempts must be at least 1"))
	}
	if c.Supervisor.Interval <= 0 {
		errs = append(errs, errors.New("supervisor.interval must be positive"))
	}
	if c.Supervisor.QuietAttempts < 0 {
		errs = append(errs, errors.New("supervisor.quiet_attempts must not be negative"))
	}

	if c.Registry.Enabled() && c.Registry.TTL < 1 {
		errs = append(errs, errors.New("registry.ttl must be at least 1 second"))
	}

	if err := c.Simulation.validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s SimulationConfig) validate() error {
	speeds := map[string]float64{"x": s.StageSpeed.X, "y": s.StageSpeed.Y, "z": s.StageSpeed.Z, "a": s.StageSpeed.A, "b": s.StageSpeed.B}
	for axis, v := range speeds {
		if v <= 0 {
			return fmt.Errorf("simulation.stage_speed.%s must be positive", axis)
		}
	}
	if s.PollInterval <= 0 {
		return errors.New("simulation.poll_interval must be positive")
	}
	return ValidateMagnifications(s.Magnifications)
}

// ValidateMagnifications checks that every function mode has a non-empty,
// strictly increasing table of positive values.
func ValidateMagnifications(tables map[string][]int) error {
	for _, mode := range knownModes {
		table, ok := tables[mode]
		if !ok || len(table) == 0 {
			return fmt.Errorf("simulation.magnifications.%s must not be empty", mode)
		}
		for i, v := range table {
			if v <= 0 {
				return fmt.Errorf("simulation.magnifications.%s[%d] must be positive", mode, i)
			}
			if i > 0 && v <= table[i-1] {
				return fmt.Errorf("simulation.magnifications.%s must be strictly increasing at index %d", mode, i)
			}
		}
	}
	for mode := range tables {
		if !isKnownMode(mode) {
			return fmt.Errorf("simulation.magnifications: unknown function mode %q", mode)
		}
	}
	return nil
}

func isKnownMode(mode string) bool {
	for _, m := range knownModes {
		if m == mode {
			return true
		}
	}
	return false
}
