package sim

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/legisim/legisim/sim/spill"
	"github.com/legisim/legisim/sim/trace"
)

// DefaultMaxSpiralLoops bounds re-entry of the same (variable, period).
const DefaultMaxSpiralLoops = 1

// SimulationConfig groups the per-simulation knobs, loadable from YAML.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type SimulationConfig struct {
	Trace          string        `yaml:"trace" validate:"omitempty,oneof=none full"`
	MaxSpiralLoops int           `yaml:"max_spiral_loops" validate:"gte=0"` // 0 = DefaultMaxSpiralLoops
	CacheBlacklist []string      `yaml:"cache_blacklist"`
	Memory         *MemoryConfig `yaml:"memory"`
}

// MemoryConfig holds the memory policy. Nil disables spilling.
type MemoryConfig struct {
	MaxMemoryOccupation float64  `yaml:"max_memory_occupation" validate:"gt=0,lte=1"`
	PriorityVariables   []string `yaml:"priority_variables"`
	VariablesToDrop     []string `yaml:"variables_to_drop"`
	SpillDir            string   `yaml:"spill_dir"` // defaults to os.TempDir()
	Backend             string   `yaml:"backend" validate:"omitempty,oneof=fs badger"`
}

// configValidate is the validator instance for configuration structs.
var configValidate = validator.New()

// DefaultSimulationConfig returns the configuration used when none is given.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{Trace: string(trace.LevelNone), MaxSpiralLoops: DefaultMaxSpiralLoops}
}

// LoadSimulationConfig reads and parses a YAML simulation configuration file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadSimulationConfig(path string) (*SimulationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading simulation config: %w", err)
	}
	return ParseSimulationConfig(data)
}

// ParseSimulationConfig parses YAML bytes strictly, then validates.
func ParseSimulationConfig(data []byte) (*SimulationConfig, error) {
	cfg := DefaultSimulationConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing simulation config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and names.
func (c *SimulationConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid simulation config: %w", err)
	}
	if !trace.IsValidLevel(c.Trace) {
		return fmt.Errorf("unknown trace level %q; valid: none, full", c.Trace)
	}
	if c.Memory != nil {
		if err := configValidate.Struct(c.Memory); err != nil {
			return fmt.Errorf("invalid memory config: %w", err)
		}
		if !spill.IsValidBackend(c.Memory.Backend) {
			return fmt.Errorf("unknown spill backend %q; valid: fs, badger", c.Memory.Backend)
		}
	}
	return nil
}

// spiralLoops resolves the zero value to the default.
func (c *SimulationConfig) spiralLoops() int {
	if c.MaxSpiralLoops <= 0 {
		return DefaultMaxSpiralLoops
	}
	return c.MaxSpiralLoops
}
