package traffic

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a run. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	Seed int64 `yaml:"seed"`

	// Spawning.
	MaxCars          int  `yaml:"max_cars"`       // live population cap
	SpawnLimit       int  `yaml:"spawn_limit"`    // total cars ever spawned, 0 = unlimited
	SpawnInterval    int  `yaml:"spawn_interval"` // ticks between spawn attempts
	SpawnAttempts    int  `yaml:"spawn_attempts"` // corner/destination draws per attempt
	EmergencySpawn   bool `yaml:"emergency_spawn"`
	SpawnWithoutPath bool `yaml:"spawn_without_path"`

	// Car behaviour.
	ExploreReplanEvery int `yaml:"explore_replan_every"`
	WaitRecheck        int `yaml:"wait_recheck"`
	WaitPatience       int `yaml:"wait_patience"` // 0 waits on cars forever
	MaxExpansions      int `yaml:"max_expansions"`

	// Halting.
	MaxTicks        int  `yaml:"max_ticks"` // 0 = until cancelled or drained
	StopWhenDrained bool `yaml:"stop_when_drained"`

	LightCosts LightCosts `yaml:"light_costs"`

	// Bookkeeping.
	HeartbeatInterval int  `yaml:"heartbeat_interval"`
	ReportInterval    int  `yaml:"report_interval"`
	VerboseLog        bool `yaml:"verbose_log"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Seed:               1,
		MaxCars:            10,
		SpawnInterval:      10,
		SpawnAttempts:      10,
		ExploreReplanEvery: 5,
		WaitRecheck:        1,
		WaitPatience:       30,
		MaxExpansions:      DefaultMaxExpansions,
		MaxTicks:           1000,
		LightCosts:         DefaultLightCosts(),
		HeartbeatInterval:  100,
		ReportInterval:     10,
	}
}

// Validate rejects settings the scheduler cannot run with.
func (c Config) Validate() error {
	if c.MaxCars < 0 {
		return fmt.Errorf("max_cars must be >= 0, got %d", c.MaxCars)
	}
	if c.SpawnLimit < 0 {
		return fmt.Errorf("spawn_limit must be >= 0, got %d", c.SpawnLimit)
	}
	if c.SpawnInterval < 1 {
		return fmt.Errorf("spawn_interval must be >= 1, got %d", c.SpawnInterval)
	}
	if c.SpawnAttempts < 1 {
		return fmt.Errorf("spawn_attempts must be >= 1, got %d", c.SpawnAttempts)
	}
	if c.ExploreReplanEvery < 1 {
		return fmt.Errorf("explore_replan_every must be >= 1, got %d", c.ExploreReplanEvery)
	}
	if c.WaitRecheck < 1 {
		return fmt.Errorf("wait_recheck must be >= 1, got %d", c.WaitRecheck)
	}
	if c.WaitPatience < 0 {
		return fmt.Errorf("wait_patience must be >= 0, got %d", c.WaitPatience)
	}
	if c.MaxExpansions < 1 {
		return fmt.Errorf("max_expansions must be >= 1, got %d", c.MaxExpansions)
	}
	if c.MaxTicks < 0 {
		return fmt.Errorf("max_ticks must be >= 0, got %d", c.MaxTicks)
	}
	if c.StopWhenDrained && c.SpawnLimit == 0 {
		return fmt.Errorf("stop_when_drained needs a spawn_limit")
	}
	lc := c.LightCosts
	if lc.Short < 0 || lc.Long < 0 || lc.ShortPeriodMax < 0 {
		return fmt.Errorf("light_costs must be non-negative, got %+v", lc)
	}
	return nil
}

// LoadConfig reads a YAML file over DefaultConfig. Keys absent from the file
// keep their default.
func LoadConfig(filePath string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(filePath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read sim config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse sim config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid sim config: %w", err)
	}
	return cfg, nil
}
