package config

import (
	"fmt"
	"os"

	"github.com/docstore/engine/pkg/log"
	"gopkg.in/yaml.v3"
)

// EngineConfig holds the operator-facing settings for a running
// engine process: where data lives, the write-throttle policy, the
// masterpointer arena's growth curve, and logging.
type EngineConfig struct {
	DataDir string `yaml:"dataDir"`

	// WriteThrottleSleepMillis is the sleep-loop interval a blocked
	// writer retries on while the WAL is throttled; WriteThrottleMaxWaitMillis
	// is the total budget before WriteThrottleTimeout is returned.
	WriteThrottleSleepMillis  int `yaml:"writeThrottleSleepMillis"`
	WriteThrottleMaxWaitMillis int `yaml:"writeThrottleMaxWaitMillis"`

	// MasterpointerBlockBase and MasterpointerBlockCap parameterize the
	// block-size curve min(Base << N, Cap) the masterpointer arena grows by.
	MasterpointerBlockBase int `yaml:"masterpointerBlockBase"`
	MasterpointerBlockCap  int `yaml:"masterpointerBlockCap"`

	Log LogConfig `yaml:"log"`
}

// LogConfig mirrors pkg/log.Config in a YAML-serializable shape.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"jsonOutput"`
}

// Default returns the engine's built-in defaults, matching the values
// named in the masterpointer arena and write-throttle invariants.
func Default() EngineConfig {
	return EngineConfig{
		DataDir:                    "./data",
		WriteThrottleSleepMillis:   50,
		WriteThrottleMaxWaitMillis: 5000,
		MasterpointerBlockBase:     128,
		MasterpointerBlockCap:      32768,
		Log: LogConfig{
			Level:      "info",
			JSONOutput: true,
		},
	}
}

// Load reads an EngineConfig from a YAML file at path, applying
// Default() as the base so a partial file only overrides what it sets.
func Load(path string) (EngineConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// LogLevel translates the config's log level string into a log.Level,
// falling back to InfoLevel for unrecognized values.
func (c EngineConfig) LogLevel() log.Level {
	switch log.Level(c.Log.Level) {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
		return log.Level(c.Log.Level)
	default:
		return log.InfoLevel
	}
}
