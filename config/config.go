// Package config loads the settings a host process needs to run state
// machines: machine policies, loop timing, metrics and logging.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then environment variables prefixed with TICKFSM_.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/librescoot/tickfsm"
	"github.com/librescoot/tickfsm/loop"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "TICKFSM_"

const (
	DuplicateReject  = "reject"
	DuplicateReplace = "replace"
)

// Config is the root configuration
type Config struct {
	Machine MachineConfig `yaml:"machine" envPrefix:"MACHINE_"`
	Loop    LoopConfig    `yaml:"loop" envPrefix:"LOOP_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
}

// MachineConfig holds the registration and switching policies
type MachineConfig struct {
	Name          string `yaml:"name" env:"NAME"`
	OnDuplicate   string `yaml:"on_duplicate" env:"ON_DUPLICATE"`       // reject | replace
	SameStateNoop bool   `yaml:"same_state_noop" env:"SAME_STATE_NOOP"` // ChangeState to the active state does nothing
}

// LoopConfig holds the host loop timing
type LoopConfig struct {
	TickRate    time.Duration `yaml:"tick_rate" env:"TICK_RATE"`
	MaxDelta    time.Duration `yaml:"max_delta" env:"MAX_DELTA"`
	StopOnError bool          `yaml:"stop_on_error" env:"STOP_ON_ERROR"`
	QueueSize   int           `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENABLED"`
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Machine: MachineConfig{
			OnDuplicate:   DuplicateReject,
			SameStateNoop: true,
		},
		Loop: LoopConfig{
			TickRate:  loop.DefaultTickRate,
			MaxDelta:  loop.DefaultMaxDelta,
			QueueSize: loop.DefaultQueueSize,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9090",
		},
		Log: LogConfig{
			Level:  LevelInfo,
			Format: FormatConsole,
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("yaml unmarshal %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.Machine.Name == "" {
		cfg.Machine.Name = "fsm-" + uuid.NewString()[:8]
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Machine.OnDuplicate) {
	case DuplicateReject, DuplicateReplace:
	default:
		errs = append(errs, fmt.Errorf("machine.on_duplicate: unknown policy %q", c.Machine.OnDuplicate))
	}
	if c.Loop.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("loop.tick_rate: must be positive, got %v", c.Loop.TickRate))
	}
	if c.Loop.MaxDelta < 0 {
		errs = append(errs, fmt.Errorf("loop.max_delta: must not be negative, got %v", c.Loop.MaxDelta))
	}
	if c.Loop.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("loop.queue_size: must be positive, got %d", c.Loop.QueueSize))
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errs = append(errs, errors.New("metrics.listen_addr: required when metrics are enabled"))
	}
	if err := c.Log.validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// MachineOptions converts the machine section into core options
func (c *Config) MachineOptions(logger *slog.Logger) []tickfsm.MachineOption {
	policy := tickfsm.DuplicateReject
	if strings.EqualFold(c.Machine.OnDuplicate, DuplicateReplace) {
		policy = tickfsm.DuplicateReplace
	}
	opts := []tickfsm.MachineOption{
		tickfsm.WithName(c.Machine.Name),
		tickfsm.WithDuplicatePolicy(policy),
		tickfsm.WithSameStateCheck(c.Machine.SameStateNoop),
	}
	if logger != nil {
		opts = append(opts, tickfsm.WithLogger(logger))
	}
	return opts
}

// LoopConfig converts the loop section into a loop.Config
func (c *Config) LoopConfig() loop.Config {
	return loop.Config{
		TickRate:    c.Loop.TickRate,
		MaxDelta:    c.Loop.MaxDelta,
		StopOnError: c.Loop.StopOnError,
		QueueSize:   c.Loop.QueueSize,
	}
}
