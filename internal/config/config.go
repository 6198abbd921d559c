// Package config provides unified configuration loading for causalloop.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rajithv/CausalLoop/internal/constants"
	"github.com/rajithv/CausalLoop/internal/layout"
	"github.com/rajithv/CausalLoop/internal/propagation"
)

var validate = validator.New()

// Config contains all causalloop configuration settings.
type Config struct {
	// Simulation contains the propagation parameters.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Layout contains the force layout parameters.
	Layout LayoutConfig `json:"layout" yaml:"layout"`

	// Server contains settings for the live browser view.
	Server ServerConfig `json:"server" yaml:"server"`

	// Logging contains settings for operational logging and step tracing.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig configures the damped propagation.
type SimulationConfig struct {
	// DampingFactor is the share of influence withheld per step, strictly
	// between 0 and 1.
	DampingFactor float64 `json:"damping_factor" yaml:"damping_factor" validate:"gt=0,lt=1"`

	// StepDelay is the pause between steps of a live run.
	StepDelay time.Duration `json:"step_delay" yaml:"step_delay" validate:"gte=0"`

	// MaxSteps stops a run after this many steps. 0 means unbounded.
	MaxSteps int `json:"max_steps" yaml:"max_steps" validate:"gte=0"`

	// Unbounded lets values grow past 100.
	Unbounded bool `json:"unbounded" yaml:"unbounded"`
}

// LayoutConfig configures the force-directed layout.
type LayoutConfig struct {
	// Iterations is the maximum number of layout steps.
	Iterations int `json:"iterations" yaml:"iterations" validate:"gte=1,lte=100000"`

	// Seed fixes the random source. 0 seeds from the clock.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// ServerConfig configures `causalloop serve`.
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:8080".
	Addr string `json:"addr" yaml:"addr" validate:"required,hostname_port"`

	// OpenBrowser opens the page in the default browser after start.
	OpenBrowser bool `json:"open_browser" yaml:"open_browser"`

	// SubscriberBuffer is the per-WebSocket event buffer. Slow clients miss
	// events once it is full.
	SubscriberBuffer int `json:"subscriber_buffer" yaml:"subscriber_buffer" validate:"gte=1,lte=65536"`

	// CommandRate is the number of control requests per second a single
	// client may send; CommandBurst is the bucket size.
	CommandRate  float64 `json:"command_rate" yaml:"command_rate" validate:"gt=0"`
	CommandBurst int     `json:"command_burst" yaml:"command_burst" validate:"gte=1"`
}

// LoggingConfig configures causalloop's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" and "trace" also write simulation steps to steps.jsonl.
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=info debug trace"`

	// TraceDir is where steps.jsonl is written. Defaults to ~/.causalloop.
	TraceDir string `json:"trace_dir,omitempty" yaml:"trace_dir,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			DampingFactor: constants.DefaultDampingFactor,
			StepDelay:     constants.DefaultStepDelayMs * time.Millisecond,
			MaxSteps:      0,
		},
		Layout: LayoutConfig{
			Iterations: layout.DefaultConfig().Iterations,
		},
		Server: ServerConfig{
			Addr:             "127.0.0.1:8080",
			SubscriberBuffer: 64,
			CommandRate:      20,
			CommandBurst:     40,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns ~/.causalloop.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.ConfigDirName), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.ConfigFileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.causalloop/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	// Try to load from default config file
	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Logging.TraceDir = expandEnvVars(config.Logging.TraceDir)

	return config, nil
}

// Save writes the configuration to path, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError turns validator errors into one readable line per
// field, keyed by the dot-notation name used in the config file.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := fieldKey(fe.Namespace())
		switch fe.Tag() {
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s, got %v", key, fe.Param(), fe.Value()))
		case "lt":
			msgs = append(msgs, fmt.Sprintf("%s must be less than %s, got %v", key, fe.Param(), fe.Value()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s, got %v", key, fe.Param(), fe.Value()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s, got %v", key, fe.Param(), fe.Value()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("invalid %s: %v (valid: %s, or empty for default)", key, fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", ")))
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", key))
		case "hostname_port":
			msgs = append(msgs, fmt.Sprintf("%s must be host:port, got %q", key, fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", key, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldKey maps a validator namespace such as "Config.Simulation.DampingFactor"
// to the config key "simulation.damping_factor".
func fieldKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snakeCase(p)
	}
	return strings.Join(parts, ".")
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Propagation converts the simulation settings into a propagation config.
func (c *Config) Propagation() propagation.Config {
	pc := propagation.DefaultConfig()
	pc.DampingFactor = c.Simulation.DampingFactor
	pc.StepDelay = c.Simulation.StepDelay
	pc.MaxSteps = c.Simulation.MaxSteps
	pc.Unbounded = c.Simulation.Unbounded
	return pc
}

// LayoutEngine builds a layout engine from the layout settings.
func (c *Config) LayoutEngine() *layout.Engine {
	lc := layout.DefaultConfig()
	lc.Iterations = c.Layout.Iterations
	var opts []layout.Option
	if c.Layout.Seed != 0 {
		opts = append(opts, layout.WithSeed(c.Layout.Seed))
	}
	return layout.NewEngine(lc, opts...)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("CAUSALLOOP_DAMPING_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.DampingFactor = f
		}
	}

	if v := os.Getenv("CAUSALLOOP_STEP_DELAY"); v != "" {
		if d, err := parseDelay(v); err == nil {
			config.Simulation.StepDelay = d
		}
	}

	if v := os.Getenv("CAUSALLOOP_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.MaxSteps = n
		}
	}

	if v := os.Getenv("CAUSALLOOP_UNBOUNDED"); v != "" {
		config.Simulation.Unbounded = v == "true" || v == "1"
	}

	if v := os.Getenv("CAUSALLOOP_LAYOUT_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Layout.Seed = n
		}
	}

	if v := os.Getenv("CAUSALLOOP_ADDR"); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv("CAUSALLOOP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("CAUSALLOOP_TRACE_DIR"); v != "" {
		config.Logging.TraceDir = v
	}
}

// parseDelay accepts a Go duration ("250ms") or a bare number of milliseconds.
func parseDelay(s string) (time.Duration, error) {
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
