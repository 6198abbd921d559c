package config

import (
	"fmt"
	"strconv"
)

// Keys lists the dot-notation keys accepted by Get and Set, in display order.
var Keys = []string{
	"simulation.damping_factor",
	"simulation.step_delay",
	"simulation.max_steps",
	"simulation.unbounded",
	"layout.iterations",
	"layout.seed",
	"server.addr",
	"server.open_browser",
	"server.subscriber_buffer",
	"server.command_rate",
	"server.command_burst",
	"logging.level",
	"logging.trace_dir",
}

// Get retrieves a configuration value by dot-notation key.
func (c *Config) Get(key string) (any, bool) {
	switch key {
	case "simulation.damping_factor":
		return c.Simulation.DampingFactor, true
	case "simulation.step_delay":
		return c.Simulation.StepDelay.String(), true
	case "simulation.max_steps":
		return c.Simulation.MaxSteps, true
	case "simulation.unbounded":
		return c.Simulation.Unbounded, true
	case "layout.iterations":
		return c.Layout.Iterations, true
	case "layout.seed":
		return c.Layout.Seed, true
	case "server.addr":
		return c.Server.Addr, true
	case "server.open_browser":
		return c.Server.OpenBrowser, true
	case "server.subscriber_buffer":
		return c.Server.SubscriberBuffer, true
	case "server.command_rate":
		return c.Server.CommandRate, true
	case "server.command_burst":
		return c.Server.CommandBurst, true
	case "logging.level":
		return c.Logging.Level, true
	case "logging.trace_dir":
		return c.Logging.TraceDir, true
	default:
		return nil, false
	}
}

// Set sets a configuration value by dot-notation key and validates the
// result. On error the config is left unchanged.
func (c *Config) Set(key, value string) error {
	next := *c
	if err := next.set(key, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func (c *Config) set(key, value string) error {
	switch key {
	case "simulation.damping_factor":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid damping factor: %s (must be a number between 0 and 1)", value)
		}
		c.Simulation.DampingFactor = f
	case "simulation.step_delay":
		d, err := parseDelay(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		c.Simulation.StepDelay = d
	case "simulation.max_steps":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max steps: %s", value)
		}
		c.Simulation.MaxSteps = n
	case "simulation.unbounded":
		c.Simulation.Unbounded = parseBool(value)
	case "layout.iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid iterations: %s", value)
		}
		c.Layout.Iterations = n
	case "layout.seed":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed: %s", value)
		}
		c.Layout.Seed = n
	case "server.addr":
		c.Server.Addr = value
	case "server.open_browser":
		c.Server.OpenBrowser = parseBool(value)
	case "server.subscriber_buffer":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid buffer size: %s", value)
		}
		c.Server.SubscriberBuffer = n
	case "server.command_rate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid command rate: %s", value)
		}
		c.Server.CommandRate = f
	case "server.command_burst":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid command burst: %s", value)
		}
		c.Server.CommandBurst = n
	case "logging.level":
		c.Logging.Level = value
	case "logging.trace_dir":
		c.Logging.TraceDir = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}
