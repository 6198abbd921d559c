package config

import (
	"strings"
	"testing"
	"time"
)

func TestGet_AllKeys(t *testing.T) {
	config := Default()
	for _, key := range Keys {
		if _, ok := config.Get(key); !ok {
			t.Errorf("Get(%q) not found", key)
		}
	}
	if _, ok := config.Get("llm.provider"); ok {
		t.Error("Get of unknown key should fail")
	}
}

func TestSet(t *testing.T) {
	tests := []struct {
		key   string
		value string
		check func(*Config) bool
	}{
		{"simulation.damping_factor", "0.25", func(c *Config) bool { return c.Simulation.DampingFactor == 0.25 }},
		{"simulation.step_delay", "1s", func(c *Config) bool { return c.Simulation.StepDelay == time.Second }},
		{"simulation.step_delay", "300", func(c *Config) bool { return c.Simulation.StepDelay == 300*time.Millisecond }},
		{"simulation.max_steps", "100", func(c *Config) bool { return c.Simulation.MaxSteps == 100 }},
		{"simulation.unbounded", "1", func(c *Config) bool { return c.Simulation.Unbounded }},
		{"layout.seed", "99", func(c *Config) bool { return c.Layout.Seed == 99 }},
		{"server.addr", ":8181", func(c *Config) bool { return c.Server.Addr == ":8181" }},
		{"logging.level", "debug", func(c *Config) bool { return c.Logging.Level == "debug" }},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			config := Default()
			if err := config.Set(tt.key, tt.value); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if !tt.check(config) {
				t.Errorf("Set(%s, %s) did not apply", tt.key, tt.value)
			}
		})
	}
}

func TestSet_Rejects(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		wantErr string
	}{
		{"simulation.damping_factor", "abc", "invalid damping factor"},
		{"simulation.damping_factor", "1.5", "simulation.damping_factor must be less than 1"},
		{"simulation.max_steps", "-3", "simulation.max_steps must be at least 0"},
		{"logging.level", "loud", "invalid logging.level"},
		{"nope.key", "1", "unknown configuration key"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			config := Default()
			before := *config
			err := config.Set(tt.key, tt.value)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
			if *config != before {
				t.Error("failed Set modified the config")
			}
		})
	}
}
