package config

import (
	"fmt"
	"slices"
)

// Presets adjust a config in place for a common kind of run.
var Presets = map[string]func(*Config){
	"benchmark": func(c *Config) {
		c.Iterations = 1000
		c.Verify.Enabled = false
		c.Log.Verbosity = 0
	},
	// A collection fires on nearly every allocation.
	"stress-gc": func(c *Config) {
		c.Heap.ChunkSize = 64
		c.Heap.GCThreshold = 8
		c.Iterations = 10
		c.Verify.Enabled = true
	},
	"rest": func(c *Config) {
		c.Inputs.V = 0
		c.Inputs.VdDesired = 0
		c.Verify.Enabled = true
	},
}

// GetPreset returns DefaultConfig with the named preset applied, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ApplyPreset(cfg *Config, name string) error {
	apply, ok := Presets[name]
	if !ok {
		return fmt.Errorf("%w: %q (have %v)", ErrUnknownPreset, name, ListPresets())
	}
	apply(cfg)
	return nil
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
