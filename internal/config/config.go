// Package config loads the component defaults a Manager uses to
// construct new sessions: pool sizing, memory maintenance and backend,
// checkpoint policy, and router cost mode. One YAML file, parsed into a generic map,
// environment-expanded, then decoded into typed structs — the same
// three-step shape the teacher's config loader uses for its own
// file-backed configuration, generalized from its single monolithic
// Config to this module's smaller, swarm-scoped one.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// SessionDefaults mirrors session.Config's construction-time fields in a
// YAML/mapstructure-friendly shape (durations as strings).
type SessionDefaults struct {
	MaxAgents          int    `mapstructure:"max_agents"`
	MaxConcurrentTasks int    `mapstructure:"max_concurrent_tasks"`
	CheckpointInterval string `mapstructure:"checkpoint_interval"`
	AutoCheckpoint     bool   `mapstructure:"auto_checkpoint"`
	PersistToDisk      bool   `mapstructure:"persist_to_disk"`
	MaxCheckpoints     int    `mapstructure:"max_checkpoints"`
}

// PoolDefaults mirrors pool.Config's sizing fields.
type PoolDefaults struct {
	MinWorkers int    `mapstructure:"min_workers"`
	MaxWorkers int    `mapstructure:"max_workers"`
	Strategy   string `mapstructure:"strategy"`
}

// MemoryDefaults configures the tiered memory store's maintenance cadence
// and backend selection; it has no per-tier budget fields.
type MemoryDefaults struct {
	MaintenanceEvery string `mapstructure:"maintenance_every"`
	Backend          string `mapstructure:"backend"` // "sqlite" keeps session checkpoints in SQLite at BackendPath; any other value keeps them in memory
	BackendPath      string `mapstructure:"backend_path"`
}

// RouterDefaults configures the LLM router's tie-break preference and
// declared provider fallback order.
type RouterDefaults struct {
	DefaultProvider string   `mapstructure:"default_provider"`
	Fallbacks       []string `mapstructure:"fallbacks"`
	CostMode        string   `mapstructure:"cost_mode"`
}

// Defaults is the full set of component defaults loaded from one file.
type Defaults struct {
	Session SessionDefaults `mapstructure:"session"`
	Pool    PoolDefaults    `mapstructure:"pool"`
	Memory  MemoryDefaults  `mapstructure:"memory"`
	Router  RouterDefaults  `mapstructure:"router"`
}

// ParseDuration parses a Defaults duration field, returning 0 for an
// empty string (the caller's own zero-value default applies).
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// expandEnvVars walks a decoded YAML value tree and substitutes
// ${VAR} / ${VAR:-default} references in every string leaf, the same
// expansion syntax the teacher's loader supports.
func expandEnvVars(v any) any {
	switch val := v.(type) {
	case string:
		return envVarPattern.ReplaceAllStringFunc(val, func(match string) string {
			groups := envVarPattern.FindStringSubmatch(match)
			name, fallback := groups[1], groups[2]
			if envVal, ok := os.LookupEnv(name); ok {
				return envVal
			}
			if fallback != "" {
				return fallback[2:] // strip leading ":-"
			}
			return ""
		})
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = expandEnvVars(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = expandEnvVars(e)
		}
		return out
	default:
		return v
	}
}

// Load reads path, parses it as YAML, expands environment variable
// references, and decodes the result into a Defaults value.
func Load(path string) (*Defaults, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var rawMap map[string]any
	if err := yaml.Unmarshal(raw, &rawMap); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	expanded, _ := expandEnvVars(rawMap).(map[string]any)

	defaults := &Defaults{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           defaults,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(expanded); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return defaults, nil
}
