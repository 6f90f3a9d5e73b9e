package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/roach88/graft/internal/merge"
)

// EnvPrefix prefixes every environment variable graft reads.
// A double underscore separates nesting: GRAFT_SYNC__MAX_PASSES.
const EnvPrefix = "GRAFT_"

// FileNames are searched in the working directory when no file is given.
var FileNames = []string{"graft.yaml", "graft.yml"}

// flagKeys maps CLI flag names to config keys. Other flags are ignored.
var flagKeys = map[string]string{
	"db":          "database",
	"log-format":  "log.format",
	"policy":      "sync.policy",
	"parallelism": "sync.parallelism",
	"max-passes":  "sync.max_passes",
	"identity":    "identity.version",
}

// Defaults returns the built-in configuration as a flat key map.
func Defaults() map[string]any {
	return map[string]any{
		"database":         DefaultDatabase,
		"log.level":        DefaultLogLevel,
		"log.format":       DefaultLogFormat,
		"sync.policy":      string(merge.DefaultPolicy),
		"sync.max_passes":  DefaultMaxPasses,
		"sync.prune_stale": true,
		"sync.parallelism": DefaultParallelism,
		"identity.version": DefaultIdentity,
	}
}

// Load reads configuration from defaults, the config file, GRAFT_
// environment variables and explicitly set flags, then validates it.
// cfgFile may be empty to search FileNames; flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := findConfigFile(cfgFile)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Sync.Policy = strings.ToLower(cfg.Sync.Policy)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envKey turns GRAFT_SYNC__MAX_PASSES into sync.max_passes.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// findConfigFile returns the explicit path, or the first of FileNames that
// exists in the working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range FileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}
