// Package config holds the viper configuration singleton. Precedence:
// flags (handled by cobra) > SDD_ environment variables > the nearest
// .claude/sdd_config.json walking up from the working directory >
// built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/specdeck/specdeck/internal/debug"
)

var v *viper.Viper

// Initialize sets up the configuration singleton. Call once at
// startup, before any accessor.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("json")

	configFileSet := false

	// Walk up from CWD so commands work from subdirectories.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".claude", "sdd_config.json")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// Fall back to the user config directory.
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "sdd", "sdd_config.json")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// SDD_SPECS_DIR maps to "specs-dir", SDD_LOCK_TIMEOUT to
	// "lock-timeout", and so on.
	v.SetEnvPrefix("SDD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("plain", false)
	v.SetDefault("specs-dir", "specs")
	v.SetDefault("lock-timeout", "10s")
	v.SetDefault("max-spec-file-size", int64(100<<20))
	v.SetDefault("backup-on-save", true)

	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.max-bytes", int64(512<<20))

	v.SetDefault("consult.providers-file", "")
	v.SetDefault("consult.max-concurrent", 4)

	v.SetDefault("git.enabled", true)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("config: loaded %s", v.ConfigFileUsed())
	} else {
		debug.Logf("config: no sdd_config.json found; using defaults and environment")
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns a boolean config value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt returns an integer config value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetInt64 returns a 64-bit integer config value.
func GetInt64(key string) int64 {
	if v == nil {
		return 0
	}
	return v.GetInt64(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a value at runtime, for flag binding and tests.
func Set(key string, value any) {
	if v == nil {
		v = viper.New()
	}
	v.Set(key, value)
}

// SpecsDir resolves the specs root. A relative configured path is
// anchored at the project root holding .claude/sdd_config.json,
// falling back to the working directory.
func SpecsDir() string {
	dir := GetString("specs-dir")
	if filepath.IsAbs(dir) {
		return dir
	}
	if v != nil {
		if used := v.ConfigFileUsed(); used != "" {
			// used is <root>/.claude/sdd_config.json
			return filepath.Join(filepath.Dir(filepath.Dir(used)), dir)
		}
	}
	return dir
}

// CacheDir resolves the consultation cache directory, defaulting to
// the user cache directory.
func CacheDir() string {
	if dir := GetString("cache.dir"); dir != "" {
		return dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "sdd-cache")
	}
	return filepath.Join(base, "sdd", "consult-cache")
}

// ProvidersFile resolves the providers.toml path. Empty means no file
// and built-in provider defaults.
func ProvidersFile() string {
	if path := GetString("consult.providers-file"); path != "" {
		return path
	}
	if v != nil {
		if used := v.ConfigFileUsed(); used != "" {
			candidate := filepath.Join(filepath.Dir(used), "providers.toml")
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// RepoRoot returns the directory holding .claude/sdd_config.json, or
// the working directory when no config file was found.
func RepoRoot() string {
	if v != nil {
		if used := v.ConfigFileUsed(); used != "" {
			return filepath.Dir(filepath.Dir(used))
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}
