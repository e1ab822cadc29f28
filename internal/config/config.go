package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine runtime configuration from ncsteward.yaml.
// It describes how to reach the managed installation, not what state
// to converge it to; the desired state lives in the manifest.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Webroot  string        `yaml:"webroot"`
	Webuser  string        `yaml:"webuser"`
	Occ      OccConfig     `yaml:"occ"`
	Fetch    FetchConfig   `yaml:"fetch"`
	Journal  JournalConfig `yaml:"journal"`
}

// OccConfig tunes how the control script is invoked.
type OccConfig struct {
	// EnsureAPC runs php with --define apc.enable_cli=1. APCu is disabled
	// on CLI by default, which breaks occ when Nextcloud has it enabled.
	EnsureAPC bool          `yaml:"ensure_apc"`
	Timeout   time.Duration `yaml:"timeout"`
}

// FetchConfig controls artifact acquisition and trust-anchor resolution.
type FetchConfig struct {
	ScratchDir      string        `yaml:"scratch_dir"`
	Keyserver       string        `yaml:"keyserver"`
	FallbackCertURL string        `yaml:"fallback_cert_url"`
	Timeout         time.Duration `yaml:"timeout"`
}

// JournalConfig controls the local run journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Webroot:  "/var/www/nextcloud",
		Webuser:  "www-data",
		Occ: OccConfig{
			EnsureAPC: true,
			Timeout:   10 * time.Minute,
		},
		Fetch: FetchConfig{
			Keyserver:       "https://keys.openpgp.org",
			FallbackCertURL: "https://nextcloud.com/nextcloud.asc",
			Timeout:         30 * time.Minute,
		},
		Journal: JournalConfig{
			Path: "/var/lib/ncsteward/journal.db",
		},
	}
}

// Load reads and parses a runtime config YAML file. Returns the default
// config if the file doesn't exist. Performs ${ENV} interpolation on the
// raw document before parsing so credentials never live in the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	interpolated := interpolateEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func interpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match // Leave unresolved if not set.
	})
}
