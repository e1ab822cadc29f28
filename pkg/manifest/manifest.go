// Package manifest declares the desired state of a managed installation:
// which release to run, how to trust its artifacts, how the one-shot
// initialization is driven, and which configuration values must hold.
// It is the contract between operator intent and the convergence engine.
package manifest

import "github.com/ncsteward/ncsteward/pkg/resource"

// Manifest is a complete desired-state declaration.
type Manifest struct {
	APIVersion     string     `yaml:"apiVersion" json:"apiVersion"`
	Kind           string     `yaml:"kind" json:"kind"`
	Server         Server     `yaml:"server" json:"server"`
	Config         ConfigSync `yaml:"config" json:"config"`
	BackgroundJobs string     `yaml:"background_jobs" json:"background_jobs"`
}

// Server declares the release and installation policy.
type Server struct {
	// Version pins an exact release. Mutually exclusive with Track.
	Version string `yaml:"version" json:"version"`
	// Track follows the latest release within this major version.
	Track int `yaml:"track" json:"track"`
	// MaxVersion bounds upgrades; partial versions widen to point
	// releases ("27" allows 27.x.y but never 28).
	MaxVersion string `yaml:"max_version" json:"max_version"`

	Source  Source  `yaml:"source" json:"source"`
	Trust   Trust   `yaml:"trust" json:"trust"`
	Install Install `yaml:"install" json:"install"`
}

// Source locates release artifacts. An empty archive URL uses the
// upstream default template.
type Source struct {
	ArchiveURL string `yaml:"archive_url" json:"archive_url"`
}

// Trust pins the accepted signer fingerprints and where to obtain the keys.
type Trust struct {
	Fingerprints    []string `yaml:"fingerprints" json:"fingerprints"`
	Keyserver       string   `yaml:"keyserver" json:"keyserver"`
	FallbackCertURL string   `yaml:"fallback_cert_url" json:"fallback_cert_url"`
}

// Install selects and parameterizes the installation strategy.
type Install struct {
	// Strategy is one of "manual", "scripted", "raw".
	Strategy string   `yaml:"strategy" json:"strategy"`
	Database Database `yaml:"database" json:"database"`
	Admin    Admin    `yaml:"admin" json:"admin"`
	DataDir  string   `yaml:"datadir" json:"datadir"`
	Raw      Raw      `yaml:"raw" json:"raw"`
}

// Database describes the backing database for scripted installs.
type Database struct {
	Type       string `yaml:"type" json:"type"` // sqlite, mysql, pgsql, oci
	Name       string `yaml:"name" json:"name"`
	Host       string `yaml:"host" json:"host"`
	User       string `yaml:"user" json:"user"`
	Password   Secret `yaml:"password" json:"password"`
	TableSpace string `yaml:"table_space" json:"table_space"` // oci only
}

// Admin describes the initial admin account for scripted installs.
type Admin struct {
	User     string `yaml:"user" json:"user"`
	Password Secret `yaml:"password" json:"password"`
	Email    string `yaml:"email" json:"email"`
}

// Secret is a credential given either literally or as an environment
// variable reference, never both. Leaving both unset where a secret is
// required is a configuration error, not a silent default.
type Secret struct {
	Value string `yaml:"value" json:"-"`
	Env   string `yaml:"env" json:"env"`
}

// IsSet reports whether either form of the secret is provided.
func (s Secret) IsSet() bool { return s.Value != "" || s.Env != "" }

// Resolve returns the secret value, reading the environment for
// reference-style secrets.
func (s Secret) Resolve(lookup func(string) (string, bool)) (string, error) {
	if s.Value != "" {
		return s.Value, nil
	}
	if s.Env != "" {
		v, ok := lookup(s.Env)
		if !ok || v == "" {
			return "", &resource.ConfigError{Field: s.Env, Reason: "referenced environment variable is unset"}
		}
		return v, nil
	}
	return "", &resource.ConfigError{Reason: "secret has neither a value nor a reference"}
}

// Raw parameterizes the mirrored install variant: the configuration store
// is imported directly, including instance identity, password salt and
// secret material, so a second node can replicate a configuration that was
// initialized elsewhere.
type Raw struct {
	Config map[string]any `yaml:"config" json:"config"`
}

// ConfigSync declares the configuration entries to converge after the
// compatibility checkpoint passes. A null value means "ensure absent".
type ConfigSync struct {
	System map[string]any            `yaml:"system" json:"system"`
	Apps   map[string]map[string]any `yaml:"apps" json:"apps"`
	// Force applies the configuration even when the compatibility check
	// reports errors before or after the import, skipping the revert.
	Force bool `yaml:"force" json:"force"`
}

// Empty reports whether there is nothing to synchronize.
func (c ConfigSync) Empty() bool {
	return len(c.System) == 0 && len(c.Apps) == 0
}

// Strategy is the install-strategy sum type, fixed at plan-construction
// time. Exactly one variant is produced per manifest.
type Strategy interface {
	strategyName() string
}

// ManualStrategy halts the graph after writing an autoconfiguration
// descriptor; the operator finishes setup out of band.
type ManualStrategy struct{}

// ScriptedStrategy drives the one-shot initialization with database
// parameters and admin credentials.
type ScriptedStrategy struct {
	Database Database
	Admin    Admin
	DataDir  string
}

// RawStrategy imports configuration directly and marks the data directory,
// bypassing the interactive installer entirely.
type RawStrategy struct {
	Config  map[string]any
	DataDir string
}

func (ManualStrategy) strategyName() string   { return "manual" }
func (ScriptedStrategy) strategyName() string { return "scripted" }
func (RawStrategy) strategyName() string      { return "raw" }
