package manifest

import (
	"fmt"

	"github.com/ncsteward/ncsteward/pkg/resource"
)

var databaseTypes = map[string]bool{"sqlite": true, "mysql": true, "pgsql": true, "oci": true}
var backgroundJobModes = map[string]bool{"cron": true, "ajax": true, "webcron": true}

// Validate checks the manifest for contradictions. Every error it returns
// is a ConfigError: fatal at plan-construction time, before any mutation.
func Validate(m Manifest) error {
	srv := m.Server

	if srv.Version == "" && srv.Track == 0 {
		return &resource.ConfigError{Field: "server", Reason: "either version or track must be set"}
	}
	if srv.Version != "" && srv.Track != 0 {
		return &resource.ConfigError{Field: "server", Reason: "version and track are mutually exclusive"}
	}
	if srv.Track < 0 {
		return &resource.ConfigError{Field: "server.track", Reason: fmt.Sprintf("invalid major version %d", srv.Track)}
	}

	if len(srv.Trust.Fingerprints) == 0 {
		return &resource.ConfigError{Field: "server.trust.fingerprints", Reason: "at least one signer fingerprint must be pinned"}
	}

	if err := validateInstall(srv.Install); err != nil {
		return err
	}

	if !backgroundJobModes[m.BackgroundJobs] {
		return &resource.ConfigError{Field: "background_jobs", Reason: fmt.Sprintf("unknown mode %q", m.BackgroundJobs)}
	}

	return nil
}

func validateInstall(in Install) error {
	switch in.Strategy {
	case "manual":
		return nil

	case "scripted":
		if err := validateSecret("server.install.admin.password", in.Admin.Password, true); err != nil {
			return err
		}
		db := in.Database
		if !databaseTypes[db.Type] {
			return &resource.ConfigError{Field: "server.install.database.type", Reason: fmt.Sprintf("unsupported type %q", db.Type)}
		}
		if db.Type != "sqlite" {
			if err := validateSecret("server.install.database.password", db.Password, true); err != nil {
				return err
			}
		}
		if db.TableSpace != "" && db.Type != "oci" {
			return &resource.ConfigError{Field: "server.install.database.table_space", Reason: "only valid for oci databases"}
		}
		return nil

	case "raw":
		if len(in.Raw.Config) == 0 {
			return &resource.ConfigError{Field: "server.install.raw.config", Reason: "raw install requires a configuration to import"}
		}
		for _, key := range []string{"instanceid", "passwordsalt", "secret"} {
			if _, ok := in.Raw.Config[key]; !ok {
				return &resource.ConfigError{
					Field:  "server.install.raw.config",
					Reason: fmt.Sprintf("missing %q; a mirrored install must carry the instance identity of the source node", key),
				}
			}
		}
		if in.DataDir == "" {
			return &resource.ConfigError{Field: "server.install.datadir", Reason: "raw install requires an explicit data directory to mark"}
		}
		return nil

	default:
		return &resource.ConfigError{Field: "server.install.strategy", Reason: fmt.Sprintf("unknown strategy %q", in.Strategy)}
	}
}

// validateSecret enforces the value-XOR-reference rule for credentials.
func validateSecret(field string, s Secret, required bool) error {
	if s.Value != "" && s.Env != "" {
		return &resource.ConfigError{Field: field, Reason: "give either a value or an environment reference, never both"}
	}
	if required && !s.IsSet() {
		return &resource.ConfigError{Field: field, Reason: "neither a value nor an environment reference supplied"}
	}
	return nil
}

// InstallStrategy returns the validated strategy variant for this manifest.
// Call only after Validate; the strategy is fixed for the whole plan.
func (m Manifest) InstallStrategy() Strategy {
	in := m.Server.Install
	switch in.Strategy {
	case "manual":
		return ManualStrategy{}
	case "raw":
		return RawStrategy{Config: in.Raw.Config, DataDir: in.DataDir}
	default:
		return ScriptedStrategy{Database: in.Database, Admin: in.Admin, DataDir: in.DataDir}
	}
}
