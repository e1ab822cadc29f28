package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads, parses and validates a manifest YAML file. Validation runs
// here, at plan-construction time, so a self-contradictory declaration
// fails before any mutation can happen.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses and validates manifest YAML.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	applyDefaults(&m)
	if err := Validate(m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func applyDefaults(m *Manifest) {
	if m.Server.Install.Strategy == "" {
		m.Server.Install.Strategy = "scripted"
	}
	db := &m.Server.Install.Database
	if db.Type == "" {
		db.Type = "sqlite"
	}
	if db.Type != "sqlite" {
		if db.Name == "" {
			db.Name = "nextcloud"
		}
		if db.Host == "" {
			db.Host = "localhost"
		}
		if db.User == "" {
			db.User = "nextcloud"
		}
	}
	if m.Server.Install.Admin.User == "" {
		m.Server.Install.Admin.User = "admin"
	}
	if m.BackgroundJobs == "" {
		m.BackgroundJobs = "cron"
	}
}
