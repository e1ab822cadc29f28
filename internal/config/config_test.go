package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/var/www/nextcloud", cfg.Webroot)
	assert.Equal(t, "www-data", cfg.Webuser)
	assert.True(t, cfg.Occ.EnsureAPC)
	assert.Equal(t, "https://keys.openpgp.org", cfg.Fetch.Keyserver)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ncsteward.yaml")
	doc := `
log_level: debug
webroot: /srv/www/cloud
occ:
  ensure_apc: false
  timeout: 5m
journal:
  path: /tmp/journal.db
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/srv/www/cloud", cfg.Webroot)
	assert.False(t, cfg.Occ.EnsureAPC)
	assert.Equal(t, 5*time.Minute, cfg.Occ.Timeout)
	assert.Equal(t, "/tmp/journal.db", cfg.Journal.Path)
	// Untouched sections keep their defaults.
	assert.Equal(t, "www-data", cfg.Webuser)
}

func TestLoadInterpolatesEnvVars(t *testing.T) {
	t.Setenv("NCS_TEST_WEBROOT", "/srv/from-env")

	path := filepath.Join(t.TempDir(), "ncsteward.yaml")
	doc := "webroot: ${NCS_TEST_WEBROOT}\nwebuser: ${NCS_TEST_UNSET}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/from-env", cfg.Webroot)
	assert.Equal(t, "${NCS_TEST_UNSET}", cfg.Webuser, "unset variables stay as-is")
}
