package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncsteward/ncsteward/pkg/resource"
)

const validManifest = `
apiVersion: v1
kind: Nextcloud
server:
  track: 28
  max_version: "28"
  trust:
    fingerprints:
      - "28806A878AE423A28372792ED75899B9A724937A"
  install:
    strategy: scripted
    database:
      type: pgsql
      password:
        env: NC_DB_PASS
    admin:
      user: admin
      password:
        env: NC_ADMIN_PASS
config:
  system:
    loglevel: 2
background_jobs: cron
`

func TestParseValidManifest(t *testing.T) {
	m, err := Parse([]byte(validManifest))
	require.NoError(t, err)

	assert.Equal(t, 28, m.Server.Track)
	assert.Equal(t, "28", m.Server.MaxVersion)
	assert.Len(t, m.Server.Trust.Fingerprints, 1)
	assert.Equal(t, "cron", m.BackgroundJobs)
	assert.False(t, m.Config.Empty())

	st, ok := m.InstallStrategy().(ScriptedStrategy)
	require.True(t, ok)
	assert.Equal(t, "pgsql", st.Database.Type)
	// Defaults fill the gaps the declaration left open.
	assert.Equal(t, "nextcloud", st.Database.Name)
	assert.Equal(t, "localhost", st.Database.Host)
}

func TestParseDefaults(t *testing.T) {
	m, err := Parse([]byte(`
server:
  version: "28.0.4"
  trust:
    fingerprints: ["ABCD"]
  install:
    admin:
      password:
        value: secret
`))
	require.NoError(t, err)
	assert.Equal(t, "scripted", m.Server.Install.Strategy)
	assert.Equal(t, "sqlite", m.Server.Install.Database.Type)
	assert.Equal(t, "admin", m.Server.Install.Admin.User)
	assert.Equal(t, "cron", m.BackgroundJobs)
}

func requireConfigError(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, resource.IsConfigError(err), "expected a configuration error, got %v", err)
	assert.Contains(t, err.Error(), field)
}

func TestValidateVersionXorTrack(t *testing.T) {
	_, err := Parse([]byte(`
server:
  version: "28.0.4"
  track: 28
  trust:
    fingerprints: ["ABCD"]
  install:
    admin:
      password: {value: x}
`))
	requireConfigError(t, err, "mutually exclusive")

	_, err = Parse([]byte(`
server:
  trust:
    fingerprints: ["ABCD"]
  install:
    admin:
      password: {value: x}
`))
	requireConfigError(t, err, "either version or track")
}

func TestValidateRequiresTrustAnchor(t *testing.T) {
	_, err := Parse([]byte(`
server:
  version: "28.0.4"
  install:
    admin:
      password: {value: x}
`))
	requireConfigError(t, err, "fingerprints")
}

func TestValidateUnknownStrategy(t *testing.T) {
	_, err := Parse([]byte(`
server:
  version: "28.0.4"
  trust:
    fingerprints: ["ABCD"]
  install:
    strategy: yolo
`))
	requireConfigError(t, err, "strategy")
}

func TestValidateSecretValueXorEnv(t *testing.T) {
	_, err := Parse([]byte(`
server:
  version: "28.0.4"
  trust:
    fingerprints: ["ABCD"]
  install:
    admin:
      password:
        value: x
        env: ALSO_SET
`))
	requireConfigError(t, err, "never both")
}

func TestValidateScriptedNeedsAdminPassword(t *testing.T) {
	_, err := Parse([]byte(`
server:
  version: "28.0.4"
  trust:
    fingerprints: ["ABCD"]
  install:
    strategy: scripted
`))
	requireConfigError(t, err, "admin.password")
}

func TestValidateNonSqliteNeedsDatabasePassword(t *testing.T) {
	_, err := Parse([]byte(`
server:
  version: "28.0.4"
  trust:
    fingerprints: ["ABCD"]
  install:
    database:
      type: mysql
    admin:
      password: {value: x}
`))
	requireConfigError(t, err, "database.password")
}

func TestValidateRawNeedsInstanceIdentity(t *testing.T) {
	_, err := Parse([]byte(`
server:
  version: "28.0.4"
  trust:
    fingerprints: ["ABCD"]
  install:
    strategy: raw
    datadir: /srv/ncdata
    raw:
      config:
        instanceid: oc123
        passwordsalt: salt
`))
	requireConfigError(t, err, "secret")
}

func TestValidateRawNeedsDataDir(t *testing.T) {
	_, err := Parse([]byte(`
server:
  version: "28.0.4"
  trust:
    fingerprints: ["ABCD"]
  install:
    strategy: raw
    raw:
      config:
        instanceid: oc123
        passwordsalt: salt
        secret: sauce
`))
	requireConfigError(t, err, "datadir")
}

func TestValidateBackgroundJobsMode(t *testing.T) {
	_, err := Parse([]byte(`
server:
  version: "28.0.4"
  trust:
    fingerprints: ["ABCD"]
  install:
    admin:
      password: {value: x}
background_jobs: sometimes
`))
	requireConfigError(t, err, "background_jobs")
}

func TestSecretResolve(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "SET_VAR" {
			return "from-env", true
		}
		return "", false
	}

	v, err := Secret{Value: "literal"}.Resolve(lookup)
	require.NoError(t, err)
	assert.Equal(t, "literal", v)

	v, err = Secret{Env: "SET_VAR"}.Resolve(lookup)
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	_, err = Secret{Env: "UNSET_VAR"}.Resolve(lookup)
	require.Error(t, err)
	assert.True(t, resource.IsConfigError(err))

	_, err = Secret{}.Resolve(lookup)
	require.Error(t, err)
}

func TestManualStrategyIgnoresCredentialRules(t *testing.T) {
	m, err := Parse([]byte(`
server:
  version: "28.0.4"
  trust:
    fingerprints: ["ABCD"]
  install:
    strategy: manual
`))
	require.NoError(t, err)
	_, ok := m.InstallStrategy().(ManualStrategy)
	assert.True(t, ok)
}
