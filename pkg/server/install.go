package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ncsteward/ncsteward/pkg/confsync"
	"github.com/ncsteward/ncsteward/pkg/manifest"
	"github.com/ncsteward/ncsteward/pkg/occ"
	"github.com/ncsteward/ncsteward/pkg/resource"
)

// Install drives the one-shot scripted initialization. Passwords travel
// through the environment; the command line only ever carries references.
func (s *Server) Install(ctx context.Context, st manifest.ScriptedStrategy) error {
	installed, err := s.IsInstalled(ctx)
	if err != nil {
		return err
	}
	if installed {
		return fmt.Errorf("%w: already installed, refusing to initialize again", resource.ErrInstallFailed)
	}

	adminPass, err := st.Admin.Password.Resolve(os.LookupEnv)
	if err != nil {
		return fmt.Errorf("%w: %v", resource.ErrInstallFailed, err)
	}

	dataDir := st.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(s.cli.Webroot(), "data")
	}

	params := []occ.Param{
		{Name: "database", Value: st.Database.Type},
		{Name: "admin-user", Value: st.Admin.User},
		{Name: "admin-pass", Value: adminPass, FromEnv: "NC_ADMIN_PASS"},
		{Name: "data-dir", Value: dataDir},
	}
	if st.Admin.Email != "" {
		params = append(params, occ.Param{Name: "admin-email", Value: st.Admin.Email})
	}
	if st.Database.Type != "sqlite" {
		dbPass, err := st.Database.Password.Resolve(os.LookupEnv)
		if err != nil {
			return fmt.Errorf("%w: %v", resource.ErrInstallFailed, err)
		}
		params = append(params,
			occ.Param{Name: "database-name", Value: st.Database.Name},
			occ.Param{Name: "database-host", Value: st.Database.Host},
			occ.Param{Name: "database-user", Value: st.Database.User},
			occ.Param{Name: "database-pass", Value: dbPass, FromEnv: "NC_DB_PASS"},
		)
	}
	if st.Database.TableSpace != "" {
		params = append(params, occ.Param{Name: "database-table-space", Value: st.Database.TableSpace})
	}

	s.log.Info("running one-shot initialization", "database", st.Database.Type, "datadir", dataDir)
	if _, err := s.cli.Occ(ctx, occ.Command{Name: "maintenance:install", Params: params, Quiet: true}); err != nil {
		return fmt.Errorf("%w: %v", resource.ErrInstallFailed, err)
	}
	return nil
}

// WriteAutoconfig writes the autoconfiguration descriptor for the manual
// strategy. The operator completes setup through the web installer, which
// picks the descriptor up and pre-fills everything it names.
func (s *Server) WriteAutoconfig(ctx context.Context, in manifest.Install) error {
	auto := map[string]any{}
	if in.Database.Type != "" {
		auto["dbtype"] = in.Database.Type
	}
	if in.Database.Type != "" && in.Database.Type != "sqlite" {
		auto["dbname"] = in.Database.Name
		auto["dbhost"] = in.Database.Host
		auto["dbuser"] = in.Database.User
		if in.Database.Password.Value != "" {
			auto["dbpass"] = in.Database.Password.Value
		}
		if in.Database.TableSpace != "" {
			auto["dbtablespace"] = in.Database.TableSpace
		}
	}
	dataDir := in.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(s.cli.Webroot(), "data")
	}
	auto["directory"] = dataDir
	if in.Admin.User != "" {
		auto["adminlogin"] = in.Admin.User
	}
	if in.Admin.Password.Value != "" {
		auto["adminpass"] = in.Admin.Password.Value
	}

	doc := "<?php\n$AUTOCONFIG = " + confsync.PHPLiteral(auto) + ";\n"
	path := filepath.Join(s.cli.Webroot(), "config", "autoconfig.php")
	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return fmt.Errorf("%w: %v", resource.ErrInstallFailed, err)
	}
	if err := os.WriteFile(path, []byte(doc), 0o640); err != nil {
		return fmt.Errorf("%w: write %s: %v", resource.ErrInstallFailed, path, err)
	}
	s.log.Info("wrote autoconfiguration descriptor, finish setup via the web installer", "path", path)
	return nil
}

// rawImportScript merges a configuration fragment into config.php the way
// the application itself serializes it. Null values remove keys. The merged
// file is rewritten via var_export and kept group-readable only.
const rawImportScript = `
$config_new = %s;
$config_file = "./config/config.php";
$CONFIG = array();
if (file_exists($config_file)) { require $config_file; }
$config_merged = array_merge($CONFIG, $config_new);
foreach ($config_new as $k => $v) { if (is_null($v)) { unset($config_merged[$k]); } }
file_put_contents($config_file, "<?php\n\$CONFIG = " . var_export($config_merged, true) . ";\n");
chmod($config_file, 0640);
echo json_encode(true);
`

// InstallRaw replicates an installation initialized elsewhere: the declared
// configuration, carrying the source node's instance identity, is written
// directly into the configuration store, the data directory is marked, and
// the interactive installer is disabled by recording the installed state.
func (s *Server) InstallRaw(ctx context.Context, st manifest.RawStrategy) error {
	installed, err := s.IsInstalled(ctx)
	if err != nil {
		return err
	}
	if installed {
		return fmt.Errorf("%w: already installed, refusing to overwrite instance identity", resource.ErrInstallFailed)
	}

	cfg := make(map[string]any, len(st.Config)+2)
	for k, v := range st.Config {
		cfg[k] = v
	}
	cfg["datadirectory"] = st.DataDir
	cfg["installed"] = true

	script := fmt.Sprintf(rawImportScript, confsync.PHPLiteral(cfg))
	if _, err := s.cli.PHP(ctx, script); err != nil {
		return fmt.Errorf("%w: import configuration: %v", resource.ErrInstallFailed, err)
	}

	if err := os.MkdirAll(st.DataDir, 0o770); err != nil {
		return fmt.Errorf("%w: %v", resource.ErrInstallFailed, err)
	}
	sentinel := filepath.Join(st.DataDir, ".ocdata")
	if err := os.WriteFile(sentinel, nil, 0o640); err != nil {
		return fmt.Errorf("%w: mark data directory: %v", resource.ErrInstallFailed, err)
	}
	s.log.Info("imported configuration from source node", "datadir", st.DataDir)
	return nil
}
