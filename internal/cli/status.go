package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ncsteward/ncsteward/internal/config"
	"github.com/ncsteward/ncsteward/pkg/occ"
	"github.com/ncsteward/ncsteward/pkg/server"
)

// newServer builds the lifecycle wrapper straight from the runtime config,
// for commands that inspect the installation without a manifest.
func newServer(opts *RootOptions, cfg config.Config, log *slog.Logger) *server.Server {
	runner := opts.Runner
	if runner == nil {
		runner = occ.ExecRunner{}
	}
	cli := occ.New(runner, cfg.Webroot, cfg.Webuser, cfg.Occ.EnsureAPC, log)
	return server.New(cli, log)
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show the installation's self-reported state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			log := setupLogging(rootOpts, cfg)
			srv := newServer(rootOpts, cfg, log)

			st, err := srv.Status(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "status", err)
			}
			if rootOpts.Format == "json" {
				return renderJSON(cmd.OutOrStdout(), st)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "installed:    %v\n", st.Installed)
			fmt.Fprintf(out, "version:      %s (%s)\n", st.Version, st.VersionString)
			fmt.Fprintf(out, "maintenance:  %v\n", st.Maintenance)
			fmt.Fprintf(out, "needs dbupgrade: %v\n", st.NeedsDBUpgrade)
			return nil
		},
	}

	return cmd
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "check",
		Short:         "Run the compatibility checkpoint",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			log := setupLogging(rootOpts, cfg)
			srv := newServer(rootOpts, cfg, log)

			ok, detail, err := srv.Check(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "check", err)
			}
			if rootOpts.Format == "json" {
				return renderJSON(cmd.OutOrStdout(), map[string]any{"ok": ok, "detail": detail})
			}
			if detail != "" {
				fmt.Fprintln(cmd.OutOrStdout(), detail)
			}
			if !ok {
				return WrapExitError(ExitFailure, "compatibility check failed", nil)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "check passed")
			return nil
		},
	}

	return cmd
}
