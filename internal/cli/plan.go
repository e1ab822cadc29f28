package cli

import (
	"github.com/spf13/cobra"

	"github.com/ncsteward/ncsteward/pkg/engine"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <manifest.yaml>",
		Short: "Show what a run would change without mutating anything",
		Long: `Probe every assertion in the plan and report which would change. Probes
are pure reads; nothing is downloaded, installed or reconfigured.

Example:
  ncsteward plan manifest.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, man, err := loadInputs(rootOpts, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "load inputs", err)
			}
			log := setupLogging(rootOpts, cfg)

			eng, err := engine.New(cfg, man, engine.Options{
				Runner:   rootOpts.Runner,
				Resolver: rootOpts.Resolver,
				Log:      log,
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "build plan", err)
			}

			report, err := eng.Plan(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "plan", err)
			}
			return renderReport(cmd.OutOrStdout(), rootOpts.Format, report)
		},
	}

	return cmd
}
