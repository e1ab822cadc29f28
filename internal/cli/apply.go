package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ncsteward/ncsteward/internal/journal"
	"github.com/ncsteward/ncsteward/pkg/engine"
)

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	var noJournal bool

	cmd := &cobra.Command{
		Use:   "apply <manifest.yaml>",
		Short: "Converge the installation toward the manifest",
		Long: `Converge the managed installation toward the declared state and print
the per-assertion report. The run is recorded in the local journal.

Example:
  ncsteward apply /etc/ncsteward/manifest.yaml
  ncsteward apply --format json manifest.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, man, err := loadInputs(rootOpts, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "load inputs", err)
			}
			log := setupLogging(rootOpts, cfg)

			var jrnl *journal.Journal
			if !noJournal {
				jrnl, err = journal.Open(cfg.Journal.Path)
				if err != nil {
					return WrapExitError(ExitCommandError, "open journal", err)
				}
				defer func() {
					if cerr := jrnl.Close(); cerr != nil {
						slog.Error("closing journal", "error", cerr)
					}
				}()
			}

			eng, err := engine.New(cfg, man, engine.Options{
				Runner:   rootOpts.Runner,
				Resolver: rootOpts.Resolver,
				Journal:  jrnl,
				Log:      log,
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "build plan", err)
			}

			var stop func()
			if rootOpts.Verbose {
				stop = streamEvents(eng.Bus(), cmd.ErrOrStderr())
			}

			report, err := eng.Run(cmd.Context())
			if stop != nil {
				stop()
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "run", err)
			}
			if err := renderReport(cmd.OutOrStdout(), rootOpts.Format, report); err != nil {
				return err
			}
			if report.Failed() {
				return WrapExitError(ExitFailure, "convergence incomplete", report.Err())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "do not record this run in the journal")

	return cmd
}
