package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ncsteward/ncsteward/internal/config"
	"github.com/ncsteward/ncsteward/internal/journal"
)

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	var last bool

	cmd := &cobra.Command{
		Use:           "journal",
		Short:         "List recorded convergence runs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			setupLogging(rootOpts, cfg)

			jrnl, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return WrapExitError(ExitCommandError, "open journal", err)
			}
			defer jrnl.Close()

			if last {
				rec, found, err := jrnl.Latest()
				if err != nil {
					return WrapExitError(ExitCommandError, "read journal", err)
				}
				if !found {
					fmt.Fprintln(cmd.OutOrStdout(), "journal is empty")
					return nil
				}
				return renderRun(cmd, rootOpts, rec)
			}

			records, err := jrnl.List(limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "read journal", err)
			}
			if rootOpts.Format == "json" {
				return renderJSON(cmd.OutOrStdout(), records)
			}
			for _, rec := range records {
				status := "ok"
				if !rec.Succeeded {
					status = "FAILED"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  %d assertions\n",
					rec.Token, rec.StartedAt.Format("2006-01-02 15:04:05"), status, len(rec.Results))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().BoolVar(&last, "last", false, "show the most recent run in full")

	return cmd
}

func renderRun(cmd *cobra.Command, rootOpts *RootOptions, rec journal.RunRecord) error {
	if rootOpts.Format == "json" {
		return renderJSON(cmd.OutOrStdout(), rec)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s)\n", rec.Token, rec.StartedAt.Format("2006-01-02 15:04:05"))
	for _, r := range rec.Results {
		fmt.Fprintf(out, "  %-20s %s", r.ID, r.Outcome)
		if r.Error != "" {
			fmt.Fprintf(out, "  (%s)", r.Error)
		}
		fmt.Fprintln(out)
	}
	return nil
}
