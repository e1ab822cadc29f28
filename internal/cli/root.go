// Package cli wires the ncsteward commands: converge, plan, inspect and the
// run journal.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ncsteward/ncsteward/internal/config"
	"github.com/ncsteward/ncsteward/pkg/manifest"
	"github.com/ncsteward/ncsteward/pkg/occ"
	"github.com/ncsteward/ncsteward/pkg/release"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	// Runner and Resolver allow substituting the subprocess runner and the
	// version resolver (for testing). Nil means production defaults.
	Runner   occ.Runner
	Resolver release.Resolver
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ncsteward CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ncsteward",
		Short: "Idempotent installer and upgrader for a self-hosted Nextcloud",
		Long: `ncsteward converges a Nextcloud installation toward a declared manifest:
it acquires and verifies release archives, runs the one-shot initialization,
holds the compatibility checkpoint, upgrades within declared bounds and
synchronizes configuration.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "/etc/ncsteward/ncsteward.yaml", "runtime config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewJournalCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setupLogging configures the default slog handler from the flags and the
// runtime config, returning the logger commands should use.
func setupLogging(opts *RootOptions, cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogLevel == "debug" || opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// loadInputs reads the runtime config and the desired-state manifest.
func loadInputs(opts *RootOptions, manifestPath string) (config.Config, manifest.Manifest, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, manifest.Manifest{}, err
	}
	man, err := manifest.Load(manifestPath)
	if err != nil {
		return config.Config{}, manifest.Manifest{}, err
	}
	return cfg, man, nil
}
