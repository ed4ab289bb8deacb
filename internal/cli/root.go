// Package cli provides the command-line interface for galsynth.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/galsynth/internal/cli/commands"
	"github.com/leapstack-labs/galsynth/internal/cli/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "galsynth",
		Short: "galsynth - host galaxy photometry and synthetic SEDs",
		Long: `galsynth gathers multi-survey photometry of a galaxy, fits a stellar
population model to it and derives synthetic photometry and SEDs from the
fit posterior.

Photometry is queried from SDSS (or Pan-STARRS), GALEX, 2MASS and AllWISE.
Fits run on a remote sampling service; all artifacts are written below the
data directory, one folder per source.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Verbose)
			cmd.SetContext(config.WithLogger(cmd.Context(), logger))

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					logger.Debug("using config file", slog.String("path", configFile))
				}
			}
			if cfg.DataDirDefaulted {
				logger.Warn("data_dir not configured, using default", slog.String("data_dir", cfg.DataDir))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./galsynth.yaml, then ~/.config/galsynth/galsynth.yaml)")
	pf.String("data-dir", "", "Root of the per-source output directories")
	pf.String("state", "", "Path to the run-history database")
	pf.String("dust-map-dir", "", "Directory holding the SFD dust maps")
	pf.String("filters-dir", "", "Directory with bandpass transmission curves")
	pf.Float64("radius", 0, "Catalog cone-search radius in arcseconds")
	pf.Int("samples", 0, "Number of posterior draws for synthetic products")
	pf.Uint64("seed", 0, "Seed for posterior resampling (0 = time-based)")
	pf.Int("concurrency", 0, "Galaxies processed in parallel by batch")
	pf.String("fit-url", "", "Base URL of the fitting service")
	pf.String("skyportal-url", "", "SkyPortal API base URL")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.String("log-format", "", "Log format (text|json)")
	pf.StringP("output", "o", "", "Output format (table|markdown|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit, BuildDate))
	rootCmd.AddCommand(commands.NewByNameCommand())
	rootCmd.AddCommand(commands.NewByRaDecCommand())
	rootCmd.AddCommand(commands.NewPhotometryCommand())
	rootCmd.AddCommand(commands.NewBatchCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for galsynth.

To load completions:

Bash:
  $ source <(galsynth completion bash)

Zsh:
  $ galsynth completion zsh > "${fpath[1]}/_galsynth"

Fish:
  $ galsynth completion fish | source

PowerShell:
  PS> galsynth completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
