package commands

import (
	"github.com/spf13/cobra"
)

// NewByNameCommand creates the by-name command.
func NewByNameCommand() *cobra.Command {
	var useCache func() bool

	cmd := &cobra.Command{
		Use:   "by-name <name>",
		Short: "Run the pipeline on the host of a named transient",
		Long: `Resolve a transient name through SkyPortal (when a token is configured)
or the Transient Name Server, pick the nearest Pan-STARRS object within 10"
as the host galaxy and run acquisition, fitting and analysis on it.

The transient's redshift, when known, fixes the fit redshift.`,
		Example: `  # Resolve and process a TNS transient
  galsynth by-name 2020abc

  # Query everything again, ignoring cached results
  galsynth by-name ZTF20aaaaaaa --no-cache`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runByName(cmd, args[0], useCache())
		},
	}
	useCache = cacheFlags(cmd)

	return cmd
}

func runByName(cmd *cobra.Command, name string, useCache bool) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	svc, cleanup, err := cmdCtx.Services(serviceNeeds{fit: true})
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	g, err := svc.Resolver.ByName(ctx, name, useCache)
	if err != nil {
		return svc.Pipeline.RecordResolveFailure(name, err)
	}

	outcome, err := svc.Pipeline.RunOnGalaxy(ctx, g, useCache)
	if err != nil {
		return err
	}
	return renderOutcome(cmdCtx.Renderer, outcome)
}
