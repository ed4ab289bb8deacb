package commands

import (
	"github.com/spf13/cobra"
)

// NewPhotometryCommand creates the photometry command.
func NewPhotometryCommand() *cobra.Command {
	var useCache func() bool

	cmd := &cobra.Command{
		Use:   "photometry <ra> <dec> [name]",
		Short: "Acquire catalog photometry without fitting",
		Long: `Query the survey catalogs around RA/Dec (or load the cached result) and
print the extinction-annotated photometry. The list is written to
photometry.json in the source directory.`,
		Example: `  galsynth photometry 314.2622542 14.2043667
  galsynth photometry 314.2622542 14.2043667 -o json`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPhotometry(cmd, args, useCache())
		},
	}
	useCache = cacheFlags(cmd)

	return cmd
}

func runPhotometry(cmd *cobra.Command, args []string, useCache bool) error {
	g, err := galaxyFromArgs(args, nil)
	if err != nil {
		return err
	}
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	svc, cleanup, err := cmdCtx.Services(serviceNeeds{})
	if err != nil {
		return err
	}
	defer cleanup()

	list, err := g.GetPhotometry(cmd.Context(), g.Paths(cmdCtx.Cfg.DataDir), svc.Photometry, useCache)
	if err != nil {
		return err
	}
	return renderPhotometry(cmdCtx.Renderer, g, list)
}
