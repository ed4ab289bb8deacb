package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/galsynth/internal/galaxy"
	"github.com/leapstack-labs/galsynth/internal/resolve"
)

// ByRaDecOptions holds options for the by-ra-dec command.
type ByRaDecOptions struct {
	Redshift float64
}

// NewByRaDecCommand creates the by-ra-dec command.
func NewByRaDecCommand() *cobra.Command {
	opts := &ByRaDecOptions{}
	var useCache func() bool

	cmd := &cobra.Command{
		Use:   "by-ra-dec <ra> <dec> [name]",
		Short: "Run the pipeline on a galaxy at a sky position",
		Long: `Acquire photometry, fit and analyse the galaxy at RA/Dec.

Coordinates are decimal degrees or sexagesimal ("hh:mm:ss.s", "dd:mm:ss.s").
Without a name the source is called by its J2000 designation.`,
		Example: `  # Fit with a free redshift
  galsynth by-ra-dec 314.2622542 14.2043667

  # Fixed redshift and a custom name
  galsynth by-ra-dec 20:57:02.941 +14:12:15.72 host-2020abc -z 0.0312`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var z *float64
			if cmd.Flags().Changed("redshift") {
				z = &opts.Redshift
			}
			g, err := galaxyFromArgs(args, z)
			if err != nil {
				return err
			}
			return runByRaDec(cmd, g, useCache())
		},
	}

	cmd.Flags().Float64VarP(&opts.Redshift, "redshift", "z", 0, "Fix the fit to this redshift")
	useCache = cacheFlags(cmd)

	return cmd
}

// galaxyFromArgs builds a galaxy from "<ra> <dec> [name]" arguments.
func galaxyFromArgs(args []string, redshift *float64) (*galaxy.Galaxy, error) {
	ra, err := resolve.ParseRA(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid RA %q: %w", args[0], err)
	}
	dec, err := resolve.ParseDec(args[1])
	if err != nil {
		return nil, fmt.Errorf("invalid Dec %q: %w", args[1], err)
	}
	var name string
	if len(args) > 2 {
		name = args[2]
	}
	return galaxy.New(name, ra, dec, redshift)
}

func runByRaDec(cmd *cobra.Command, g *galaxy.Galaxy, useCache bool) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	svc, cleanup, err := cmdCtx.Services(serviceNeeds{fit: true})
	if err != nil {
		return err
	}
	defer cleanup()

	outcome, err := svc.Pipeline.RunOnGalaxy(cmd.Context(), g, useCache)
	if err != nil {
		return err
	}
	return renderOutcome(cmdCtx.Renderer, outcome)
}
