package commands

import (
	"github.com/spf13/cobra"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit  int
	Source string
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show the pipeline run history",
		Long: `List recorded pipeline runs, most recent first, or show the stages of a
single run.`,
		Example: `  # Last 20 runs
  galsynth runs

  # Latest run of one source
  galsynth runs --source 2020abc

  # Stages of a run
  galsynth runs 3f6c1a7e-... -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().StringVar(&opts.Source, "source", "", "Show the latest run of this source")

	return cmd
}

func runRuns(cmd *cobra.Command, args []string, opts *RunsOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cmdCtx.Cfg.StatePath, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	r := cmdCtx.Renderer
	id := ""
	if len(args) == 1 {
		id = args[0]
	}
	if id == "" && opts.Source != "" {
		run, err := store.GetLatestRun(opts.Source)
		if err != nil {
			return err
		}
		if run == nil {
			r.Println("No runs recorded for " + opts.Source)
			return nil
		}
		id = run.ID
	}

	if id != "" {
		run, err := store.GetRun(id)
		if err != nil {
			return err
		}
		stages, err := store.GetStageRuns(id)
		if err != nil {
			return err
		}
		return renderRun(r, run, stages)
	}

	runs, err := store.ListRuns(opts.Limit)
	if err != nil {
		return err
	}
	return renderRuns(r, runs)
}
