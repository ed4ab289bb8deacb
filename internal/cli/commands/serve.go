package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/galsynth/internal/api"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve source artifacts and run history over HTTP",
		Long: `Start a read-only HTTP server over the data directory.

Endpoints:
  /                          live source list
  /sources                   sources and their artifacts (JSON)
  /sources/{name}/{artifact} one JSON artifact
  /runs, /runs/{id}          pipeline run history`,
		Example: `  galsynth serve --port 9000
  galsynth serve --watch=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().Int("port", 0, "Port to serve on (default: 8765)")
	cmd.Flags().Bool("watch", true, "Refresh the source list when artifacts change")

	return cmd
}

func runServe(cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cmdCtx.Cfg.StatePath, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	server := api.NewServer(api.Config{
		DataDir: cmdCtx.Cfg.DataDir,
		Store:   store,
		Port:    cmdCtx.Cfg.Serve.Port,
		Watch:   cmdCtx.Cfg.Serve.Watch,
		Logger:  cmdCtx.Logger,
	})
	return server.Serve(cmd.Context())
}
