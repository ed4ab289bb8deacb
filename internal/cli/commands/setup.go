package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/galsynth/internal/bandpass"
	"github.com/leapstack-labs/galsynth/internal/catalog"
	"github.com/leapstack-labs/galsynth/internal/cli/config"
	"github.com/leapstack-labs/galsynth/internal/cli/output"
	"github.com/leapstack-labs/galsynth/internal/extinction"
	"github.com/leapstack-labs/galsynth/internal/fit"
	"github.com/leapstack-labs/galsynth/internal/fit/remote"
	"github.com/leapstack-labs/galsynth/internal/galaxy"
	"github.com/leapstack-labs/galsynth/internal/httpclient"
	"github.com/leapstack-labs/galsynth/internal/photometry"
	"github.com/leapstack-labs/galsynth/internal/pipeline"
	"github.com/leapstack-labs/galsynth/internal/posterior"
	"github.com/leapstack-labs/galsynth/internal/resolve"
	"github.com/leapstack-labs/galsynth/internal/state"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}, nil
}

// getConfig returns the configuration loaded by the root command, loading
// the defaults when a command runs on its own.
func getConfig() (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return config.LoadConfig("", nil)
}

// Services is the wired component graph shared by the commands.
type Services struct {
	Filters    *bandpass.Registry
	Extinction *extinction.Service
	Photometry galaxy.PhotometrySource
	Resolver   *resolve.Resolver
	Store      *state.SQLiteStore
	Pipeline   *pipeline.Pipeline
}

// serviceNeeds selects the optional parts of the graph.
type serviceNeeds struct {
	store bool
	fit   bool
}

// Services wires the components the command needs. The returned cleanup
// must be called (typically via defer).
func (c *CommandContext) Services(needs serviceNeeds) (*Services, func(), error) {
	cfg, logger := c.Cfg, c.Logger

	filters := bandpass.NewRegistry(bandpass.WithDir(cfg.FiltersDir))
	hc := cfg.HTTPClientConfig()
	client := httpclient.New(hc, httpclient.WithLogger(logger))
	queriers := catalog.NewQueriers(client, cfg.Catalogs)
	ext := extinction.NewService(extinction.NewSFDMap(cfg.DustMapDir), filters)

	svc := &Services{
		Filters:    filters,
		Extinction: ext,
		Photometry: galaxy.PhotometrySource{
			Acquirer:     catalog.NewAcquisition(queriers.Plan(logger), ext, filters, logger),
			Cache:        photometry.NewCache(filters, logger),
			RadiusArcsec: cfg.RadiusArcsec,
			Logger:       logger,
		},
		Resolver: resolve.New(resolve.Config{
			SkyPortal: resolve.NewSkyPortal(cfg.SkyPortal.URL, cfg.SkyPortal.Token, hc, logger),
			TNS:       resolve.NewTNS(cfg.TNSURL, hc, logger),
			Hosts:     catalog.NewHostFinder(queriers.PS1, logger),
			DataDir:   cfg.DataDir,
			Logger:    logger,
		}),
	}
	cleanup := func() {}

	if needs.store || needs.fit {
		store, err := openStore(cfg.StatePath, logger)
		if err != nil {
			return nil, nil, err
		}
		svc.Store = store
		cleanup = func() { _ = store.Close() }
	}

	if needs.fit {
		if err := cfg.ValidateFitService(); err != nil {
			cleanup()
			return nil, nil, err
		}
		predictCfg := hc
		predictCfg.Timeout = cfg.FitService.Timeout
		fitter := remote.New(cfg.FitService.URL, predictCfg, logger)

		analyzerCfg := posterior.Config{
			Filters:    filters,
			Extinction: ext,
			Samples:    cfg.NSamples,
			Seed:       cfg.Seed,
			Logger:     logger,
		}

		svc.Pipeline = pipeline.New(pipeline.Config{
			DataDir:    cfg.DataDir,
			Photometry: svc.Photometry,
			Fitter: fit.NewOrchestrator(fit.Config{
				Engine:     fitter,
				Filters:    filters,
				Photometry: svc.Photometry,
				DataDir:    cfg.DataDir,
				Logger:     logger,
			}),
			Model:       fitter,
			Analyser:    posterior.NewAnalyzer(analyzerCfg),
			Store:       svc.Store,
			Concurrency: cfg.Concurrency,
			Logger:      logger,
		})
	}

	return svc, cleanup, nil
}

// openStore opens the run-history database, creating its directory.
func openStore(path string, logger *slog.Logger) (*state.SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	store := state.NewSQLiteStore(logger)
	if err := store.Open(path); err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// cacheFlags registers --use-cache/--no-cache and returns a resolver for
// their combined value.
func cacheFlags(cmd *cobra.Command) func() bool {
	useCache := cmd.Flags().Bool("use-cache", true, "Reuse cached photometry, fits and TNS data")
	noCache := cmd.Flags().Bool("no-cache", false, "Ignore caches and query everything again")
	cmd.MarkFlagsMutuallyExclusive("use-cache", "no-cache")
	return func() bool { return *useCache && !*noCache }
}
