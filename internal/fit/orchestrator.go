package fit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/galsynth/internal/artifact"
	"github.com/leapstack-labs/galsynth/internal/bandpass"
	"github.com/leapstack-labs/galsynth/internal/galaxy"
	"github.com/leapstack-labs/galsynth/internal/photometry"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// Config holds orchestrator dependencies.
type Config struct {
	Engine     Engine
	Filters    *bandpass.Registry
	Photometry galaxy.PhotometrySource

	// DataDir is the root of the per-source output directories.
	DataDir string

	// Sampler defaults to DefaultSampler.
	Sampler *SamplerSettings

	Logger *slog.Logger
}

// Orchestrator runs fits and loads their artifacts.
type Orchestrator struct {
	cfg Config
}

// NewOrchestrator applies defaults to cfg.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Sampler == nil {
		s := DefaultSampler
		cfg.Sampler = &s
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Filters == nil {
		cfg.Filters = bandpass.NewRegistry()
	}
	return &Orchestrator{cfg: cfg}
}

// Fit gets the galaxy's photometry, runs the engine, replaces the artifact
// and loads it back.
func (o *Orchestrator) Fit(ctx context.Context, g *galaxy.Galaxy, useCache bool) (*Result, error) {
	if o.cfg.Engine == nil {
		return nil, fmt.Errorf("%w: no fit engine configured", core.ErrExternalService)
	}
	phot, err := g.GetPhotometry(ctx, g.Paths(o.cfg.DataDir), o.cfg.Photometry, useCache)
	if err != nil {
		return nil, err
	}
	return o.FitPhotometry(ctx, g, phot)
}

// FitPhotometry fits an already acquired photometry list.
func (o *Orchestrator) FitPhotometry(ctx context.Context, g *galaxy.Galaxy, phot []photometry.Photometry) (*Result, error) {
	if o.cfg.Engine == nil {
		return nil, fmt.Errorf("%w: no fit engine configured", core.ErrExternalService)
	}
	paths := g.Paths(o.cfg.DataDir)

	if len(phot) == 0 {
		o.cfg.Logger.Warn("fitting without photometry, the posterior will follow the priors",
			slog.Any("galaxy", g))
	}

	obs, err := BuildObservation(phot, o.cfg.Filters, g.RedshiftPtr())
	if err != nil {
		return nil, err
	}
	model := NewModelSpec(g.RedshiftPtr())

	o.cfg.Logger.Info("starting fit", slog.Any("galaxy", g),
		slog.Int("bands", len(obs.Filters)), slog.Any("free", model.FreeParameters()))
	start := time.Now()

	out, err := o.cfg.Engine.Fit(ctx, obs, model, *o.cfg.Sampler)
	if err != nil {
		if errors.Is(err, core.ErrExternalService) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: fit engine: %w", core.ErrExternalService, err)
	}
	if out.Duration == 0 {
		out.Duration = time.Since(start)
	}

	if err := paths.Ensure(); err != nil {
		return nil, err
	}
	err = WriteArtifact(paths.FitArtifact(), &Artifact{
		CreatedAt:   time.Now().UTC(),
		Model:       model,
		Observation: obs,
		Sampler:     *o.cfg.Sampler,
		Output:      *out,
	})
	if err != nil {
		return nil, err
	}

	o.cfg.Logger.Info("fit complete", slog.String("source", g.SourceName()),
		slog.Duration("duration", out.Duration))
	return o.LoadResults(g)
}

// GetGalaxyResults loads the existing artifact when useCache is set and it
// exists; otherwise it fits. The boolean reports whether the cache was used.
func (o *Orchestrator) GetGalaxyResults(ctx context.Context, g *galaxy.Galaxy, useCache bool) (*Result, bool, error) {
	path := g.Paths(o.cfg.DataDir).FitArtifact()
	if useCache && artifact.Exists(path) {
		o.cfg.Logger.Info("fit artifact exists, skipping fit", slog.String("path", path))
		res, err := o.LoadResults(g)
		return res, true, err
	}
	res, err := o.Fit(ctx, g, useCache)
	return res, false, err
}

// ResultsFor is GetGalaxyResults for a caller that already holds the
// galaxy's photometry.
func (o *Orchestrator) ResultsFor(ctx context.Context, g *galaxy.Galaxy, phot []photometry.Photometry, useCache bool) (*Result, bool, error) {
	path := g.Paths(o.cfg.DataDir).FitArtifact()
	if useCache && artifact.Exists(path) {
		o.cfg.Logger.Info("fit artifact exists, skipping fit", slog.String("path", path))
		res, err := o.LoadResults(g)
		return res, true, err
	}
	res, err := o.FitPhotometry(ctx, g, phot)
	return res, false, err
}

// LoadResults reads the galaxy's artifact. A missing artifact yields
// core.ErrMustFitFirst.
func (o *Orchestrator) LoadResults(g *galaxy.Galaxy) (*Result, error) {
	path := g.Paths(o.cfg.DataDir).FitArtifact()
	a, err := ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	return NewResult(path, a)
}
