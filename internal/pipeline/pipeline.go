// Package pipeline runs photometry acquisition, fitting and posterior
// analysis for one galaxy or a batch of them, recording every stage in the
// run-history store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/galsynth/internal/artifact"
	"github.com/leapstack-labs/galsynth/internal/fit"
	"github.com/leapstack-labs/galsynth/internal/galaxy"
	"github.com/leapstack-labs/galsynth/internal/photometry"
	"github.com/leapstack-labs/galsynth/internal/posterior"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// Fitter returns fit results for a galaxy whose photometry is already known.
type Fitter interface {
	ResultsFor(ctx context.Context, g *galaxy.Galaxy, phot []photometry.Photometry, useCache bool) (*fit.Result, bool, error)
}

// Analyser derives the synthetic products from a posterior.
type Analyser interface {
	Analyse(ctx context.Context, p posterior.Posterior, model posterior.SEDModel, pos core.Position, measured []photometry.Photometry) (*posterior.Report, error)
}

// Config holds pipeline collaborators.
type Config struct {
	DataDir    string
	Photometry galaxy.PhotometrySource
	Fitter     Fitter
	Model      fit.SpectralModel
	Analyser   Analyser

	// Store records runs and stages; nil disables recording.
	Store core.Store

	// Concurrency bounds RunBatch; values below 1 mean sequential.
	Concurrency int

	Logger *slog.Logger
}

// Pipeline processes galaxies start to finish.
type Pipeline struct {
	cfg Config
}

// New applies defaults to cfg.
func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Pipeline{cfg: cfg}
}

// Outcome is what one successful galaxy run produced.
type Outcome struct {
	Galaxy *galaxy.Galaxy
	RunID  string
	Paths  galaxy.Paths
	Result *fit.Result
	Report *posterior.Report
}

// RunOnGalaxy acquires photometry, fits (or loads the cached fit) and writes
// the synthetic products. A failure is returned as a *core.StageError.
func (p *Pipeline) RunOnGalaxy(ctx context.Context, g *galaxy.Galaxy, useCache bool) (*Outcome, error) {
	start := time.Now()
	logger := p.cfg.Logger.With(slog.String("source", g.SourceName()))
	paths := g.Paths(p.cfg.DataDir)

	out := &Outcome{Galaxy: g, Paths: paths, RunID: p.startRun(g)}

	var phot []photometry.Photometry
	err := p.stage(out.RunID, g, core.StageAcquire, func() (bool, error) {
		cached := useCache && artifact.Exists(paths.Photometry())
		var err error
		phot, err = g.GetPhotometry(ctx, paths, p.cfg.Photometry, useCache)
		return cached, err
	})
	if err != nil {
		return nil, p.finishRun(out.RunID, err)
	}
	logger.Info("photometry ready", slog.Int("bands", len(phot)))

	err = p.stage(out.RunID, g, core.StageFit, func() (bool, error) {
		if p.cfg.Fitter == nil {
			return false, fmt.Errorf("%w: no fitter configured", core.ErrExternalService)
		}
		var (
			cached bool
			err    error
		)
		out.Result, cached, err = p.cfg.Fitter.ResultsFor(ctx, g, phot, useCache)
		return cached, err
	})
	if err != nil {
		return nil, p.finishRun(out.RunID, err)
	}

	err = p.stage(out.RunID, g, core.StageAnalyse, func() (bool, error) {
		report, err := p.analyse(ctx, g, out.Result, phot)
		if err != nil {
			return false, err
		}
		out.Report = report
		return false, report.Write(posterior.Paths{
			SyntheticPhotometry: paths.SyntheticPhotometry(),
			SyntheticSED:        paths.SyntheticSED(),
			Envelope:            paths.SEDEnvelope(),
			Summary:             paths.FitResults(),
		})
	})
	if err != nil {
		return nil, p.finishRun(out.RunID, err)
	}

	_ = p.finishRun(out.RunID, nil)
	logger.Info("pipeline complete", slog.String("dir", paths.Dir), slog.Duration("duration", time.Since(start)))
	return out, nil
}

func (p *Pipeline) analyse(ctx context.Context, g *galaxy.Galaxy, res *fit.Result, phot []photometry.Photometry) (*posterior.Report, error) {
	if p.cfg.Analyser == nil || p.cfg.Model == nil {
		return nil, fmt.Errorf("%w: no spectral model configured", core.ErrExternalService)
	}
	post, err := res.Posterior()
	if err != nil {
		return nil, err
	}
	return p.cfg.Analyser.Analyse(ctx, post, res.SEDModel(p.cfg.Model), g.Position(), phot)
}

// stage runs fn, records its outcome and wraps a failure with the stage.
func (p *Pipeline) stage(runID string, g *galaxy.Galaxy, stage core.Stage, fn func() (bool, error)) error {
	start := time.Now()
	cached, err := fn()

	sr := &core.StageRun{
		RunID:      runID,
		Stage:      stage,
		Status:     core.StageStatusSuccess,
		StartedAt:  start.UTC(),
		DurationMS: time.Since(start).Milliseconds(),
	}
	switch {
	case err != nil:
		sr.Status = core.StageStatusFailed
		sr.Error = err.Error()
	case cached:
		sr.Status = core.StageStatusCached
	}
	if p.cfg.Store != nil && runID != "" {
		if rerr := p.cfg.Store.RecordStage(sr); rerr != nil {
			p.cfg.Logger.Warn("failed to record stage", slog.String("stage", string(stage)), slog.Any("error", rerr))
		}
	}

	if err != nil {
		return &core.StageError{Stage: stage, Source: g.SourceName(), Err: err}
	}
	p.cfg.Logger.Debug("stage done", slog.String("source", g.SourceName()),
		slog.String("stage", string(stage)), slog.String("status", string(sr.Status)))
	return nil
}

func (p *Pipeline) startRun(g *galaxy.Galaxy) string {
	if p.cfg.Store == nil {
		return ""
	}
	run, err := p.cfg.Store.CreateRun(g.SourceName(), g.Position())
	if err != nil {
		p.cfg.Logger.Warn("failed to record run", slog.String("source", g.SourceName()), slog.Any("error", err))
		return ""
	}
	return run.ID
}

// finishRun completes the run record and passes err through.
func (p *Pipeline) finishRun(runID string, err error) error {
	if p.cfg.Store == nil || runID == "" {
		return err
	}
	if err != nil {
		_ = p.cfg.Store.CompleteRun(runID, core.RunStatusFailed, err.Error())
		return err
	}
	_ = p.cfg.Store.CompleteRun(runID, core.RunStatusCompleted, "")
	return nil
}

// RecordResolveFailure stores a run that never got past name resolution.
func (p *Pipeline) RecordResolveFailure(name string, err error) error {
	se := &core.StageError{Stage: core.StageResolve, Source: name, Err: err}
	if p.cfg.Store == nil {
		return se
	}
	run, cerr := p.cfg.Store.CreateRun(name, core.Position{})
	if cerr != nil {
		return se
	}
	_ = p.cfg.Store.RecordStage(&core.StageRun{
		RunID:  run.ID,
		Stage:  core.StageResolve,
		Status: core.StageStatusFailed,
		Error:  err.Error(),
	})
	_ = p.cfg.Store.CompleteRun(run.ID, core.RunStatusFailed, se.Error())
	return se
}

