package fit

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/leapstack-labs/galsynth/internal/posterior"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// BurnIn is the number of leading samples discarded from a loaded chain.
const BurnIn = 500

// PredictedPhotometry is the observed photometry stored with a fit.
type PredictedPhotometry struct {
	Maggies    []float64
	MaggiesUnc []float64
	Mask       []bool
	Filters    []string
}

// Result is a loaded, validated fit. It is read-only once built.
type Result struct {
	InputPath     string
	Labels        []string
	Chain         [][]float64
	Weights       []float64
	FixedRedshift *float64
	BestFit       BestFit
	Predicted     PredictedPhotometry
	Model         ModelSpec
	Observation   Observation
	Duration      time.Duration
}

// NewResult validates an artifact and drops the first BurnIn samples when the
// chain is longer than that.
func NewResult(path string, a *Artifact) (*Result, error) {
	out := a.Output
	if len(out.Chain) == 0 {
		return nil, core.Validationf("fit artifact %s has an empty chain", path)
	}
	if len(out.Chain) != len(out.Weights) {
		return nil, core.Validationf("chain has %d samples but %d weights", len(out.Chain), len(out.Weights))
	}
	for i, row := range out.Chain {
		if len(row) != len(out.Labels) {
			return nil, core.Validationf("chain sample %d has %d columns, expected %d parameters", i, len(row), len(out.Labels))
		}
	}
	if len(out.BestFit.RestframeWavelengths) != len(out.BestFit.Spectrum) {
		return nil, core.Validationf("best-fit wavelengths (%d) and spectrum (%d) differ in length",
			len(out.BestFit.RestframeWavelengths), len(out.BestFit.Spectrum))
	}

	chain, weights := out.Chain, out.Weights
	if len(chain) > BurnIn {
		chain, weights = chain[BurnIn:], weights[BurnIn:]
	}

	r := &Result{
		InputPath:   path,
		Labels:      slices.Clone(out.Labels),
		Chain:       chain,
		Weights:     weights,
		BestFit:     out.BestFit,
		Model:       a.Model,
		Observation: a.Observation,
		Duration:    out.Duration,
		Predicted: PredictedPhotometry{
			Maggies:    a.Observation.Maggies,
			MaggiesUnc: a.Observation.MaggiesUnc,
			Mask:       a.Observation.Mask,
			Filters:    a.Observation.Filters,
		},
	}
	if a.Observation.Redshift != nil {
		z := *a.Observation.Redshift
		r.FixedRedshift = &z
	}
	return r, nil
}

// Redshift returns the fixed redshift, or the weighted median of the zred column.
func (r *Result) Redshift() (float64, error) {
	if r.FixedRedshift != nil {
		return *r.FixedRedshift, nil
	}
	idx := slices.Index(r.Labels, "zred")
	if idx < 0 {
		return 0, core.Validationf("redshift was not fixed and zred is not a fit parameter")
	}
	return posterior.WeightedQuantile(posterior.Column(r.Chain, idx), r.Weights, 0.5)
}

// RestframeWavelengths returns the model wavelength grid.
func (r *Result) RestframeWavelengths() []float64 {
	return r.BestFit.RestframeWavelengths
}

// ObservedWavelengths returns the model grid shifted by (1+z).
func (r *Result) ObservedWavelengths() ([]float64, error) {
	p, err := r.Posterior()
	if err != nil {
		return nil, err
	}
	return p.ObservedWavelengths(), nil
}

// Posterior exposes the chain for analysis.
func (r *Result) Posterior() (posterior.Posterior, error) {
	z, err := r.Redshift()
	if err != nil {
		return posterior.Posterior{}, err
	}
	return posterior.Posterior{
		Labels:               r.Labels,
		Chain:                r.Chain,
		Weights:              r.Weights,
		RestframeWavelengths: r.BestFit.RestframeWavelengths,
		Redshift:             z,
	}, nil
}

// SEDModel binds a spectral model to this fit's model spec and observation.
func (r *Result) SEDModel(m SpectralModel) posterior.SEDModel {
	return &sedModel{model: m, spec: r.Model, obs: r.Observation}
}

type sedModel struct {
	model SpectralModel
	spec  ModelSpec
	obs   Observation
}

func (s *sedModel) Spectra(ctx context.Context, thetas [][]float64) ([][]float64, error) {
	if b, ok := s.model.(BatchModel); ok {
		preds, err := b.PredictBatch(ctx, s.spec, thetas, s.obs)
		if err != nil {
			return nil, err
		}
		out := make([][]float64, len(preds))
		for i, p := range preds {
			out[i] = p.Spectrum
		}
		return out, nil
	}

	out := make([][]float64, len(thetas))
	for i, theta := range thetas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := s.model.Predict(ctx, s.spec, theta, s.obs)
		if err != nil {
			return nil, fmt.Errorf("failed to predict sample %d: %w", i, err)
		}
		out[i] = p.Spectrum
	}
	return out, nil
}
