package posterior

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/leapstack-labs/galsynth/pkg/core"
	"gonum.org/v1/gonum/stat/distuv"
)

// Posterior is the weighted chain of a finished fit.
type Posterior struct {
	Labels               []string
	Chain                [][]float64
	Weights              []float64
	RestframeWavelengths []float64
	Redshift             float64
}

// Validate checks the chain shape.
func (p Posterior) Validate() error {
	if len(p.Chain) == 0 {
		return core.Validationf("posterior chain is empty")
	}
	if len(p.Chain) != len(p.Weights) {
		return core.Validationf("chain has %d samples but %d weights", len(p.Chain), len(p.Weights))
	}
	for i, row := range p.Chain {
		if len(row) != len(p.Labels) {
			return core.Validationf("chain sample %d has %d columns, expected %d", i, len(row), len(p.Labels))
		}
	}
	return nil
}

// ObservedWavelengths returns the rest-frame grid scaled by (1+z).
func (p Posterior) ObservedWavelengths() []float64 {
	out := make([]float64, len(p.RestframeWavelengths))
	for i, w := range p.RestframeWavelengths {
		out[i] = w * (1 + p.Redshift)
	}
	return out
}

// SEDModel evaluates model spectra (maggies on the rest-frame grid) for
// parameter vectors.
type SEDModel interface {
	Spectra(ctx context.Context, thetas [][]float64) ([][]float64, error)
}

// SampleParameters draws n parameter vectors from the chain with replacement,
// with probability proportional to the weights.
func SampleParameters(chain [][]float64, weights []float64, n int, rng *rand.Rand) ([][]float64, error) {
	if n <= 0 {
		return nil, core.Validationf("sample count must be positive, got %d", n)
	}
	if len(chain) == 0 || len(chain) != len(weights) {
		return nil, core.Validationf("chain has %d samples but %d weights", len(chain), len(weights))
	}
	var total float64
	for _, w := range weights {
		if w < 0 {
			return nil, core.Validationf("negative posterior weight")
		}
		total += w
	}
	if total <= 0 {
		return nil, core.Validationf("posterior weights sum to zero")
	}

	cat := distuv.NewCategorical(weights, rng)
	out := make([][]float64, n)
	for i := range out {
		out[i] = slices.Clone(chain[int(cat.Rand())])
	}
	return out, nil
}

// Ensemble holds resampled model spectra, one row per draw.
type Ensemble [][]float64

// SampleSEDs resamples the posterior and evaluates the model at each draw.
func SampleSEDs(ctx context.Context, p Posterior, model SEDModel, n int, rng *rand.Rand) (Ensemble, error) {
	thetas, err := SampleParameters(p.Chain, p.Weights, n, rng)
	if err != nil {
		return nil, err
	}
	spectra, err := model.Spectra(ctx, thetas)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate posterior spectra: %w", err)
	}
	if len(spectra) != n {
		return nil, core.Validationf("model returned %d spectra for %d draws", len(spectra), n)
	}
	for i, s := range spectra {
		if len(s) != len(p.RestframeWavelengths) {
			return nil, core.Validationf("spectrum %d has %d points, expected %d", i, len(s), len(p.RestframeWavelengths))
		}
	}
	return Ensemble(spectra), nil
}

// columns returns each wavelength's finite values, sorted.
func (e Ensemble) columns() [][]float64 {
	if len(e) == 0 {
		return nil
	}
	cols := make([][]float64, len(e[0]))
	for j := range cols {
		cols[j] = finiteSorted(Column(e, j))
	}
	return cols
}

// Quantiles returns, for each q, the per-wavelength quantile across draws.
func (e Ensemble) Quantiles(qs ...float64) [][]float64 {
	return quantilesOf(e.columns(), qs...)
}

func quantilesOf(cols [][]float64, qs ...float64) [][]float64 {
	out := make([][]float64, len(qs))
	for i, q := range qs {
		out[i] = make([]float64, len(cols))
		for j, col := range cols {
			out[i][j] = uniformQuantile(col, q)
		}
	}
	return out
}
