package posterior

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Envelope defaults: 50 sigma levels spanning 0 to 3.
const (
	EnvelopeLevels   = 50
	EnvelopeMaxSigma = 3.0
)

// SyntheticSED is the posterior median spectrum in the observed frame with a
// symmetric one-sigma uncertainty.
type SyntheticSED struct {
	Wavelength []float64
	Flux       []float64
	Sigma      []float64
}

// EnvelopeBand is the two-sided quantile band at one sigma level.
type EnvelopeBand struct {
	Sigma float64   `json:"sigma"`
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
}

// SigmaLevels returns n evenly spaced levels from 0 to maxSigma inclusive.
func SigmaLevels(n int, maxSigma float64) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{0}
	}
	return floats.Span(make([]float64, n), 0, maxSigma)
}

// OneSigma returns the lower and upper standard-normal quantiles of +-1 sigma.
func OneSigma() (lower, upper float64) {
	upper = distuv.UnitNormal.CDF(1)
	return 1 - upper, upper
}

// Envelope computes the quantile band for each sigma level.
func (e Ensemble) Envelope(sigmas []float64) []EnvelopeBand {
	cols := e.columns()
	out := make([]EnvelopeBand, len(sigmas))
	for i, s := range sigmas {
		upper := distuv.UnitNormal.CDF(s)
		q := quantilesOf(cols, 1-upper, upper)
		out[i] = EnvelopeBand{Sigma: s, Lower: q[0], Upper: q[1]}
	}
	return out
}

// NewSyntheticSED collapses the ensemble to median flux and (q84-q16)/2.
func NewSyntheticSED(e Ensemble, observedWavelengths []float64) SyntheticSED {
	q := e.Quantiles(0.5, 0.16, 0.84)
	sigma := make([]float64, len(q[0]))
	for j := range sigma {
		sigma[j] = 0.5 * (q[2][j] - q[1][j])
	}
	return SyntheticSED{
		Wavelength: append([]float64(nil), observedWavelengths...),
		Flux:       q[0],
		Sigma:      sigma,
	}
}
