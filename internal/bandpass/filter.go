// Package bandpass provides photometric filter transmission curves and
// bandpass-integrated AB magnitude synthesis.
package bandpass

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Physical constants in cgs.
const (
	// LightSpeedAA is the speed of light in Angstrom per second.
	LightSpeedAA = 2.998e18
	// JanskyCGS is one Jansky in erg/s/cm^2/Hz.
	JanskyCGS = 1e-23
	// ABZeroPointJy is the AB magnitude zero point flux density.
	ABZeroPointJy = 3631.0
)

// Filter is a named transmission curve sampled on an ascending wavelength grid (Angstrom).
type Filter struct {
	Name         string
	Wavelength   []float64
	Transmission []float64
}

// NewFilter validates and sorts a transmission curve.
func NewFilter(name string, wave, trans []float64) (*Filter, error) {
	if name == "" {
		return nil, fmt.Errorf("filter name is required")
	}
	if len(wave) != len(trans) {
		return nil, fmt.Errorf("filter %s: %d wavelengths but %d transmission values", name, len(wave), len(trans))
	}
	if len(wave) < 2 {
		return nil, fmt.Errorf("filter %s: need at least two samples", name)
	}

	idx := make([]int, len(wave))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return wave[idx[a]] < wave[idx[b]] })

	f := &Filter{
		Name:         name,
		Wavelength:   make([]float64, len(wave)),
		Transmission: make([]float64, len(trans)),
	}
	var total float64
	for i, j := range idx {
		f.Wavelength[i] = wave[j]
		f.Transmission[i] = math.Max(trans[j], 0)
		total += f.Transmission[i]
	}
	if total <= 0 {
		return nil, fmt.Errorf("filter %s: transmission is zero everywhere", name)
	}
	return f, nil
}

// EffectiveWavelength returns the transmission-weighted mean wavelength.
func (f *Filter) EffectiveWavelength() float64 {
	return stat.Mean(f.Wavelength, f.Transmission)
}

// ABFlambda returns the f_lambda (erg/s/cm^2/AA) of a flat 0 mag AB source at wave.
func ABFlambda(wave float64) float64 {
	return ABZeroPointJy * JanskyCGS * LightSpeedAA / (wave * wave)
}

// MaggiesToFlambda converts flux density in maggies to f_lambda in erg/s/cm^2/AA.
func MaggiesToFlambda(maggies, wave float64) float64 {
	return maggies * ABFlambda(wave)
}

// ABMag synthesizes the AB magnitude of a spectrum f_lambda(wave) through the filter.
// Returns NaN unless the spectrum spans the whole range where the interpolated
// transmission is positive, or when it has no positive flux in it.
func (f *Filter) ABMag(wave, flambda []float64) float64 {
	if len(wave) != len(flambda) || len(wave) < 2 {
		return math.NaN()
	}
	lo, hi, ok := f.support()
	if !ok || wave[0] > lo || wave[len(wave)-1] < hi {
		return math.NaN()
	}

	integrand := make([]float64, len(wave))
	for i, w := range wave {
		integrand[i] = w * f.transmissionAt(w) * flambda[i]
	}

	counts := integrate.Trapezoidal(wave, integrand)
	if counts <= 0 || math.IsNaN(counts) {
		return math.NaN()
	}
	return -2.5 * math.Log10(counts/f.abZeroCounts())
}

// support returns the wavelength range where the transmission is positive.
func (f *Filter) support() (lo, hi float64, ok bool) {
	first, last := -1, -1
	for i, t := range f.Transmission {
		if t > 0 {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return 0, 0, false
	}
	// The curve is interpolated, so it stays positive up to the bracketing samples.
	if first > 0 {
		first--
	}
	if last < len(f.Transmission)-1 {
		last++
	}
	return f.Wavelength[first], f.Wavelength[last], true
}

// abZeroCounts integrates a 0 mag AB source on the filter's own grid.
func (f *Filter) abZeroCounts() float64 {
	integrand := make([]float64, len(f.Wavelength))
	for i, w := range f.Wavelength {
		integrand[i] = w * f.Transmission[i] * ABFlambda(w)
	}
	return integrate.Trapezoidal(f.Wavelength, integrand)
}

// transmissionAt linearly interpolates the curve, returning zero outside it.
func (f *Filter) transmissionAt(w float64) float64 {
	n := len(f.Wavelength)
	if w < f.Wavelength[0] || w > f.Wavelength[n-1] {
		return 0
	}
	i := sort.SearchFloat64s(f.Wavelength, w)
	if i == 0 {
		return f.Transmission[0]
	}
	if f.Wavelength[i] == w {
		return f.Transmission[i]
	}
	x0, x1 := f.Wavelength[i-1], f.Wavelength[i]
	y0, y1 := f.Transmission[i-1], f.Transmission[i]
	return y0 + (y1-y0)*(w-x0)/(x1-x0)
}
