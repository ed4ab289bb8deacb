package posterior

import (
	"fmt"
	"math"

	"github.com/leapstack-labs/galsynth/internal/bandpass"
	"github.com/leapstack-labs/galsynth/internal/photometry"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// FilterLookup resolves bandpass names.
type FilterLookup interface {
	Get(name string) (*bandpass.Filter, error)
}

// ExtinctionLookup returns the Galactic extinction for a bandpass at a position.
type ExtinctionLookup interface {
	ForFilter(pos core.Position, filterName string) (float64, error)
}

// PhotometryRow is one band of the predicted-photometry table. Magnitudes
// absent from the catalog data are nil.
type PhotometryRow struct {
	Band                   string
	PredictedMag           float64
	SigmaPlus              float64
	SigmaMinus             float64
	MeasuredMag            *float64
	MeasuredErr            *float64
	Extinction             float64
	MeasuredMagDeextincted *float64
	PredictedMagExtincted  float64
}

// SyntheticMags integrates every draw of the ensemble through filter,
// returning one AB magnitude per draw. Spectra are in maggies on the
// observed-frame grid.
func SyntheticMags(e Ensemble, observedWavelengths []float64, filter *bandpass.Filter) []float64 {
	flambda := make([]float64, len(observedWavelengths))
	mags := make([]float64, len(e))
	for i, spec := range e {
		for j, w := range observedWavelengths {
			flambda[j] = bandpass.MaggiesToFlambda(spec[j], w)
		}
		mags[i] = filter.ABMag(observedWavelengths, flambda)
	}
	return mags
}

// PredictInput bundles what PredictPhotometry needs.
type PredictInput struct {
	Ensemble            Ensemble
	ObservedWavelengths []float64
	Measured            []photometry.Photometry
	Position            core.Position
	Bands               []string
}

// PredictPhotometry builds one row per requested band. The predicted
// magnitude is the median over draws; sigma+ and sigma- are the distances to
// the bright and faint one-sigma quantiles. Bands without a measurement still
// get a prediction.
func PredictPhotometry(in PredictInput, filters FilterLookup, ext ExtinctionLookup) ([]PhotometryRow, error) {
	measured := make(map[string]photometry.Photometry, len(in.Measured))
	for _, p := range in.Measured {
		measured[p.FilterName()] = p
	}
	lo, hi := OneSigma()

	rows := make([]PhotometryRow, 0, len(in.Bands))
	for _, band := range in.Bands {
		f, err := filters.Get(band)
		if err != nil {
			return nil, err
		}
		extinction, err := ext.ForFilter(in.Position, band)
		if err != nil {
			return nil, fmt.Errorf("failed to compute extinction for %s: %w", band, err)
		}

		mags := finiteSorted(SyntheticMags(in.Ensemble, in.ObservedWavelengths, f))
		med := uniformQuantile(mags, 0.5)
		row := PhotometryRow{
			Band:                  band,
			PredictedMag:          med,
			SigmaPlus:             med - uniformQuantile(mags, lo),
			SigmaMinus:            uniformQuantile(mags, hi) - med,
			Extinction:            extinction,
			PredictedMagExtincted: med + extinction,
		}
		if p, ok := measured[band]; ok {
			row.MeasuredMag = finite(p.ObservedMag())
			row.MeasuredErr = finite(p.MagErr())
			row.MeasuredMagDeextincted = finite(p.Mag())
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
