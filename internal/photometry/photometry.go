// Package photometry defines the single-band measurement value type and its
// on-disk cache.
package photometry

import (
	"encoding/json"
	"math"

	"github.com/leapstack-labs/galsynth/pkg/core"
)

// DefaultSystematicError is added in quadrature to every catalog error.
const DefaultSystematicError = 0.05

// FilterSet recognizes bandpass names.
type FilterSet interface {
	Has(name string) bool
}

// Photometry is one band's measurement. Values are immutable after New.
type Photometry struct {
	filterName      string
	observedMag     float64
	extinction      float64
	vegaMag         *float64
	magErr          float64
	systematicError float64
}

// Option configures optional fields of a Photometry.
type Option func(*Photometry)

// WithVegaMag records the catalog's native Vega magnitude.
func WithVegaMag(v float64) Option {
	return func(p *Photometry) { p.vegaMag = &v }
}

// WithSystematicError overrides DefaultSystematicError.
func WithSystematicError(s float64) Option {
	return func(p *Photometry) { p.systematicError = s }
}

// New builds a measurement. observedMag may be NaN for a non-detection, in which
// case magErr carries the detection limit.
func New(filters FilterSet, filterName string, observedMag, extinction, magErr float64, opts ...Option) (Photometry, error) {
	p := Photometry{
		filterName:      filterName,
		observedMag:     observedMag,
		extinction:      extinction,
		magErr:          magErr,
		systematicError: DefaultSystematicError,
	}
	for _, opt := range opts {
		opt(&p)
	}

	if filters == nil || !filters.Has(filterName) {
		return Photometry{}, core.Validationf("filter %q is not a recognized bandpass", filterName)
	}
	if math.IsNaN(extinction) || math.IsInf(extinction, 0) {
		return Photometry{}, core.Validationf("filter %s: extinction must be finite", filterName)
	}
	if math.IsNaN(magErr) || magErr < 0 {
		return Photometry{}, core.Validationf("filter %s: invalid magnitude error %v", filterName, magErr)
	}
	if p.systematicError < 0 {
		return Photometry{}, core.Validationf("filter %s: negative systematic error", filterName)
	}
	return p, nil
}

// FilterName returns the bandpass name.
func (p Photometry) FilterName() string { return p.filterName }

// ObservedMag returns the catalog AB magnitude before de-reddening (NaN for non-detections).
func (p Photometry) ObservedMag() float64 { return p.observedMag }

// Extinction returns the Galactic extinction in magnitudes.
func (p Photometry) Extinction() float64 { return p.extinction }

// VegaMag returns the native Vega magnitude, if the catalog provided one.
func (p Photometry) VegaMag() (float64, bool) {
	if p.vegaMag == nil {
		return 0, false
	}
	return *p.vegaMag, true
}

// MagErr returns the catalog error (or detection limit for non-detections).
func (p Photometry) MagErr() float64 { return p.magErr }

// SystematicError returns the systematic error floor.
func (p Photometry) SystematicError() float64 { return p.systematicError }

// IsDetection reports whether the band carries a measured magnitude.
func (p Photometry) IsDetection() bool { return !math.IsNaN(p.observedMag) }

// Mag is the de-reddened AB magnitude.
func (p Photometry) Mag() float64 {
	return p.observedMag - p.extinction
}

// Maggies is the de-reddened flux density, zero for non-detections.
func (p Photometry) Maggies() float64 {
	if math.IsNaN(p.observedMag) {
		return 0
	}
	return math.Pow(10, -0.4*p.Mag())
}

// MagErrCombined adds the systematic floor in quadrature.
func (p Photometry) MagErrCombined() float64 {
	return math.Hypot(p.magErr, p.systematicError)
}

// record is the serialized form; NaN magnitudes are written as null.
type record struct {
	FilterName      string   `json:"filter_name"`
	ObservedMag     *float64 `json:"observed_mag"`
	Extinction      float64  `json:"extinction"`
	VegaMag         *float64 `json:"vega_mag"`
	MagErr          float64  `json:"mag_err"`
	SystematicError float64  `json:"systematic_error"`
}

// MarshalJSON implements json.Marshaler.
func (p Photometry) MarshalJSON() ([]byte, error) {
	return json.Marshal(record{
		FilterName:      p.filterName,
		ObservedMag:     nullableFloat(p.observedMag),
		Extinction:      p.extinction,
		VegaMag:         p.vegaMag,
		MagErr:          p.magErr,
		SystematicError: p.systematicError,
	})
}

// decode rebuilds a validated Photometry from its serialized form.
func (r record) decode(filters FilterSet) (Photometry, error) {
	observed := math.NaN()
	if r.ObservedMag != nil {
		observed = *r.ObservedMag
	}
	opts := []Option{WithSystematicError(r.SystematicError)}
	if r.VegaMag != nil {
		opts = append(opts, WithVegaMag(*r.VegaMag))
	}
	return New(filters, r.FilterName, observed, r.Extinction, r.MagErr, opts...)
}

func nullableFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
