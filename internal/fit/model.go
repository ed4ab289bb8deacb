// Package fit builds the observation bundle and model specification for a
// galaxy, delegates sampling to an external engine and persists the result.
package fit

import (
	"math"

	"github.com/leapstack-labs/galsynth/internal/bandpass"
	"github.com/leapstack-labs/galsynth/internal/photometry"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// magErrToFrac converts a magnitude error into a fractional flux error.
const magErrToFrac = 1.086

// Prior kinds understood by the engine.
const (
	PriorUniform    = "uniform"
	PriorLogUniform = "log_uniform"
)

// Prior bounds a free parameter.
type Prior struct {
	Kind string  `json:"kind"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Parameter is one model parameter; fixed parameters carry only Init.
type Parameter struct {
	Name  string  `json:"name"`
	Free  bool    `json:"free"`
	Init  float64 `json:"init"`
	Prior *Prior  `json:"prior,omitempty"`
}

// ModelSpec describes the parametric SFH + nebular model to fit.
type ModelSpec struct {
	Templates  []string    `json:"templates"`
	Parameters []Parameter `json:"parameters"`
}

// Template libraries combined into the model.
var modelTemplates = []string{"parametric_sfh", "nebular"}

// NewModelSpec returns the model with fixed priors. A known redshift fixes
// zred; otherwise zred is free with a log-uniform prior on [0, 4].
func NewModelSpec(redshift *float64) ModelSpec {
	zred := Parameter{Name: "zred"}
	if redshift != nil {
		zred.Init = *redshift
	} else {
		zred.Free = true
		zred.Init = 0.1
		zred.Prior = &Prior{Kind: PriorLogUniform, Min: 0, Max: 4}
	}

	return ModelSpec{
		Templates: append([]string(nil), modelTemplates...),
		Parameters: []Parameter{
			zred,
			{Name: "mass", Free: true, Init: 1e10, Prior: &Prior{Kind: PriorLogUniform, Min: 1e8, Max: 1e12}},
			{Name: "logzsol", Free: true, Init: -0.5, Prior: &Prior{Kind: PriorUniform, Min: -1.8, Max: 0.2}},
			{Name: "dust2", Free: true, Init: 0.6, Prior: &Prior{Kind: PriorUniform, Min: 0, Max: 1}},
			{Name: "tage", Free: true, Init: 1, Prior: &Prior{Kind: PriorUniform, Min: 0.1, Max: 10.1}},
			{Name: "tau", Free: true, Init: 1, Prior: &Prior{Kind: PriorUniform, Min: 0.1, Max: 10}},
		},
	}
}

// FreeParameters returns the names of the free parameters in order.
func (m ModelSpec) FreeParameters() []string {
	var out []string
	for _, p := range m.Parameters {
		if p.Free {
			out = append(out, p.Name)
		}
	}
	return out
}

// Parameter returns the named parameter.
func (m ModelSpec) Parameter(name string) (Parameter, bool) {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// SamplerSettings are the nested-sampling hyperparameters.
type SamplerSettings struct {
	NLiveInit        int     `json:"nlive_init"`
	Method           string  `json:"nested_method"`
	DLogZInit        float64 `json:"nested_dlogz_init"`
	TargetNEffective int     `json:"nested_target_n_effective"`
}

// DefaultSampler is used for every fit.
var DefaultSampler = SamplerSettings{
	NLiveInit:        400,
	Method:           "rwalk",
	DLogZInit:        0.05,
	TargetNEffective: 1000,
}

// Observation is the photometric data handed to the engine.
type Observation struct {
	Filters              []string  `json:"filters"`
	EffectiveWavelengths []float64 `json:"effective_wavelengths"`
	Maggies              []float64 `json:"maggies"`
	MaggiesUnc           []float64 `json:"maggies_unc"`
	Mask                 []bool    `json:"phot_mask"`
	Redshift             *float64  `json:"redshift"`
}

// BuildObservation converts photometry to maggies with fractional errors
// mag_err_combined * maggies / 1.086. Non-detections carry zero flux and are
// masked out.
func BuildObservation(list []photometry.Photometry, filters *bandpass.Registry, redshift *float64) (Observation, error) {
	obs := Observation{
		Filters:              make([]string, 0, len(list)),
		EffectiveWavelengths: make([]float64, 0, len(list)),
		Maggies:              make([]float64, 0, len(list)),
		MaggiesUnc:           make([]float64, 0, len(list)),
		Mask:                 make([]bool, 0, len(list)),
	}
	if redshift != nil {
		z := *redshift
		obs.Redshift = &z
	}

	for _, p := range list {
		f, err := filters.Get(p.FilterName())
		if err != nil {
			return Observation{}, err
		}
		maggies := p.Maggies()
		obs.Filters = append(obs.Filters, p.FilterName())
		obs.EffectiveWavelengths = append(obs.EffectiveWavelengths, f.EffectiveWavelength())
		obs.Maggies = append(obs.Maggies, maggies)
		obs.MaggiesUnc = append(obs.MaggiesUnc, p.MagErrCombined()*maggies/magErrToFrac)
		obs.Mask = append(obs.Mask, p.IsDetection() && maggies > 0 && !math.IsInf(maggies, 0))
	}
	return obs, nil
}

// Validate checks that the per-band slices line up.
func (o Observation) Validate() error {
	n := len(o.Filters)
	if len(o.Maggies) != n || len(o.MaggiesUnc) != n || len(o.Mask) != n {
		return core.Validationf("observation arrays differ in length")
	}
	return nil
}
