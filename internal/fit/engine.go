package fit

import (
	"context"
	"time"
)

// BestFit is the maximum-posterior point and its model outputs.
type BestFit struct {
	Parameters           []float64 `json:"parameter"`
	Photometry           []float64 `json:"photometry"`
	RestframeWavelengths []float64 `json:"restframe_wavelengths"`
	Spectrum             []float64 `json:"spectrum"`
	MassFraction         float64   `json:"mfrac"`
}

// Output is what an engine returns from a fit.
type Output struct {
	Labels   []string      `json:"theta_labels"`
	Chain    [][]float64   `json:"chain"`
	Weights  []float64     `json:"weights"`
	BestFit  BestFit       `json:"bestfit"`
	Duration time.Duration `json:"duration"`
}

// Prediction is a model evaluation at one parameter vector.
type Prediction struct {
	Spectrum     []float64 `json:"spectrum"`
	Photometry   []float64 `json:"photometry"`
	MassFraction float64   `json:"mfrac"`
}

// Engine runs posterior sampling. Calls block until the sampler finishes.
type Engine interface {
	Fit(ctx context.Context, obs Observation, model ModelSpec, sampler SamplerSettings) (*Output, error)
}

// SpectralModel evaluates the stellar-population model.
type SpectralModel interface {
	Predict(ctx context.Context, model ModelSpec, theta []float64, obs Observation) (Prediction, error)
}

// BatchModel is implemented by spectral models that can evaluate many
// parameter vectors in one call.
type BatchModel interface {
	PredictBatch(ctx context.Context, model ModelSpec, thetas [][]float64, obs Observation) ([]Prediction, error)
}
