package posterior

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/leapstack-labs/galsynth/internal/bandpass"
	"github.com/leapstack-labs/galsynth/internal/photometry"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// DefaultSamples is the number of posterior draws used for SEDs and photometry.
const DefaultSamples = 1000

// Config holds the analysis collaborators.
type Config struct {
	Filters    FilterLookup
	Extinction ExtinctionLookup

	// Bands to predict; DefaultFilterList when empty.
	Bands []string

	// Samples is the number of posterior draws; DefaultSamples when zero.
	Samples int

	// Seed makes resampling reproducible; every Analyse call derives its
	// own generator from Seed and the galaxy position. Zero draws a fresh
	// seed per call.
	Seed uint64

	Logger *slog.Logger
}

// Analyzer derives synthetic products from a posterior.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer applies defaults to cfg.
func NewAnalyzer(cfg Config) *Analyzer {
	if len(cfg.Bands) == 0 {
		cfg.Bands = bandpass.DefaultFilterList
	}
	if cfg.Samples <= 0 {
		cfg.Samples = DefaultSamples
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{cfg: cfg}
}

// Report is everything derived from one posterior.
type Report struct {
	SED        SyntheticSED
	Envelope   []EnvelopeBand
	Photometry []PhotometryRow
	Parameters []ParameterSummary
}

// Analyse resamples the posterior once and derives the SED, its envelope,
// the predicted-photometry table and the parameter summary from that ensemble.
func (a *Analyzer) Analyse(ctx context.Context, p Posterior, model SEDModel, pos core.Position, measured []photometry.Photometry) (*Report, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	a.cfg.Logger.Info("sampling posterior spectra", slog.Int("samples", a.cfg.Samples))
	ens, err := SampleSEDs(ctx, p, model, a.cfg.Samples, a.rng(pos))
	if err != nil {
		return nil, err
	}

	obsWave := p.ObservedWavelengths()
	rows, err := PredictPhotometry(PredictInput{
		Ensemble:            ens,
		ObservedWavelengths: obsWave,
		Measured:            measured,
		Position:            pos,
		Bands:               a.cfg.Bands,
	}, a.cfg.Filters, a.cfg.Extinction)
	if err != nil {
		return nil, fmt.Errorf("failed to predict photometry: %w", err)
	}

	summary, err := Summarize(p)
	if err != nil {
		return nil, err
	}

	return &Report{
		SED:        NewSyntheticSED(ens, obsWave),
		Envelope:   ens.Envelope(SigmaLevels(EnvelopeLevels, EnvelopeMaxSigma)),
		Photometry: rows,
		Parameters: summary,
	}, nil
}

// rng returns a generator private to one Analyse call, so concurrent
// callers never share PCG state.
func (a *Analyzer) rng(pos core.Position) *rand.Rand {
	seed := a.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	h := fnv.New64a()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(pos.RA))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(pos.Dec))
	_, _ = h.Write(buf[:])
	return rand.New(rand.NewPCG(seed, h.Sum64())) //nolint:gosec
}

// Paths names the files a Report is written to.
type Paths struct {
	SyntheticPhotometry string
	SyntheticSED        string
	Envelope            string
	Summary             string
}

// Write persists every product of the report.
func (r *Report) Write(p Paths) error {
	if err := WriteSyntheticSED(p.SyntheticSED, r.SED); err != nil {
		return err
	}
	if err := WriteEnvelope(p.Envelope, r.SED.Wavelength, r.Envelope); err != nil {
		return err
	}
	if err := WritePhotometryTable(p.SyntheticPhotometry, r.Photometry); err != nil {
		return err
	}
	return WriteSummary(p.Summary, r.Parameters)
}
