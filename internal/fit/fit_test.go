package fit

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/leapstack-labs/galsynth/internal/bandpass"
	"github.com/leapstack-labs/galsynth/internal/galaxy"
	"github.com/leapstack-labs/galsynth/internal/photometry"
	"github.com/leapstack-labs/galsynth/internal/testutil"
	"github.com/leapstack-labs/galsynth/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

type stubEngine struct {
	calls int
	out   *Output
	err   error
	got   Observation
	model ModelSpec
}

func (s *stubEngine) Fit(_ context.Context, obs Observation, model ModelSpec, _ SamplerSettings) (*Output, error) {
	s.calls++
	s.got, s.model = obs, model
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

type stubAcquirer struct {
	list []photometry.Photometry
}

func (s stubAcquirer) Acquire(context.Context, core.Position, float64) ([]photometry.Photometry, error) {
	return s.list, nil
}

// cannedOutput builds a chain of n samples over labels whose zred column
// cycles through zs.
func cannedOutput(n int, labels []string, zs ...float64) *Output {
	out := &Output{
		Labels: labels,
		BestFit: BestFit{
			Parameters:           make([]float64, len(labels)),
			RestframeWavelengths: []float64{1000, 2000, 3000},
			Spectrum:             []float64{1e-8, 2e-8, 3e-8},
		},
		Duration: 3 * time.Second,
	}
	for i := range n {
		row := make([]float64, len(labels))
		for j, l := range labels {
			if l == "zred" && len(zs) > 0 {
				row[j] = zs[i%len(zs)]
			} else {
				row[j] = float64(i)
			}
		}
		out.Chain = append(out.Chain, row)
		out.Weights = append(out.Weights, 1)
	}
	return out
}

func newTestOrchestrator(t *testing.T, eng Engine, list []photometry.Photometry) (*Orchestrator, string) {
	t.Helper()
	reg := bandpass.NewRegistry()
	dataDir := t.TempDir()
	return NewOrchestrator(Config{
		Engine:  eng,
		Filters: reg,
		Photometry: galaxy.PhotometrySource{
			Acquirer: stubAcquirer{list: list},
			Cache:    photometry.NewCache(reg, testutil.NewTestLogger(t)),
		},
		DataDir: dataDir,
		Logger:  testutil.NewTestLogger(t),
	}), dataDir
}

func TestNewModelSpec(t *testing.T) {
	fixed := NewModelSpec(ptr(0.05))
	assert.Equal(t, []string{"mass", "logzsol", "dust2", "tage", "tau"}, fixed.FreeParameters())
	z, ok := fixed.Parameter("zred")
	require.True(t, ok)
	assert.False(t, z.Free)
	assert.Equal(t, 0.05, z.Init)

	free := NewModelSpec(nil)
	assert.Equal(t, []string{"zred", "mass", "logzsol", "dust2", "tage", "tau"}, free.FreeParameters())
	z, _ = free.Parameter("zred")
	require.NotNil(t, z.Prior)
	assert.Equal(t, Prior{Kind: PriorLogUniform, Min: 0, Max: 4}, *z.Prior)

	tage, _ := free.Parameter("tage")
	assert.Equal(t, Prior{Kind: PriorUniform, Min: 0.1, Max: 10.1}, *tage.Prior)
	tau, _ := free.Parameter("tau")
	assert.Equal(t, Prior{Kind: PriorUniform, Min: 0.1, Max: 10}, *tau.Prior)
	logz, _ := free.Parameter("logzsol")
	assert.Equal(t, Prior{Kind: PriorUniform, Min: -1.8, Max: 0.2}, *logz.Prior)
	dust, _ := free.Parameter("dust2")
	assert.Equal(t, Prior{Kind: PriorUniform, Min: 0, Max: 1}, *dust.Prior)
}

func TestBuildObservation(t *testing.T) {
	reg := bandpass.NewRegistry()
	r, err := photometry.New(reg, "sdss_r0", 17.1, 0.1, 0.02)
	require.NoError(t, err)
	w4, err := photometry.New(reg, "wise_w4", math.NaN(), 0.0, 15.0)
	require.NoError(t, err)

	obs, err := BuildObservation([]photometry.Photometry{r, w4}, reg, ptr(0.1))
	require.NoError(t, err)
	require.NoError(t, obs.Validate())

	assert.Equal(t, []string{"sdss_r0", "wise_w4"}, obs.Filters)
	assert.InDelta(t, math.Pow(10, -0.4*17.0), obs.Maggies[0], 1e-15)
	assert.InDelta(t, math.Hypot(0.02, 0.05)*obs.Maggies[0]/1.086, obs.MaggiesUnc[0], 1e-18)
	assert.Equal(t, 0.0, obs.Maggies[1])
	assert.Equal(t, 0.0, obs.MaggiesUnc[1])
	assert.Equal(t, []bool{true, false}, obs.Mask)
	assert.InDelta(t, 6166, obs.EffectiveWavelengths[0], 5)
	require.NotNil(t, obs.Redshift)
	assert.Equal(t, 0.1, *obs.Redshift)
}

func TestNewResult(t *testing.T) {
	labels := []string{"zred", "mass"}

	t.Run("burn-in trimmed", func(t *testing.T) {
		res, err := NewResult("x", &Artifact{Output: *cannedOutput(600, labels)})
		require.NoError(t, err)
		assert.Len(t, res.Chain, 100)
		assert.Len(t, res.Weights, 100)
		assert.Equal(t, 500.0, res.Chain[0][1])
	})

	t.Run("short chain kept", func(t *testing.T) {
		res, err := NewResult("x", &Artifact{Output: *cannedOutput(10, labels)})
		require.NoError(t, err)
		assert.Len(t, res.Chain, 10)
	})

	t.Run("column mismatch", func(t *testing.T) {
		out := cannedOutput(10, labels)
		out.Labels = []string{"zred"}
		_, err := NewResult("x", &Artifact{Output: *out})
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("spectrum mismatch", func(t *testing.T) {
		out := cannedOutput(10, labels)
		out.BestFit.Spectrum = out.BestFit.Spectrum[:2]
		_, err := NewResult("x", &Artifact{Output: *out})
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("empty chain", func(t *testing.T) {
		_, err := NewResult("x", &Artifact{Output: Output{Labels: labels}})
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestResultRedshift(t *testing.T) {
	labels := []string{"zred", "mass"}

	res, err := NewResult("x", &Artifact{
		Observation: Observation{Redshift: ptr(0.0512)},
		Output:      *cannedOutput(10, labels, 0.3),
	})
	require.NoError(t, err)
	z, err := res.Redshift()
	require.NoError(t, err)
	assert.Equal(t, 0.0512, z)

	res, err = NewResult("x", &Artifact{Output: *cannedOutput(9, labels, 0.1, 0.2, 0.9)})
	require.NoError(t, err)
	z, err = res.Redshift()
	require.NoError(t, err)
	assert.Equal(t, 0.2, z)

	obsWave, err := res.ObservedWavelengths()
	require.NoError(t, err)
	assert.InDelta(t, 1200, obsWave[0], 1e-9)

	res, err = NewResult("x", &Artifact{Output: *cannedOutput(3, []string{"mass"})})
	require.NoError(t, err)
	_, err = res.Redshift()
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestArtifactRoundTrip(t *testing.T) {
	path := t.TempDir() + "/fit_result.gob.zst"
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	a := &Artifact{
		Model:       NewModelSpec(nil),
		Observation: Observation{Filters: []string{"sdss_r0"}, Maggies: []float64{1e-7}, MaggiesUnc: []float64{1e-9}, Mask: []bool{true}},
		Sampler:     DefaultSampler,
		Output:      *cannedOutput(4, []string{"zred", "mass"}, 0.1),
	}
	require.NoError(t, WriteArtifact(path, a))

	got, err := ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, a.Output.Chain, got.Output.Chain)
	assert.Equal(t, a.Model, got.Model)
	assert.Equal(t, DefaultSampler, got.Sampler)
	assert.Equal(t, 3*time.Second, got.Output.Duration)
	assert.Nil(t, got.Observation.Redshift)

	_, err = ReadArtifact(t.TempDir() + "/missing.gob.zst")
	assert.ErrorIs(t, err, core.ErrMustFitFirst)
}

func TestOrchestrator_GetGalaxyResults(t *testing.T) {
	reg := bandpass.NewRegistry()
	r, err := photometry.New(reg, "sdss_r0", 17.1, 0.1, 0.02)
	require.NoError(t, err)

	eng := &stubEngine{out: cannedOutput(20, []string{"zred", "mass"}, 0.1)}
	orch, dataDir := newTestOrchestrator(t, eng, []photometry.Photometry{r})
	g, err := galaxy.New("SN2020abc", 10, 10, nil)
	require.NoError(t, err)

	_, err = orch.LoadResults(g)
	assert.ErrorIs(t, err, core.ErrMustFitFirst)

	res, cached, err := orch.GetGalaxyResults(context.Background(), g, true)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, eng.calls)
	assert.Len(t, res.Chain, 20)
	assert.Equal(t, []string{"sdss_r0"}, eng.got.Filters)
	assert.Contains(t, eng.model.FreeParameters(), "zred")
	assert.FileExists(t, g.Paths(dataDir).FitArtifact())
	assert.FileExists(t, g.Paths(dataDir).Photometry())

	_, cached, err = orch.GetGalaxyResults(context.Background(), g, true)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, eng.calls)

	_, cached, err = orch.GetGalaxyResults(context.Background(), g, false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, eng.calls)
}

func TestOrchestrator_ResultsFor(t *testing.T) {
	reg := bandpass.NewRegistry()
	j, err := photometry.New(reg, "twomass_J", 15.2, 0.05, 0)
	require.NoError(t, err)

	eng := &stubEngine{out: cannedOutput(10, []string{"mass"})}
	orch, dataDir := newTestOrchestrator(t, eng, nil)
	g, err := galaxy.New("host", 20, -5, ptr(0.03))
	require.NoError(t, err)

	_, cached, err := orch.ResultsFor(context.Background(), g, []photometry.Photometry{j}, true)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []string{"twomass_J"}, eng.got.Filters)
	// The supplied list is fitted as is; nothing is acquired or cached.
	assert.NoFileExists(t, g.Paths(dataDir).Photometry())

	_, cached, err = orch.ResultsFor(context.Background(), g, nil, true)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, eng.calls)
}

func TestOrchestrator_EngineFailure(t *testing.T) {
	eng := &stubEngine{err: errors.New("sampler crashed")}
	orch, dataDir := newTestOrchestrator(t, eng, nil)
	g, err := galaxy.New("", 10, 10, ptr(0.02))
	require.NoError(t, err)

	_, err = orch.Fit(context.Background(), g, true)
	assert.ErrorIs(t, err, core.ErrExternalService)
	assert.NoFileExists(t, g.Paths(dataDir).FitArtifact())
}

func TestOrchestrator_NoEngine(t *testing.T) {
	orch, _ := newTestOrchestrator(t, nil, nil)
	g, err := galaxy.New("x", 1, 1, nil)
	require.NoError(t, err)
	_, err = orch.Fit(context.Background(), g, true)
	assert.ErrorIs(t, err, core.ErrExternalService)
}

type loopModel struct{ calls int }

func (m *loopModel) Predict(_ context.Context, _ ModelSpec, theta []float64, _ Observation) (Prediction, error) {
	m.calls++
	return Prediction{Spectrum: []float64{theta[0], theta[0]}}, nil
}

type batchModel struct {
	loopModel
	batches int
}

func (m *batchModel) PredictBatch(ctx context.Context, spec ModelSpec, thetas [][]float64, obs Observation) ([]Prediction, error) {
	m.batches++
	out := make([]Prediction, len(thetas))
	for i, th := range thetas {
		out[i], _ = m.Predict(ctx, spec, th, obs)
	}
	return out, nil
}

func TestResultSEDModel(t *testing.T) {
	res := &Result{}
	thetas := [][]float64{{1}, {2}, {3}}

	loop := &loopModel{}
	spectra, err := res.SEDModel(loop).Spectra(context.Background(), thetas)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 1}, {2, 2}, {3, 3}}, spectra)
	assert.Equal(t, 3, loop.calls)

	batch := &batchModel{}
	_, err = res.SEDModel(batch).Spectra(context.Background(), thetas)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.batches)
}
