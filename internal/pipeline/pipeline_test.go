package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/leapstack-labs/galsynth/internal/bandpass"
	"github.com/leapstack-labs/galsynth/internal/fit"
	"github.com/leapstack-labs/galsynth/internal/galaxy"
	"github.com/leapstack-labs/galsynth/internal/photometry"
	"github.com/leapstack-labs/galsynth/internal/posterior"
	"github.com/leapstack-labs/galsynth/internal/state"
	"github.com/leapstack-labs/galsynth/internal/testutil"
	"github.com/leapstack-labs/galsynth/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAcquirer struct {
	mu    sync.Mutex
	calls int
	list  []photometry.Photometry
}

func (s *stubAcquirer) Acquire(context.Context, core.Position, float64) ([]photometry.Photometry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.list, nil
}

type stubFitter struct {
	mu      sync.Mutex
	calls   int
	failFor string
}

func (s *stubFitter) ResultsFor(_ context.Context, g *galaxy.Galaxy, _ []photometry.Photometry, useCache bool) (*fit.Result, bool, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if g.SourceName() == s.failFor {
		return nil, false, errors.Join(core.ErrExternalService, errors.New("sampler crashed"))
	}
	z := 0.05
	res, err := fit.NewResult("stub", &fit.Artifact{
		Observation: fit.Observation{Redshift: &z},
		Output: fit.Output{
			Labels:  []string{"mass"},
			Chain:   [][]float64{{1e10}, {2e10}},
			Weights: []float64{1, 1},
			BestFit: fit.BestFit{RestframeWavelengths: []float64{1000, 2000}, Spectrum: []float64{1, 1}},
		},
	})
	return res, useCache, err
}

type stubAnalyser struct {
	mu       sync.Mutex
	measured int
}

func (s *stubAnalyser) Analyse(_ context.Context, p posterior.Posterior, _ posterior.SEDModel, _ core.Position, measured []photometry.Photometry) (*posterior.Report, error) {
	s.mu.Lock()
	s.measured = len(measured)
	s.mu.Unlock()

	summary, err := posterior.Summarize(p)
	if err != nil {
		return nil, err
	}
	return &posterior.Report{
		SED:        posterior.SyntheticSED{Wavelength: p.ObservedWavelengths(), Flux: []float64{1, 1}, Sigma: []float64{0.1, 0.1}},
		Parameters: summary,
	}, nil
}

type stubModel struct{}

func (stubModel) Predict(context.Context, fit.ModelSpec, []float64, fit.Observation) (fit.Prediction, error) {
	return fit.Prediction{}, nil
}

type fixture struct {
	pipeline *Pipeline
	store    *state.SQLiteStore
	acquirer *stubAcquirer
	fitter   *stubFitter
	analyser *stubAnalyser
	dataDir  string
}

func newFixture(t *testing.T, concurrency int) *fixture {
	t.Helper()
	reg := bandpass.NewRegistry()
	r, err := photometry.New(reg, "sdss_r0", 17.0, 0.1, 0.02)
	require.NoError(t, err)

	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:    store,
		acquirer: &stubAcquirer{list: []photometry.Photometry{r}},
		fitter:   &stubFitter{},
		analyser: &stubAnalyser{},
		dataDir:  t.TempDir(),
	}
	f.pipeline = New(Config{
		DataDir: f.dataDir,
		Photometry: galaxy.PhotometrySource{
			Acquirer: f.acquirer,
			Cache:    photometry.NewCache(reg, nil),
		},
		Fitter:      f.fitter,
		Model:       stubModel{},
		Analyser:    f.analyser,
		Store:       store,
		Concurrency: concurrency,
		Logger:      testutil.NewTestLogger(t),
	})
	return f
}

func mustGalaxy(t *testing.T, name string) *galaxy.Galaxy {
	t.Helper()
	g, err := galaxy.New(name, 314.262256, 14.204368, nil)
	require.NoError(t, err)
	return g
}

func stageStatuses(t *testing.T, store core.Store, runID string) map[core.Stage]core.StageStatus {
	t.Helper()
	stages, err := store.GetStageRuns(runID)
	require.NoError(t, err)
	out := map[core.Stage]core.StageStatus{}
	for _, s := range stages {
		out[s.Stage] = s.Status
	}
	return out
}

func TestRunOnGalaxy(t *testing.T) {
	f := newFixture(t, 1)
	g := mustGalaxy(t, "SN2019abc")

	out, err := f.pipeline.RunOnGalaxy(context.Background(), g, true)
	require.NoError(t, err)
	require.NotNil(t, out.Report)
	assert.Equal(t, 1, f.analyser.measured)

	for _, path := range []string{
		out.Paths.Photometry(),
		out.Paths.SyntheticPhotometry(),
		out.Paths.SyntheticSED(),
		out.Paths.SEDEnvelope(),
		out.Paths.FitResults(),
	} {
		assert.FileExists(t, path)
	}

	run, err := f.store.GetRun(out.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, run.Status)
	assert.Equal(t, "SN2019abc", run.SourceName)
	assert.Equal(t, map[core.Stage]core.StageStatus{
		core.StageAcquire: core.StageStatusSuccess,
		core.StageFit:     core.StageStatusCached,
		core.StageAnalyse: core.StageStatusSuccess,
	}, stageStatuses(t, f.store, out.RunID))

	// Second run reads the photometry cache.
	out, err = f.pipeline.RunOnGalaxy(context.Background(), g, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.acquirer.calls)
	assert.Equal(t, core.StageStatusCached, stageStatuses(t, f.store, out.RunID)[core.StageAcquire])

	// Without the cache photometry is acquired again.
	out, err = f.pipeline.RunOnGalaxy(context.Background(), g, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.acquirer.calls)
	assert.Equal(t, core.StageStatusSuccess, stageStatuses(t, f.store, out.RunID)[core.StageFit])
}

func TestRunOnGalaxy_FitFailure(t *testing.T) {
	f := newFixture(t, 1)
	f.fitter.failFor = "bad"

	_, err := f.pipeline.RunOnGalaxy(context.Background(), mustGalaxy(t, "bad"), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrExternalService)

	stage, ok := core.StageOf(err)
	require.True(t, ok)
	assert.Equal(t, core.StageFit, stage)
	assert.Contains(t, err.Error(), "stage fit failed (source=bad)")

	run, err := f.store.GetLatestRun("bad")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, core.RunStatusFailed, run.Status)

	statuses := stageStatuses(t, f.store, run.ID)
	assert.Equal(t, core.StageStatusFailed, statuses[core.StageFit])
	assert.NotContains(t, statuses, core.StageAnalyse)
}

func TestRunOnGalaxy_NoModel(t *testing.T) {
	f := newFixture(t, 1)
	f.pipeline.cfg.Model = nil

	_, err := f.pipeline.RunOnGalaxy(context.Background(), mustGalaxy(t, "x"), true)
	stage, ok := core.StageOf(err)
	require.True(t, ok)
	assert.Equal(t, core.StageAnalyse, stage)
	assert.ErrorIs(t, err, core.ErrExternalService)
}

func TestRunOnGalaxy_WithoutStore(t *testing.T) {
	f := newFixture(t, 1)
	f.pipeline.cfg.Store = nil

	out, err := f.pipeline.RunOnGalaxy(context.Background(), mustGalaxy(t, "x"), true)
	require.NoError(t, err)
	assert.Empty(t, out.RunID)
}

func TestRunBatch(t *testing.T) {
	f := newFixture(t, 2)
	f.fitter.failFor = "bad"

	galaxies := []*galaxy.Galaxy{
		mustGalaxy(t, "a"),
		mustGalaxy(t, "bad"),
		mustGalaxy(t, "c"),
		mustGalaxy(t, "a"),
	}
	results, err := f.pipeline.RunBatch(context.Background(), galaxies, true)
	require.Error(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Outcome)
	assert.Equal(t, "bad", results[1].Galaxy.SourceName())
	assert.ErrorIs(t, results[1].Err, core.ErrExternalService)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 3, f.fitter.calls)

	runs, err := f.store.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRunBatch_Cancelled(t *testing.T) {
	f := newFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := f.pipeline.RunBatch(ctx, []*galaxy.Galaxy{mustGalaxy(t, "a")}, true)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.Zero(t, f.fitter.calls)
}

func TestRecordResolveFailure(t *testing.T) {
	f := newFixture(t, 1)

	err := f.pipeline.RecordResolveFailure("SN2099zzz", core.ErrNoData)
	stage, ok := core.StageOf(err)
	require.True(t, ok)
	assert.Equal(t, core.StageResolve, stage)
	assert.ErrorIs(t, err, core.ErrNoData)

	run, err := f.store.GetLatestRun("SN2099zzz")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, core.RunStatusFailed, run.Status)
	assert.Equal(t, core.StageStatusFailed, stageStatuses(t, f.store, run.ID)[core.StageResolve])
}
