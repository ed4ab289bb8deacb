package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/galsynth/internal/galaxy"
	"github.com/leapstack-labs/galsynth/internal/state"
	"github.com/leapstack-labs/galsynth/internal/testutil"
	"github.com/leapstack-labs/galsynth/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, dataDir, source, name, body string) {
	t.Helper()
	dir := filepath.Join(dataDir, source)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func newTestServer(t *testing.T, store core.Store) (*Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	return NewServer(Config{DataDir: dataDir, Store: store, Logger: testutil.NewTestLogger(t)}), dataDir
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequestLog_UsesForwardedClientIP(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger()
	s := NewServer(Config{DataDir: t.TempDir(), Logger: logger})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Real-IP", "203.0.113.7")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, logs.Contains("remote=203.0.113.7"), logs.String())
	assert.True(t, logs.Contains("path=/health"), logs.String())
}

func TestSourcesAndArtifacts(t *testing.T) {
	s, dataDir := newTestServer(t, nil)
	writeArtifact(t, dataDir, "SN2020abc", galaxy.SyntheticPhotometryFile, `{"band":{"0":"sdss_r0"}}`)
	writeArtifact(t, dataDir, "SN2020abc", galaxy.FitArtifactFile, "binary")
	writeArtifact(t, dataDir, "AT2021x", galaxy.PhotometryFile, `[]`)
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, ".galsynth"), 0o750))
	h := s.Handler()

	rec := get(t, h, "/sources")
	require.Equal(t, http.StatusOK, rec.Code)
	var sources []SourceSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	assert.Equal(t, []SourceSummary{
		{Name: "AT2021x", Artifacts: []string{galaxy.PhotometryFile}},
		{Name: "SN2020abc", Artifacts: []string{galaxy.SyntheticPhotometryFile}},
	}, sources)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "served", path: "/sources/SN2020abc/synthetic_photometry.json", wantStatus: http.StatusOK, wantBody: `{"band":{"0":"sdss_r0"}}`},
		{name: "binary artifact not servable", path: "/sources/SN2020abc/" + galaxy.FitArtifactFile, wantStatus: http.StatusNotFound},
		{name: "missing file", path: "/sources/SN2020abc/fit_results.json", wantStatus: http.StatusNotFound},
		{name: "unknown source", path: "/sources/nobody/photometry.json", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestSources_EmptyDataDir(t *testing.T) {
	s := NewServer(Config{DataDir: filepath.Join(t.TempDir(), "missing")})
	rec := get(t, s.Handler(), "/sources")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRuns(t *testing.T) {
	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	defer store.Close()

	run, err := store.CreateRun("SN2020abc", core.Position{RA: 1, Dec: 2})
	require.NoError(t, err)
	require.NoError(t, store.RecordStage(&core.StageRun{RunID: run.ID, Stage: core.StageFit, Status: core.StageStatusCached}))
	require.NoError(t, store.CompleteRun(run.ID, core.RunStatusCompleted, ""))

	s, _ := newTestServer(t, store)
	h := s.Handler()

	rec := get(t, h, "/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []runJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "SN2020abc", runs[0].SourceName)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Empty(t, runs[0].Stages)

	rec = get(t, h, "/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var one runJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	require.Len(t, one.Stages, 1)
	assert.Equal(t, "cached", one.Stages[0].Status)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/runs/missing").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/runs?limit=zero").Code)
}

func TestRuns_NoStore(t *testing.T) {
	s, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/runs").Code)
}

func TestIndexPage(t *testing.T) {
	s, dataDir := newTestServer(t, nil)
	writeArtifact(t, dataDir, "a&b<odd>", galaxy.FitResultsFile, `{}`)

	rec := get(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<!doctype html>")
	assert.Contains(t, body, "data-init")
	assert.Contains(t, body, "/updates")
	assert.Contains(t, body, "a&amp;b&lt;odd&gt;")
	assert.NotContains(t, body, "<odd>")
}

func TestNotifier(t *testing.T) {
	n := NewNotifier()
	ch := n.Subscribe()

	n.Broadcast()
	n.Broadcast() // coalesced with the pending ping
	select {
	case <-ch:
	default:
		t.Fatal("expected a ping")
	}
	select {
	case <-ch:
		t.Fatal("expected a single pending ping")
	default:
	}

	n.Unsubscribe(ch)
	n.Broadcast()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestWatchInvalidatesIndex(t *testing.T) {
	s, dataDir := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	sources, err := s.index.List()
	require.NoError(t, err)
	require.Empty(t, sources)

	updates := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(updates)

	// Give the watcher time to register the data directory.
	time.Sleep(100 * time.Millisecond)
	writeArtifact(t, dataDir, "SN2022new", galaxy.PhotometryFile, `[]`)

	select {
	case <-updates:
	case <-time.After(5 * time.Second):
		t.Fatal("no update after writing an artifact")
	}
	sources, err = s.index.List()
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "SN2022new", sources[0].Name)
}
