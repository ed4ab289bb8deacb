package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/galsynth/internal/cli/config"
	"github.com/leapstack-labs/galsynth/internal/cli/output"
	clitest "github.com/leapstack-labs/galsynth/internal/cli/testutil"
	"github.com/leapstack-labs/galsynth/internal/galaxy"
	"github.com/leapstack-labs/galsynth/internal/pipeline"
	"github.com/leapstack-labs/galsynth/internal/posterior"
	"github.com/leapstack-labs/galsynth/internal/testutil"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// setupConfig loads a config rooted in a temp data directory with JSON output.
func setupConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cfg, err := config.LoadConfig(clitest.SetupTestConfig(t, extra), nil)
	require.NoError(t, err)
	return cfg
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	cmd.SilenceUsage = true // mirror the root command, which silences usage output
	cmd.SetContext(config.WithLogger(t.Context(), testutil.NewTestLogger(t)))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		name  string
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{name: "by-name", cmd: NewByNameCommand(), use: "by-name <name>", flags: []string{"use-cache", "no-cache"}},
		{name: "by-ra-dec", cmd: NewByRaDecCommand(), use: "by-ra-dec <ra> <dec> [name]", flags: []string{"redshift", "use-cache", "no-cache"}},
		{name: "photometry", cmd: NewPhotometryCommand(), use: "photometry <ra> <dec> [name]", flags: []string{"use-cache", "no-cache"}},
		{name: "batch", cmd: NewBatchCommand(), use: "batch <file>", flags: []string{"use-cache", "no-cache"}},
		{name: "runs", cmd: NewRunsCommand(), use: "runs [run-id]", flags: []string{"limit", "source"}},
		{name: "serve", cmd: NewServeCommand(), use: "serve", flags: []string{"port", "watch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, tt.cmd.Example, "Example should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestCacheFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want bool
	}{
		{name: "default", args: nil, want: true},
		{name: "no-cache", args: []string{"--no-cache"}, want: false},
		{name: "use-cache false", args: []string{"--use-cache=false"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "x"}
			useCache := cacheFlags(cmd)
			require.NoError(t, cmd.ParseFlags(tt.args))
			assert.Equal(t, tt.want, useCache())
		})
	}
}

func TestGalaxyFromArgs(t *testing.T) {
	z := 0.05
	tests := []struct {
		name     string
		args     []string
		redshift *float64
		wantName string
		wantRA   float64
		wantDec  float64
		wantErr  bool
	}{
		{name: "decimal with name", args: []string{"150.1", "2.2", "host"}, wantName: "host", wantRA: 150.1, wantDec: 2.2},
		{name: "sexagesimal", args: []string{"20:57:02.941", "+14:12:15.72"}, redshift: &z, wantRA: 314.2622542, wantDec: 14.2043667},
		{name: "bad ra", args: []string{"abc", "2.2"}, wantErr: true},
		{name: "dec out of range", args: []string{"10", "95"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := galaxyFromArgs(tt.args, tt.redshift)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantRA, g.Position().RA, 1e-6)
			assert.InDelta(t, tt.wantDec, g.Position().Dec, 1e-6)
			if tt.wantName != "" {
				assert.Equal(t, tt.wantName, g.SourceName())
			} else {
				assert.Equal(t, galaxy.J2000Name(g.Position()), g.SourceName())
			}
			if tt.redshift != nil {
				zz, ok := g.Redshift()
				require.True(t, ok)
				assert.InDelta(t, *tt.redshift, zz, 1e-12)
			}
		})
	}
}

func TestLoadBatchFile(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantLen   int
		errSubstr string
	}{
		{
			name: "mixed targets",
			content: `targets:
  - name: 2020abc
  - ra: 314.2622542
    dec: 14.2043667
    redshift: 0.03
  - ra: "20:57:02.941"
    dec: "+14:12:15.72"
    name: host-b
`,
			wantLen: 3,
		},
		{name: "empty", content: "targets: []\n", errSubstr: "no targets"},
		{name: "ra without dec", content: "targets:\n  - ra: 10\n", errSubstr: "together"},
		{name: "nothing to locate", content: "targets:\n  - redshift: 0.1\n", errSubstr: "needs a name"},
		{name: "malformed", content: "targets: [", errSubstr: "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "targets.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			f, err := LoadBatchFile(path)
			if tt.errSubstr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				return
			}
			require.NoError(t, err)
			require.Len(t, f.Targets, tt.wantLen)
			assert.Equal(t, "314.2622542", f.Targets[1].RA)
			require.NotNil(t, f.Targets[1].Redshift)
			assert.InDelta(t, 0.03, *f.Targets[1].Redshift, 1e-12)
		})
	}
}

func TestRunsCommand(t *testing.T) {
	cfg := setupConfig(t, "")

	store, err := openStore(cfg.StatePath, nil)
	require.NoError(t, err)
	run, err := store.CreateRun("SN2020abc", core.Position{RA: 10, Dec: 20})
	require.NoError(t, err)
	require.NoError(t, store.RecordStage(&core.StageRun{RunID: run.ID, Stage: core.StageAcquire, Status: core.StageStatusCached}))
	require.NoError(t, store.CompleteRun(run.ID, core.RunStatusCompleted, ""))
	require.NoError(t, store.Close())

	out, err := execute(t, NewRunsCommand())
	require.NoError(t, err)
	var runs []runListJSON
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "SN2020abc", runs[0].Source)
	assert.Equal(t, "completed", runs[0].Status)

	out, err = execute(t, NewRunsCommand(), run.ID)
	require.NoError(t, err)
	var one runListJSON
	require.NoError(t, json.Unmarshal([]byte(out), &one))
	require.Len(t, one.Stages, 1)
	assert.Equal(t, "acquire", one.Stages[0].Stage)
	assert.Equal(t, "cached", one.Stages[0].Status)

	out, err = execute(t, NewRunsCommand(), "--source", "SN2020abc")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &one))
	assert.Equal(t, run.ID, one.ID)

	_, err = execute(t, NewRunsCommand(), "missing-id")
	require.Error(t, err)
}

func TestRunsCommand_TableOutput(t *testing.T) {
	cfg := setupConfig(t, "")
	cfg.OutputFormat = "table"

	out, err := execute(t, NewRunsCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "(0 rows)")
}

func TestPhotometryCommand_FromCache(t *testing.T) {
	cfg := setupConfig(t, "")
	clitest.WritePhotometryCache(t, cfg.DataDir, "hostA",
		`[{"filter_name":"sdss_r0","observed_mag":18.2,"extinction":0.1,"vega_mag":null,"mag_err":0.02,"systematic_error":0.05},
{"filter_name":"wise_w4","observed_mag":null,"extinction":0,"vega_mag":null,"mag_err":0.4,"systematic_error":0.05}]`)

	out, err := execute(t, NewPhotometryCommand(), "150.5", "2.25", "hostA")
	require.NoError(t, err)

	var got struct {
		Source     string `json:"source"`
		Photometry []struct {
			FilterName  string   `json:"filter_name"`
			ObservedMag *float64 `json:"observed_mag"`
		} `json:"photometry"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "hostA", got.Source)
	require.Len(t, got.Photometry, 2)
	assert.Equal(t, "sdss_r0", got.Photometry[0].FilterName)
	assert.Nil(t, got.Photometry[1].ObservedMag, "non-detections stay null")
}

func TestByRaDecCommand_RequiresFitService(t *testing.T) {
	setupConfig(t, "")

	_, err := execute(t, NewByRaDecCommand(), "150.5", "2.25")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fit_service.url")
}

func TestBatchCommand_InvalidTarget(t *testing.T) {
	setupConfig(t, "fit_service:\n  url: http://127.0.0.1:1\n")
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets:\n  - ra: 400\n    dec: 1\n    name: bad\n"), 0o600))

	out, err := execute(t, NewBatchCommand(), path)
	require.Error(t, err)

	var report []batchJSON
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report, 1)
	assert.Equal(t, "bad", report[0].Source)
	assert.Equal(t, "failed", report[0].Status)
}

func TestRenderOutcome(t *testing.T) {
	g, err := galaxy.New("hostB", 150.5, 2.25, nil)
	require.NoError(t, err)
	measured := 18.4
	o := &pipeline.Outcome{
		Galaxy: g,
		Paths:  g.Paths("/data"),
		Report: &posterior.Report{
			Photometry: []posterior.PhotometryRow{
				{Band: "sdss_r0", PredictedMag: 18.31, SigmaPlus: 0.04, SigmaMinus: 0.03, MeasuredMag: &measured},
			},
			Parameters: []posterior.ParameterSummary{{Name: "logmass", Median: 10.2, SigmaMinus: 0.1, SigmaPlus: 0.12}},
		},
	}

	tr := clitest.NewTestRenderer(output.ModeTable, false)
	require.NoError(t, renderOutcome(tr.Renderer, o))
	clitest.AssertNoANSI(t, tr.Output())
	assert.Contains(t, tr.Output(), "18.310")
	assert.Contains(t, tr.Output(), "logmass")
	assert.Contains(t, tr.Output(), "Artifacts written to")

	tr = clitest.NewTestRenderer(output.ModeJSON, false)
	require.NoError(t, renderOutcome(tr.Renderer, o))
	var got outcomeJSON
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &got))
	assert.Equal(t, "hostB", got.Source)
	assert.Nil(t, got.Redshift)
	require.Len(t, got.Photometry, 1)
	assert.Nil(t, got.Photometry[0].MeasuredErr)
	require.Len(t, got.Parameters, 1)
	assert.InDelta(t, 10.2, got.Parameters[0].Median, 1e-12)
}

func TestRenderBatch_MarksFailures(t *testing.T) {
	tr := clitest.NewTestRenderer(output.ModeMarkdown, false)
	require.NoError(t, renderBatch(tr.Renderer, []batchJSON{
		{Source: "a", Status: "completed", RunID: "r1"},
		{Source: "b", Status: "failed", Error: "no data"},
	}))
	clitest.AssertNoANSI(t, tr.Output())
	assert.Contains(t, tr.Output(), "no data")
	assert.Contains(t, tr.Output(), "r1")
}
