package commands

import (
	"fmt"
	"math"
	"time"

	"github.com/leapstack-labs/galsynth/internal/cli/output"
	"github.com/leapstack-labs/galsynth/internal/galaxy"
	"github.com/leapstack-labs/galsynth/internal/photometry"
	"github.com/leapstack-labs/galsynth/internal/pipeline"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// mag formats a magnitude, printing non-detections and NaN as "-".
func mag(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}

func magPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return mag(*v)
}

func renderGalaxy(r *output.Renderer, g *galaxy.Galaxy) {
	pos := g.Position()
	line := fmt.Sprintf("RA %.6f  Dec %.6f", pos.RA, pos.Dec)
	if z, ok := g.Redshift(); ok {
		line += fmt.Sprintf("  z %.4f", z)
	}
	r.Header(1, g.SourceName())
	r.Println(r.Styles().Muted.Render(line))
	r.Println("")
}

func renderPhotometry(r *output.Renderer, g *galaxy.Galaxy, list []photometry.Photometry) error {
	if r.Mode() == output.ModeJSON {
		return r.JSON(struct {
			Source     string                  `json:"source"`
			RA         float64                 `json:"ra"`
			Dec        float64                 `json:"dec"`
			Photometry []photometry.Photometry `json:"photometry"`
		}{g.SourceName(), g.Position().RA, g.Position().Dec, list})
	}

	renderGalaxy(r, g)
	rows := make([][]any, 0, len(list))
	for _, p := range list {
		rows = append(rows, []any{
			p.FilterName(), mag(p.ObservedMag()), fmt.Sprintf("%.3f", p.Extinction()),
			fmt.Sprintf("%.3f", p.MagErr()), fmt.Sprintf("%.3f", p.MagErrCombined()),
		})
	}
	r.Table([]string{"band", "observed mag", "extinction", "mag err", "combined err"}, rows)
	return nil
}

type predictedJSON struct {
	Band         string   `json:"band"`
	PredictedMag float64  `json:"predicted_mag"`
	SigmaPlus    float64  `json:"sigma_plus"`
	SigmaMinus   float64  `json:"sigma_minus"`
	MeasuredMag  *float64 `json:"measured_mag"`
	MeasuredErr  *float64 `json:"measured_err"`
	Extinction   float64  `json:"extinction"`
}

type parameterJSON struct {
	Name       string  `json:"name"`
	Median     float64 `json:"median"`
	SigmaMinus float64 `json:"sigma_minus"`
	SigmaPlus  float64 `json:"sigma_plus"`
}

type outcomeJSON struct {
	Source     string          `json:"source"`
	RA         float64         `json:"ra"`
	Dec        float64         `json:"dec"`
	Redshift   *float64        `json:"redshift"`
	RunID      string          `json:"run_id,omitempty"`
	OutputDir  string          `json:"output_dir"`
	Photometry []predictedJSON `json:"synthetic_photometry"`
	Parameters []parameterJSON `json:"parameters"`
}

func renderOutcome(r *output.Renderer, o *pipeline.Outcome) error {
	out := outcomeJSON{
		Source:     o.Galaxy.SourceName(),
		RA:         o.Galaxy.Position().RA,
		Dec:        o.Galaxy.Position().Dec,
		Redshift:   o.Galaxy.RedshiftPtr(),
		RunID:      o.RunID,
		OutputDir:  o.Paths.Dir,
		Photometry: []predictedJSON{},
		Parameters: []parameterJSON{},
	}
	if o.Report != nil {
		for _, row := range o.Report.Photometry {
			out.Photometry = append(out.Photometry, predictedJSON{
				Band:         row.Band,
				PredictedMag: row.PredictedMag,
				SigmaPlus:    row.SigmaPlus,
				SigmaMinus:   row.SigmaMinus,
				MeasuredMag:  row.MeasuredMag,
				MeasuredErr:  row.MeasuredErr,
				Extinction:   row.Extinction,
			})
		}
		for _, p := range o.Report.Parameters {
			out.Parameters = append(out.Parameters, parameterJSON(p))
		}
	}
	if r.Mode() == output.ModeJSON {
		return r.JSON(out)
	}

	renderGalaxy(r, o.Galaxy)
	r.Header(2, "Synthetic photometry")
	rows := make([][]any, 0, len(out.Photometry))
	for _, p := range out.Photometry {
		rows = append(rows, []any{
			p.Band, mag(p.PredictedMag), mag(p.SigmaPlus), mag(p.SigmaMinus),
			magPtr(p.MeasuredMag), magPtr(p.MeasuredErr),
		})
	}
	r.Table([]string{"band", "predicted", "sigma+", "sigma-", "measured", "measured err"}, rows)

	r.Header(2, "Parameters")
	rows = rows[:0]
	for _, p := range out.Parameters {
		rows = append(rows, []any{p.Name, fmt.Sprintf("%.4g", p.Median), fmt.Sprintf("%.4g", p.SigmaMinus), fmt.Sprintf("%.4g", p.SigmaPlus)})
	}
	r.Table([]string{"parameter", "median", "sigma-", "sigma+"}, rows)

	r.Println(r.Styles().Muted.Render("Artifacts written to " + out.OutputDir))
	return nil
}

type batchJSON struct {
	Source string `json:"source"`
	RunID  string `json:"run_id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func renderBatch(r *output.Renderer, results []batchJSON) error {
	if r.Mode() == output.ModeJSON {
		return r.JSON(results)
	}
	rows := make([][]any, 0, len(results))
	for _, res := range results {
		status := r.Styles().Success.Render(res.Status)
		if res.Error != "" {
			status = r.Styles().Error.Render(res.Status)
		}
		rows = append(rows, []any{res.Source, status, res.RunID, res.Error})
	}
	r.Table([]string{"source", "status", "run", "error"}, rows)
	return nil
}

type stageRunJSON struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type runListJSON struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	RA          float64        `json:"ra"`
	Dec         float64        `json:"dec"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Stages      []stageRunJSON `json:"stages,omitempty"`
}

func toRunListJSON(run *core.Run, stages []*core.StageRun) runListJSON {
	out := runListJSON{
		ID:          run.ID,
		Source:      run.SourceName,
		RA:          run.RA,
		Dec:         run.Dec,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
	for _, st := range stages {
		out.Stages = append(out.Stages, stageRunJSON{
			Stage:      string(st.Stage),
			Status:     string(st.Status),
			DurationMS: st.DurationMS,
			Error:      st.Error,
		})
	}
	return out
}

func renderRuns(r *output.Renderer, runs []*core.Run) error {
	if r.Mode() == output.ModeJSON {
		out := make([]runListJSON, len(runs))
		for i, run := range runs {
			out[i] = toRunListJSON(run, nil)
		}
		return r.JSON(out)
	}
	rows := make([][]any, 0, len(runs))
	for _, run := range runs {
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []any{
			run.ID, run.SourceName, string(run.Status),
			run.StartedAt.Local().Format(time.DateTime), duration, run.Error,
		})
	}
	r.Table([]string{"run", "source", "status", "started", "duration", "error"}, rows)
	return nil
}

func renderRun(r *output.Renderer, run *core.Run, stages []*core.StageRun) error {
	if r.Mode() == output.ModeJSON {
		return r.JSON(toRunListJSON(run, stages))
	}
	r.Header(1, fmt.Sprintf("Run %s", run.ID))
	r.Println(fmt.Sprintf("%s  RA %.6f  Dec %.6f  %s", run.SourceName, run.RA, run.Dec, run.Status))
	if run.Error != "" {
		r.Println(r.Styles().Error.Render(run.Error))
	}
	r.Println("")
	rows := make([][]any, 0, len(stages))
	for _, st := range stages {
		rows = append(rows, []any{string(st.Stage), string(st.Status), fmt.Sprintf("%dms", st.DurationMS), st.Error})
	}
	r.Table([]string{"stage", "status", "duration", "error"}, rows)
	return nil
}
