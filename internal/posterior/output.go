package posterior

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/leapstack-labs/galsynth/internal/artifact"
)

// ParameterSummary is the weighted median of one parameter with the
// distances to its 16th and 84th percentiles.
type ParameterSummary struct {
	Name       string
	Median     float64
	SigmaMinus float64
	SigmaPlus  float64
}

// Summarize computes a summary for every labelled chain column.
func Summarize(p Posterior) ([]ParameterSummary, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	lo, hi := OneSigma()
	out := make([]ParameterSummary, 0, len(p.Labels))
	for j, name := range p.Labels {
		q, err := WeightedQuantiles(Column(p.Chain, j), p.Weights, 0.5, lo, hi)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		out = append(out, ParameterSummary{
			Name:       name,
			Median:     q[0],
			SigmaMinus: q[0] - q[1],
			SigmaPlus:  q[2] - q[0],
		})
	}
	return out, nil
}

// columnTable encodes like a pandas DataFrame in "columns" orientation:
// {"col": {"0": v0, "1": v1, ...}, ...}, keeping column and row order.
type columnTable struct {
	names []string
	cols  [][]any
}

func (t *columnTable) add(name string, values []any) {
	t.names = append(t.names, name)
	t.cols = append(t.cols, values)
}

func (t *columnTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range t.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, name)
		buf.WriteByte('{')
		for j, v := range t.cols[i] {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeKey(&buf, strconv.Itoa(j))
			b, err := json.Marshal(jsonValue(v))
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, k string) {
	b, _ := json.Marshal(k)
	buf.Write(b)
	buf.WriteByte(':')
}

// jsonValue maps NaN, infinities and nil pointers to null.
func jsonValue(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case *float64:
		if x == nil {
			return nil
		}
		return jsonValue(*x)
	}
	return v
}

func floatsAny(vs []float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func photometryTable(rows []PhotometryRow) *columnTable {
	n := len(rows)
	cols := map[string][]any{}
	names := []string{
		"band", "predicted_mag", "sigma+", "sigma-", "measured_mag", "measured_err",
		"extinction", "measured_mag_deextincted", "predicted_mag_extincted",
	}
	for _, name := range names {
		cols[name] = make([]any, n)
	}
	for i, r := range rows {
		cols["band"][i] = r.Band
		cols["predicted_mag"][i] = r.PredictedMag
		cols["sigma+"][i] = r.SigmaPlus
		cols["sigma-"][i] = r.SigmaMinus
		cols["measured_mag"][i] = r.MeasuredMag
		cols["measured_err"][i] = r.MeasuredErr
		cols["extinction"][i] = r.Extinction
		cols["measured_mag_deextincted"][i] = r.MeasuredMagDeextincted
		cols["predicted_mag_extincted"][i] = r.PredictedMagExtincted
	}

	t := &columnTable{}
	for _, name := range names {
		t.add(name, cols[name])
	}
	return t
}

func sedTable(sed SyntheticSED) *columnTable {
	t := &columnTable{}
	t.add("wavelength", floatsAny(sed.Wavelength))
	t.add("flux", floatsAny(sed.Flux))
	t.add("sigma", floatsAny(sed.Sigma))
	return t
}

// summaryJSON writes {"name": {"median": m, "sigma-": a, "sigma+": b}, ...} in label order.
type summaryJSON []ParameterSummary

func (s summaryJSON) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, p.Name)
		b, err := json.Marshal(map[string]any{
			"median": jsonValue(p.Median),
			"sigma-": jsonValue(p.SigmaMinus),
			"sigma+": jsonValue(p.SigmaPlus),
		})
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// WritePhotometryTable writes the predicted-photometry table.
func WritePhotometryTable(path string, rows []PhotometryRow) error {
	return writeJSON(path, photometryTable(rows))
}

// WriteSyntheticSED writes the synthetic SED.
func WriteSyntheticSED(path string, sed SyntheticSED) error {
	return writeJSON(path, sedTable(sed))
}

// WriteSummary writes the per-parameter posterior summary.
func WriteSummary(path string, s []ParameterSummary) error {
	return writeJSON(path, summaryJSON(s))
}

// WriteEnvelope writes the sigma-level quantile bands. Non-finite values
// are written as null.
func WriteEnvelope(path string, wavelength []float64, bands []EnvelopeBand) error {
	type bandJSON struct {
		Sigma float64 `json:"sigma"`
		Lower []any   `json:"lower"`
		Upper []any   `json:"upper"`
	}
	out := struct {
		Wavelength []any      `json:"wavelength"`
		Bands      []bandJSON `json:"bands"`
	}{Wavelength: nullNaN(wavelength), Bands: make([]bandJSON, len(bands))}
	for i, b := range bands {
		out.Bands[i] = bandJSON{Sigma: b.Sigma, Lower: nullNaN(b.Lower), Upper: nullNaN(b.Upper)}
	}
	return writeJSON(path, out)
}

func nullNaN(vs []float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = jsonValue(v)
	}
	return out
}

func writeJSON(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, b, "", "  "); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return artifact.WriteFile(path, pretty.Bytes())
}
