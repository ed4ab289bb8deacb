package catalog

import (
	"math"
	"strconv"
	"strings"

	"github.com/leapstack-labs/galsynth/pkg/core"
	"github.com/soniakeys/meeus/v3/angle"
	"github.com/soniakeys/unit"
)

// Row is one catalog record with raw column values keyed by column name.
// Absent, empty and null-like values are treated as masked.
type Row map[string]string

// Float parses col, reporting false when the value is masked or not numeric.
func (r Row) Float(col string) (float64, bool) {
	raw, ok := r[col]
	if !ok {
		return 0, false
	}
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "null", "none", "nan", "--", "masked":
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Position returns the row's coordinates from the named columns.
func (r Row) Position(raCol, decCol string) (core.Position, bool) {
	ra, ok := r.Float(raCol)
	if !ok {
		return core.Position{}, false
	}
	dec, ok := r.Float(decCol)
	if !ok {
		return core.Position{}, false
	}
	return core.Position{RA: ra, Dec: dec}, true
}

// Separation returns the angular distance between two positions in arcseconds.
func Separation(a, b core.Position) float64 {
	sep := angle.Sep(
		unit.AngleFromDeg(a.RA), unit.AngleFromDeg(a.Dec),
		unit.AngleFromDeg(b.RA), unit.AngleFromDeg(b.Dec),
	)
	return sep.Sec()
}

// Nearest returns the row closest to pos. Rows without coordinates rank last;
// ties keep catalog order.
func Nearest(rows []Row, pos core.Position, raCol, decCol string) (Row, float64) {
	best := -1
	bestSep := math.Inf(1)
	for i, row := range rows {
		p, ok := row.Position(raCol, decCol)
		if !ok {
			continue
		}
		if sep := Separation(pos, p); sep < bestSep {
			best, bestSep = i, sep
		}
	}
	if best < 0 {
		if len(rows) == 0 {
			return nil, math.Inf(1)
		}
		return rows[0], math.Inf(1)
	}
	return rows[best], bestSep
}
