// Package posterior turns a weighted posterior chain into parameter
// summaries, a synthetic SED and predicted photometry.
package posterior

import (
	"math"
	"slices"
	"sort"

	"github.com/leapstack-labs/galsynth/pkg/core"
	"gonum.org/v1/gonum/floats"
)

// cdf is a sorted sample with its cumulative weights.
type cdf struct {
	sorted []float64
	cum    []float64
}

func newCDF(values, weights []float64) (cdf, error) {
	if len(values) == 0 {
		return cdf{}, core.Validationf("quantile of an empty sample")
	}
	if len(values) != len(weights) {
		return cdf{}, core.Validationf("values and weights differ in length (%d != %d)", len(values), len(weights))
	}

	sorted := slices.Clone(values)
	for _, v := range sorted {
		if math.IsNaN(v) {
			return cdf{}, core.Validationf("sample contains NaN")
		}
	}
	idx := make([]int, len(sorted))
	floats.Argsort(sorted, idx)

	w := make([]float64, len(idx))
	for i, j := range idx {
		if weights[j] < 0 || math.IsNaN(weights[j]) {
			return cdf{}, core.Validationf("weight %d is not a non-negative number", j)
		}
		w[i] = weights[j]
	}
	cum := floats.CumSum(make([]float64, len(w)), w)
	if cum[len(cum)-1] <= 0 {
		return cdf{}, core.Validationf("weights sum to zero")
	}
	return cdf{sorted: sorted, cum: cum}, nil
}

// at returns the first sorted value whose cumulative weight reaches q of the total.
func (c cdf) at(q float64) float64 {
	target := q * c.cum[len(c.cum)-1]
	k := sort.SearchFloat64s(c.cum, target)
	if k >= len(c.sorted) {
		k = len(c.sorted) - 1
	}
	return c.sorted[k]
}

func checkQuantile(q float64) error {
	if math.IsNaN(q) || q < 0 || q > 1 {
		return core.Validationf("quantile %v outside [0, 1]", q)
	}
	return nil
}

// WeightedQuantile returns the sample value at which the cumulative weight of
// the ascending-sorted values first reaches q of the total. No interpolation
// is done, so q=0 yields the minimum and q=1 the maximum.
func WeightedQuantile(values, weights []float64, q float64) (float64, error) {
	qs, err := WeightedQuantiles(values, weights, q)
	if err != nil {
		return math.NaN(), err
	}
	return qs[0], nil
}

// WeightedQuantiles evaluates several quantiles over a single sort.
func WeightedQuantiles(values, weights []float64, qs ...float64) ([]float64, error) {
	for _, q := range qs {
		if err := checkQuantile(q); err != nil {
			return nil, err
		}
	}
	c, err := newCDF(values, weights)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(qs))
	for i, q := range qs {
		out[i] = c.at(q)
	}
	return out, nil
}

// uniformQuantile is WeightedQuantile with unit weights over an already
// sorted sample.
func uniformQuantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	k := int(math.Ceil(q*float64(n))) - 1
	k = max(0, min(k, n-1))
	return sorted[k]
}

// finiteSorted drops NaN and infinite values and sorts the rest.
func finiteSorted(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

// Column returns column j of a row-major matrix.
func Column(m [][]float64, j int) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		out[i] = row[j]
	}
	return out
}
