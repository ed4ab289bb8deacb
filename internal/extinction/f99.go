// Package extinction computes Galactic line-of-sight extinction from a
// reddening map and the Fitzpatrick (1999) extinction law.
package extinction

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/interp"
)

// DefaultRV is the total-to-selective extinction ratio of the diffuse ISM.
const DefaultRV = 3.1

// UV parameterisation constants.
const (
	f99X0    = 4.596
	f99Gamma = 0.99
	f99C3    = 3.23
	f99C4    = 0.41
	f99XUV   = 1e4 / 2700.0
)

// Fitzpatrick99 returns the extinction in magnitudes at wavelengthAA for a
// total V-band extinction av and ratio rv.
func Fitzpatrick99(wavelengthAA, av, rv float64) float64 {
	x := 1e4 / wavelengthAA
	var k float64
	if x >= f99XUV {
		k = f99UV(x, rv)
	} else {
		k = f99Spline(rv).Predict(x)
	}
	return av * (1 + k/rv)
}

// f99UV is E(x-V)/E(B-V) in the ultraviolet.
func f99UV(x, rv float64) float64 {
	c2 := -0.824 + 4.717/rv
	c1 := 2.030 - 3.007*c2

	x2 := x * x
	d := x2 / ((x2-f99X0*f99X0)*(x2-f99X0*f99X0) + x2*f99Gamma*f99Gamma)

	var f float64
	if x >= 5.9 {
		y := x - 5.9
		f = 0.5392*y*y + 0.05644*y*y*y
	}
	return c1 + c2*x + f99C3*d + f99C4*f
}

// splines caches fitted optical/IR splines by rv.
var splines sync.Map

// f99Spline fits the optical/IR anchor points for rv.
func f99Spline(rv float64) *interp.NaturalCubic {
	if s, ok := splines.Load(rv); ok {
		return s.(*interp.NaturalCubic)
	}
	xs := []float64{
		0,
		1e4 / 26500.0,
		1e4 / 12200.0,
		1e4 / 6000.0,
		1e4 / 5470.0,
		1e4 / 4670.0,
		1e4 / 4110.0,
		1e4 / 2700.0,
		1e4 / 2600.0,
	}
	rv2 := rv * rv
	ks := []float64{
		-rv,
		0.26469*rv/3.1 - rv,
		0.82925*rv/3.1 - rv,
		-0.422809 + 1.00270*rv + 2.13572e-4*rv2 - rv,
		-5.13540e-2 + 1.00216*rv - 7.35778e-5*rv2 - rv,
		0.700127 + 1.00184*rv - 3.32598e-5*rv2 - rv,
		1.19456 + 1.01707*rv - 5.46959e-3*rv2 + 7.97809e-4*rv2*rv - 4.45636e-5*rv2*rv2 - rv,
		f99UV(xs[7], rv),
		f99UV(xs[8], rv),
	}

	var spline interp.NaturalCubic
	if err := spline.Fit(xs, ks); err != nil {
		// knots are fixed and strictly increasing
		panic(err)
	}
	splines.Store(rv, &spline)
	return &spline
}

// validWavelength reports whether w is a usable positive wavelength.
func validWavelength(w float64) bool {
	return w > 0 && !math.IsNaN(w) && !math.IsInf(w, 0)
}
