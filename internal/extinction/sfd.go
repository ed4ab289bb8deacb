package extinction

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/astrogo/fitsio"
)

// ReddeningMap returns the colour excess E(B-V) at an ICRS position in degrees.
type ReddeningMap interface {
	EBV(ra, dec float64) (float64, error)
}

// FixedReddening is a ReddeningMap with the same E(B-V) everywhere.
type FixedReddening float64

// EBV implements ReddeningMap.
func (f FixedReddening) EBV(_, _ float64) (float64, error) {
	return float64(f), nil
}

// DefaultSFDScaling rescales SFD98 to the Schlafly & Finkbeiner (2011) calibration.
const DefaultSFDScaling = 0.86

// SFD map file names inside the data directory.
const (
	sfdNorthFile = "SFD_dust_4096_ngp.fits"
	sfdSouthFile = "SFD_dust_4096_sgp.fits"
)

// SFDMap reads the Schlegel, Finkbeiner & Davis (1998) polar projections.
// Files are loaded lazily on the first lookup.
type SFDMap struct {
	dir     string
	scaling float64

	once  sync.Once
	north *hemisphere
	south *hemisphere
	err   error
}

// SFDOption configures an SFDMap.
type SFDOption func(*SFDMap)

// WithScaling overrides the E(B-V) calibration factor.
func WithScaling(scaling float64) SFDOption {
	return func(m *SFDMap) { m.scaling = scaling }
}

// NewSFDMap creates a map reading FITS files from dir.
func NewSFDMap(dir string, opts ...SFDOption) *SFDMap {
	m := &SFDMap{dir: dir, scaling: DefaultSFDScaling}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EBV implements ReddeningMap.
func (m *SFDMap) EBV(ra, dec float64) (float64, error) {
	m.once.Do(func() {
		m.north, m.err = loadHemisphere(filepath.Join(m.dir, sfdNorthFile), 1)
		if m.err != nil {
			return
		}
		m.south, m.err = loadHemisphere(filepath.Join(m.dir, sfdSouthFile), -1)
	})
	if m.err != nil {
		return 0, m.err
	}

	l, b := EquatorialToGalactic(ra, dec)
	h := m.north
	if b < 0 {
		h = m.south
	}
	return m.scaling * h.value(l, b), nil
}

// hemisphere is one Lambert zenithal equal-area projection of the dust map.
type hemisphere struct {
	data    []float32
	nx, ny  int
	crpix1  float64
	crpix2  float64
	lamScal float64
	n       float64
}

func loadHemisphere(path string, n float64) (*hemisphere, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dust map: %w", err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dust map %s: %w", path, err)
	}
	defer f.Close()

	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("dust map %s: primary HDU is not an image", path)
	}
	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) != 2 {
		return nil, fmt.Errorf("dust map %s: expected 2 axes, got %d", path, len(axes))
	}

	h := &hemisphere{nx: axes[0], ny: axes[1], n: n}
	for key, dst := range map[string]*float64{
		"CRPIX1":   &h.crpix1,
		"CRPIX2":   &h.crpix2,
		"LAM_SCAL": &h.lamScal,
	} {
		card := hdr.Get(key)
		if card == nil {
			return nil, fmt.Errorf("dust map %s: missing %s", path, key)
		}
		v, err := cardFloat(card.Value)
		if err != nil {
			return nil, fmt.Errorf("dust map %s: %s: %w", path, key, err)
		}
		*dst = v
	}

	if err := img.Read(&h.data); err != nil {
		return nil, fmt.Errorf("failed to read dust map pixels: %w", err)
	}
	if len(h.data) != h.nx*h.ny {
		return nil, fmt.Errorf("dust map %s: %d pixels for %dx%d image", path, len(h.data), h.nx, h.ny)
	}
	return h, nil
}

func cardFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("unexpected header value %T", v)
	}
}

// pixel projects galactic (l, b) in degrees to zero-based pixel coordinates.
func (h *hemisphere) pixel(l, b float64) (x, y float64) {
	lr := l * math.Pi / 180
	br := b * math.Pi / 180
	r := h.lamScal * math.Sqrt(1-h.n*math.Sin(br))
	x = h.crpix1 - 1 + r*math.Cos(lr)
	y = h.crpix2 - 1 - h.n*r*math.Sin(lr)
	return x, y
}

// value bilinearly interpolates the map at (l, b).
func (h *hemisphere) value(l, b float64) float64 {
	x, y := h.pixel(l, b)

	x0 := clampInt(int(math.Floor(x)), 0, h.nx-1)
	y0 := clampInt(int(math.Floor(y)), 0, h.ny-1)
	x1 := clampInt(x0+1, 0, h.nx-1)
	y1 := clampInt(y0+1, 0, h.ny-1)
	dx := math.Min(math.Max(x-float64(x0), 0), 1)
	dy := math.Min(math.Max(y-float64(y0), 0), 1)

	at := func(i, j int) float64 { return float64(h.data[j*h.nx+i]) }
	return at(x0, y0)*(1-dx)*(1-dy) +
		at(x1, y0)*dx*(1-dy) +
		at(x0, y1)*(1-dx)*dy +
		at(x1, y1)*dx*dy
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ICRS to galactic rotation matrix.
var icrsToGalactic = [3][3]float64{
	{-0.0548755604162154, -0.8734370902348850, -0.4838350155487132},
	{0.4941094278755837, -0.4448296299600112, 0.7469822444972189},
	{-0.8676661490190047, -0.1980763734312015, 0.4559837761750669},
}

// EquatorialToGalactic converts ICRS (ra, dec) to galactic (l, b), all in degrees.
func EquatorialToGalactic(ra, dec float64) (l, b float64) {
	a := ra * math.Pi / 180
	d := dec * math.Pi / 180
	v := [3]float64{math.Cos(d) * math.Cos(a), math.Cos(d) * math.Sin(a), math.Sin(d)}

	var g [3]float64
	for i := range g {
		g[i] = icrsToGalactic[i][0]*v[0] + icrsToGalactic[i][1]*v[1] + icrsToGalactic[i][2]*v[2]
	}

	l = math.Atan2(g[1], g[0]) * 180 / math.Pi
	if l < 0 {
		l += 360
	}
	b = math.Asin(math.Max(-1, math.Min(1, g[2]))) * 180 / math.Pi
	return l, b
}
