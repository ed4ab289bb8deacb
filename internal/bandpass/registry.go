package bandpass

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/leapstack-labs/galsynth/pkg/core"
)

// DefaultFilterList is the band set used for predicted photometry.
var DefaultFilterList = []string{
	"galex_FUV",
	"galex_NUV",
	"uvot_w2",
	"uvot_m2",
	"uvot_w1",
	"sdss_u0",
	"sdss_g0",
	"sdss_r0",
	"sdss_i0",
	"sdss_z0",
	"twomass_J",
	"twomass_H",
	"twomass_Ks",
	"wise_w1",
	"wise_w2",
	"wise_w3",
	"wise_w4",
}

// gaussianBand approximates a bandpass by its centre and FWHM in Angstrom.
type gaussianBand struct {
	centre float64
	fwhm   float64
}

var builtinBands = map[string]gaussianBand{
	"galex_FUV":  {1528, 269},
	"galex_NUV":  {2271, 616},
	"uvot_w2":    {2030, 657},
	"uvot_m2":    {2231, 498},
	"uvot_w1":    {2634, 693},
	"sdss_u0":    {3551, 599},
	"sdss_g0":    {4686, 1379},
	"sdss_r0":    {6166, 1382},
	"sdss_i0":    {7480, 1535},
	"sdss_z0":    {8932, 1370},
	"twomass_J":  {12350, 1620},
	"twomass_H":  {16620, 2510},
	"twomass_Ks": {21590, 2620},
	"wise_w1":    {33526, 6626},
	"wise_w2":    {46028, 10423},
	"wise_w3":    {115608, 55069},
	"wise_w4":    {220883, 41013},
}

// gaussianSamples is the number of points per built-in curve.
const gaussianSamples = 241

// Registry resolves filter names to transmission curves.
// Curves found as <dir>/<name>.par take precedence over the built-in approximations.
type Registry struct {
	dir     string
	mu      sync.RWMutex
	filters map[string]*Filter
}

// Option configures a Registry.
type Option func(*Registry)

// WithDir sets the directory searched for measured transmission curves.
func WithDir(dir string) Option {
	return func(r *Registry) { r.dir = dir }
}

// NewRegistry creates a registry backed by the built-in bands.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{filters: make(map[string]*Filter)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Has reports whether name is a recognized bandpass.
func (r *Registry) Has(name string) bool {
	if _, ok := builtinBands[name]; ok {
		return true
	}
	r.mu.RLock()
	_, ok := r.filters[name]
	r.mu.RUnlock()
	if ok {
		return true
	}
	if r.dir == "" {
		return false
	}
	_, err := os.Stat(r.curvePath(name))
	return err == nil
}

// Get returns the filter for name, loading it on first use.
func (r *Registry) Get(name string) (*Filter, error) {
	r.mu.RLock()
	f, ok := r.filters[name]
	r.mu.RUnlock()
	if ok {
		return f, nil
	}

	f, err := r.load(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.filters[name] = f
	r.mu.Unlock()
	return f, nil
}

// GetAll resolves every name in order.
func (r *Registry) GetAll(names []string) ([]*Filter, error) {
	out := make([]*Filter, len(names))
	for i, name := range names {
		f, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// Names lists the built-in band names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(builtinBands))
	for name := range builtinBands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) curvePath(name string) string {
	return filepath.Join(r.dir, name+".par")
}

func (r *Registry) load(name string) (*Filter, error) {
	if r.dir != "" {
		file, err := os.Open(r.curvePath(name))
		switch {
		case err == nil:
			defer file.Close()
			return ParseCurve(name, file)
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to open filter curve %s: %w", name, err)
		}
	}

	band, ok := builtinBands[name]
	if !ok {
		return nil, core.Validationf("unknown bandpass %q", name)
	}
	return band.filter(name)
}

func (b gaussianBand) filter(name string) (*Filter, error) {
	sigma := b.fwhm / (2 * math.Sqrt(2*math.Ln2))
	lo := b.centre - 4*sigma
	step := 8 * sigma / float64(gaussianSamples-1)

	wave := make([]float64, gaussianSamples)
	trans := make([]float64, gaussianSamples)
	for i := range wave {
		w := lo + float64(i)*step
		d := (w - b.centre) / sigma
		wave[i] = w
		trans[i] = math.Exp(-0.5 * d * d)
	}
	return NewFilter(name, wave, trans)
}

// ParseCurve reads a transmission curve with one "wavelength transmission" pair per line.
// Comment lines and rows with a leading keyword column are accepted; the last two
// numeric fields of each row are used.
func ParseCurve(name string, r io.Reader) (*Filter, error) {
	var wave, trans []float64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var nums []float64
		for _, field := range strings.Fields(line) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				continue
			}
			nums = append(nums, v)
		}
		if len(nums) < 2 {
			continue
		}
		wave = append(wave, nums[len(nums)-2])
		trans = append(trans, nums[len(nums)-1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read filter curve %s: %w", name, err)
	}
	return NewFilter(name, wave, trans)
}
