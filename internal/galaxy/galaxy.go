// Package galaxy holds the source aggregate: identity, sky position, optional
// redshift and the per-source artifact layout.
package galaxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/leapstack-labs/galsynth/internal/photometry"
	"github.com/leapstack-labs/galsynth/pkg/core"
	"github.com/soniakeys/unit"
)

// Galaxy is an immutable source identity.
type Galaxy struct {
	sourceName string
	position   core.Position
	redshift   *float64
}

// New validates the position and redshift. An empty name is replaced by the
// J2000 designation of the position.
func New(name string, ra, dec float64, redshift *float64) (*Galaxy, error) {
	pos, err := core.NewPosition(ra, dec)
	if err != nil {
		return nil, err
	}
	if redshift != nil {
		z := *redshift
		if math.IsNaN(z) || math.IsInf(z, 0) || z < 0 {
			return nil, core.Validationf("redshift %v must be a finite value >= 0", z)
		}
		redshift = &z
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = J2000Name(pos)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, core.Validationf("source name %q cannot be used as a directory name", name)
	}

	return &Galaxy{sourceName: name, position: pos, redshift: redshift}, nil
}

// SourceName returns the provided or derived source name.
func (g *Galaxy) SourceName() string { return g.sourceName }

// Position returns the sky position.
func (g *Galaxy) Position() core.Position { return g.position }

// Redshift returns the known redshift, if any.
func (g *Galaxy) Redshift() (float64, bool) {
	if g.redshift == nil {
		return 0, false
	}
	return *g.redshift, true
}

// RedshiftPtr returns the redshift as a nullable value.
func (g *Galaxy) RedshiftPtr() *float64 {
	if g.redshift == nil {
		return nil
	}
	z := *g.redshift
	return &z
}

// LogValue implements slog.LogValuer.
func (g *Galaxy) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("name", g.sourceName),
		slog.Float64("ra", g.position.RA),
		slog.Float64("dec", g.position.Dec),
	}
	if g.redshift != nil {
		attrs = append(attrs, slog.Float64("z", *g.redshift))
	}
	return slog.GroupValue(attrs...)
}

// J2000Name formats a position as J{hhmmss.ss}{+ddmmss.ss}.
// Seconds are rounded to two decimals, carrying into minutes and degrees.
// A declination that rounds to zero is always written with "+", even when
// the value is a tiny negative number.
func J2000Name(pos core.Position) string {
	hours := unit.RAFromDeg(pos.RA).Hour()
	cs := int64(math.Round(hours * 3600 * 100))
	cs %= 24 * 3600 * 100
	h := cs / 360000
	m := (cs / 6000) % 60
	s := cs % 6000

	deg := unit.AngleFromDeg(pos.Dec).Deg()
	sign := "+"
	if deg < 0 {
		sign = "-"
	}
	dcs := int64(math.Round(math.Abs(deg) * 3600 * 100))
	d := dcs / 360000
	dm := (dcs / 6000) % 60
	ds := dcs % 6000
	if dcs == 0 {
		sign = "+"
	}

	return fmt.Sprintf("J%02d%02d%02d.%02d%s%02d%02d%02d.%02d",
		h, m, s/100, s%100,
		sign, d, dm, ds/100, ds%100)
}

// Acquirer fetches fresh photometry around a position.
type Acquirer interface {
	Acquire(ctx context.Context, pos core.Position, radiusArcsec float64) ([]photometry.Photometry, error)
}

// PhotometryStore persists photometry lists.
type PhotometryStore interface {
	Load(path string) ([]photometry.Photometry, error)
	Store(path string, list []photometry.Photometry) error
}

// PhotometrySource bundles what GetPhotometry needs.
type PhotometrySource struct {
	Acquirer     Acquirer
	Cache        PhotometryStore
	RadiusArcsec float64
	Logger       *slog.Logger
}

// DefaultRadiusArcsec is the catalog cone-search radius.
const DefaultRadiusArcsec = 3.0

// GetPhotometry returns the cached list when useCache is set and the cache
// exists; otherwise it acquires fresh photometry and writes it to the cache.
func (g *Galaxy) GetPhotometry(ctx context.Context, paths Paths, src PhotometrySource, useCache bool) ([]photometry.Photometry, error) {
	logger := src.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	path := paths.Photometry()
	if useCache {
		list, err := src.Cache.Load(path)
		switch {
		case err == nil:
			return list, nil
		case !errors.Is(err, core.ErrCacheMiss):
			return nil, err
		}
		logger.Debug("no cached photometry", slog.String("path", path))
	}

	radius := src.RadiusArcsec
	if radius <= 0 {
		radius = DefaultRadiusArcsec
	}

	list, err := src.Acquirer.Acquire(ctx, g.position, radius)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire photometry for %s: %w", g.sourceName, err)
	}
	if err := paths.Ensure(); err != nil {
		return nil, err
	}
	if err := src.Cache.Store(path, list); err != nil {
		return nil, err
	}
	return list, nil
}
