package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/galsynth/internal/photometry"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// Strategy is one named step of the acquisition waterfall. It returns the
// bands it found, or an error wrapping core.ErrNoData when it has nothing.
type Strategy interface {
	Name() string
	Bands(ctx context.Context, pos core.Position, radiusArcsec float64) ([]Band, error)
}

type firstOf struct {
	name       string
	strategies []Strategy
}

// FirstOf tries strategies in order and returns the first result that is not
// core.ErrNoData. Any other error stops the chain.
func FirstOf(name string, strategies ...Strategy) Strategy {
	return &firstOf{name: name, strategies: strategies}
}

func (f *firstOf) Name() string { return f.name }

func (f *firstOf) Bands(ctx context.Context, pos core.Position, radiusArcsec float64) ([]Band, error) {
	for _, s := range f.strategies {
		bands, err := s.Bands(ctx, pos, radiusArcsec)
		if errors.Is(err, core.ErrNoData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return bands, nil
	}
	return nil, fmt.Errorf("%s: %w", f.name, core.ErrNoData)
}

// ExtinctionLookup returns the Galactic extinction for a bandpass at a position.
type ExtinctionLookup interface {
	ForFilter(pos core.Position, filterName string) (float64, error)
}

// Acquisition runs the waterfall and turns bands into Photometry.
type Acquisition struct {
	plan       []Strategy
	extinction ExtinctionLookup
	filters    photometry.FilterSet
	logger     *slog.Logger
}

// NewAcquisition creates an acquisition over plan.
func NewAcquisition(plan []Strategy, ext ExtinctionLookup, filters photometry.FilterSet, logger *slog.Logger) *Acquisition {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Acquisition{plan: plan, extinction: ext, filters: filters, logger: logger}
}

// Acquire queries every step of the plan in order. Steps with no data are
// skipped; an empty result is valid. Bands are corrected with the extinction
// at the query position.
func (a *Acquisition) Acquire(ctx context.Context, pos core.Position, radiusArcsec float64) ([]photometry.Photometry, error) {
	out := make([]photometry.Photometry, 0, 16)
	for _, step := range a.plan {
		bands, err := step.Bands(ctx, pos, radiusArcsec)
		if errors.Is(err, core.ErrNoData) {
			a.logger.Debug("no bands from step", slog.String("step", step.Name()))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("acquisition step %s: %w", step.Name(), err)
		}

		for _, b := range bands {
			p, err := a.toPhotometry(pos, b)
			if err != nil {
				return nil, fmt.Errorf("acquisition step %s: %w", step.Name(), err)
			}
			out = append(out, p)
		}
	}

	a.logger.Info("photometry acquired", slog.Int("bands", len(out)))
	return out, nil
}

func (a *Acquisition) toPhotometry(pos core.Position, b Band) (photometry.Photometry, error) {
	ext, err := a.extinction.ForFilter(pos, b.Filter)
	if err != nil {
		return photometry.Photometry{}, fmt.Errorf("failed to compute extinction for %s: %w", b.Filter, err)
	}
	var opts []photometry.Option
	if b.VegaMag != nil {
		opts = append(opts, photometry.WithVegaMag(*b.VegaMag))
	}
	if b.SystematicError > 0 {
		opts = append(opts, photometry.WithSystematicError(b.SystematicError))
	}
	return photometry.New(a.filters, b.Filter, b.Mag, ext, b.Err, opts...)
}
