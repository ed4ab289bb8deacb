package extinction

import (
	"fmt"

	"github.com/leapstack-labs/galsynth/internal/bandpass"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// Service combines a reddening map with the Fitzpatrick (1999) law.
type Service struct {
	reddening ReddeningMap
	filters   *bandpass.Registry
	rv        float64
}

// NewService creates an extinction service.
func NewService(m ReddeningMap, filters *bandpass.Registry) *Service {
	return &Service{reddening: m, filters: filters, rv: DefaultRV}
}

// Lookup returns the extinction in magnitudes at (ra, dec) for a wavelength in Angstrom.
func (s *Service) Lookup(ra, dec, wavelength float64) (float64, error) {
	if !validWavelength(wavelength) {
		return 0, core.Validationf("invalid wavelength %v", wavelength)
	}
	ebv, err := s.reddening.EBV(ra, dec)
	if err != nil {
		return 0, fmt.Errorf("failed to look up reddening: %w", err)
	}
	return Fitzpatrick99(wavelength, s.rv*ebv, s.rv), nil
}

// ForFilter returns the extinction at pos evaluated at the filter's effective wavelength.
func (s *Service) ForFilter(pos core.Position, name string) (float64, error) {
	f, err := s.filters.Get(name)
	if err != nil {
		return 0, err
	}
	return s.Lookup(pos.RA, pos.Dec, f.EffectiveWavelength())
}
