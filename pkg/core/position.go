package core

import "math"

// Position is an ICRS sky position in degrees.
type Position struct {
	RA  float64
	Dec float64
}

// NewPosition validates ra in [0, 360] and dec in [-90, 90].
func NewPosition(ra, dec float64) (Position, error) {
	if math.IsNaN(ra) || ra < 0 || ra > 360 {
		return Position{}, Validationf("ra %v outside [0, 360]", ra)
	}
	if math.IsNaN(dec) || dec < -90 || dec > 90 {
		return Position{}, Validationf("dec %v outside [-90, 90]", dec)
	}
	return Position{RA: ra, Dec: dec}, nil
}

// ArcsecToDeg converts arcseconds to degrees.
func ArcsecToDeg(arcsec float64) float64 {
	return arcsec / 3600
}
