package geodesy

import (
	"fmt"
	"math"
)

// KeplerEccentric solves Kepler's equation M = E - ecc*sin(E) for the
// eccentric anomaly E (radians) by fixed-point iteration E <- M + ecc*sin(E),
// starting at E = M. A tol <= 0 selects 1e-12. The iteration converges for
// ecc < 1 and quickly for ecc < 0.5; it stops after 50 steps with
// ErrNoConvergence.
func KeplerEccentric(meanAnomaly, ecc, tol float64) (float64, error) {
	if tol <= 0 {
		tol = 1e-12
	}
	if ecc < 0 || ecc >= 1 {
		return math.NaN(), fmt.Errorf("eccentricity %v outside [0, 1)", ecc)
	}
	e := meanAnomaly
	for i := 0; i < maxKeplerIterations; i++ {
		next := meanAnomaly + ecc*math.Sin(e)
		if math.Abs(next-e) < tol {
			return next, nil
		}
		e = next
	}
	return e, ErrNoConvergence
}
