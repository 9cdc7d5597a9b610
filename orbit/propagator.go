package orbit

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/gnss-arcs/geodesy"
)

const kmToM = 1000.0

// Propagator evaluates one element set with SGP4.
type Propagator struct {
	tle TLE
	sat satellite.Satellite
}

// NewPropagator initialises SGP4 for an element set returned by ParseTLE.
func NewPropagator(tle TLE) (*Propagator, error) {
	if tle.Line1 == "" || tle.Line2 == "" {
		return nil, fmt.Errorf("%w: missing element lines", ErrInvalidTLE)
	}
	sat := satellite.TLEToSat(tle.Line1, tle.Line2, satellite.GravityWGS72)
	return &Propagator{tle: tle, sat: sat}, nil
}

// TLE returns the element set being propagated.
func (p *Propagator) TLE() TLE { return p.tle }

// ECEF returns the satellite position in metres at t. go-satellite resolves
// time to whole seconds and works in kilometres.
func (p *Propagator) ECEF(t time.Time) (geodesy.Vec3, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	if math.IsNaN(posECI.X) || math.IsNaN(posECI.Y) || math.IsNaN(posECI.Z) {
		return geodesy.Vec3{}, fmt.Errorf("%w: NORAD %d at %s", ErrPropagation, p.tle.NORAD, t.Format(time.RFC3339))
	}
	if posECI.X == 0 && posECI.Y == 0 && posECI.Z == 0 {
		return geodesy.Vec3{}, fmt.Errorf("%w: NORAD %d at %s: zero position", ErrPropagation, p.tle.NORAD, t.Format(time.RFC3339))
	}

	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	return geodesy.Vec3{
		X: posECEF.X * kmToM,
		Y: posECEF.Y * kmToM,
		Z: posECEF.Z * kmToM,
	}, nil
}
