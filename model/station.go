package model

import (
	"fmt"

	"github.com/signalsfoundry/gnss-arcs/geodesy"
)

// GroundStation is the receiver marker with its ECEF and UTM projections
// cached. It is built once per run and not modified afterwards.
type GroundStation struct {
	Name    string
	LLA     geodesy.LLA
	ECEF    geodesy.Vec3
	UTM     geodesy.UTM
	MaskDeg float64

	frame geodesy.LocalFrame
}

// NewGroundStation validates the marker and derives its projections.
func NewGroundStation(name string, lat, lon, height, maskDeg float64) (GroundStation, error) {
	if lat < -90 || lat > 90 {
		return GroundStation{}, fmt.Errorf("station %q: latitude %v out of range", name, lat)
	}
	if lon < -180 || lon > 360 {
		return GroundStation{}, fmt.Errorf("station %q: longitude %v out of range", name, lon)
	}
	if maskDeg < 0 || maskDeg >= 90 {
		return GroundStation{}, fmt.Errorf("station %q: elevation mask %v out of range", name, maskDeg)
	}
	lla := geodesy.LLA{Lat: lat, Lon: lon, Alt: height}
	utm, err := geodesy.LLAToUTM(lat, lon, height)
	if err != nil {
		return GroundStation{}, fmt.Errorf("station %q: %w", name, err)
	}
	frame := geodesy.NewLocalFrame(lla)
	return GroundStation{
		Name:    name,
		LLA:     lla,
		ECEF:    frame.Origin,
		UTM:     utm,
		MaskDeg: maskDeg,
		frame:   frame,
	}, nil
}

// Frame returns the station's local tangent frame.
func (g GroundStation) Frame() geodesy.LocalFrame { return g.frame }

// LookAngles returns range (m), azimuth and elevation (degrees) of an ECEF
// position seen from the station.
func (g GroundStation) LookAngles(target geodesy.Vec3) (rng, az, el float64) {
	return g.frame.LookAngles(target)
}
