package geodesy

import "math"

// NED is a local tangent-plane vector: north, east, down (metres).
type NED struct {
	N, E, D float64
}

// ENU returns the same vector as east, north, up.
func (v NED) ENU() (e, n, u float64) {
	return v.E, v.N, -v.D
}

// LocalFrame is a tangent plane anchored at an ECEF origin. The rotation is
// built once from the origin's geodetic latitude and longitude.
type LocalFrame struct {
	Origin Vec3
	rot    [3][3]float64 // rows: north, east, down expressed in ECEF
}

// NewLocalFrame anchors a frame at a geodetic position.
func NewLocalFrame(origin LLA) LocalFrame {
	sinp, cosp := math.Sincos(origin.Lat * deg2rad)
	sinl, cosl := math.Sincos(origin.Lon * deg2rad)
	return LocalFrame{
		Origin: LLAToECEF(origin.Lat, origin.Lon, origin.Alt),
		rot: [3][3]float64{
			{-sinp * cosl, -sinp * sinl, cosp},
			{-sinl, cosl, 0},
			{-cosp * cosl, -cosp * sinl, -sinp},
		},
	}
}

// ToNED rotates (p - origin) into the local frame.
func (f LocalFrame) ToNED(p Vec3) NED {
	d := p.Sub(f.Origin)
	r := f.rot
	return NED{
		N: r[0][0]*d.X + r[0][1]*d.Y + r[0][2]*d.Z,
		E: r[1][0]*d.X + r[1][1]*d.Y + r[1][2]*d.Z,
		D: r[2][0]*d.X + r[2][1]*d.Y + r[2][2]*d.Z,
	}
}

// ToECEF is the exact inverse of ToNED: the transposed rotation plus origin.
func (f LocalFrame) ToECEF(v NED) Vec3 {
	r := f.rot
	return Vec3{
		X: r[0][0]*v.N + r[1][0]*v.E + r[2][0]*v.D,
		Y: r[0][1]*v.N + r[1][1]*v.E + r[2][1]*v.D,
		Z: r[0][2]*v.N + r[1][2]*v.E + r[2][2]*v.D,
	}.Add(f.Origin)
}

// LookAngles returns range (m), azimuth and elevation (degrees) of target
// from the frame origin.
func (f LocalFrame) LookAngles(target Vec3) (rng, az, el float64) {
	v := f.ToNED(target)
	return NEDToRangeAzEl(v.N, v.E, v.D)
}

// ECEFToNED expresses p in the tangent plane at origin. The origin's
// latitude and longitude are recovered with ECEFToLLA.
func ECEFToNED(p, origin Vec3) (NED, error) {
	lla, err := ECEFToLLA(origin, 0)
	if err != nil {
		return NED{}, err
	}
	f := NewLocalFrame(lla)
	f.Origin = origin
	return f.ToNED(p), nil
}

// NEDToECEF is the inverse of ECEFToNED.
func NEDToECEF(v NED, origin Vec3) (Vec3, error) {
	lla, err := ECEFToLLA(origin, 0)
	if err != nil {
		return Vec3{}, err
	}
	f := NewLocalFrame(lla)
	f.Origin = origin
	return f.ToECEF(v), nil
}

// NEDToRangeAzEl returns range, azimuth (degrees clockwise from north,
// in [0, 360)) and elevation (degrees).
func NEDToRangeAzEl(n, e, d float64) (rng, az, el float64) {
	rng = math.Sqrt(n*n + e*e + d*d)
	az = math.Atan2(e, n) * rad2deg
	if az < 0 {
		az += 360
	}
	if az >= 360 {
		az -= 360
	}
	el = math.Atan2(-d, math.Hypot(n, e)) * rad2deg
	return rng, az, el
}
