// Package geodesy holds the WGS-84 conversion kernel: geodetic <-> ECEF,
// local NED frames, range/azimuth/elevation, UTM and the Kepler solver.
//
// Angles are in degrees unless a function name or comment says radians.
// Distances are metres.
package geodesy

import (
	"errors"
	"math"
)

// WGS-84 and physical constants.
const (
	SemiMajorAxis = 6378137.0
	SemiMinorAxis = 6356752.3142
	Flattening    = (SemiMajorAxis - SemiMinorAxis) / SemiMajorAxis

	SpeedOfLight      = 299792458.0     // m/s
	EarthRotationRate = 7.2921151467e-5 // rad/s
	GravitationalParm = 3.986004418e14  // m^3/s^2
)

// Eccentricity and EccentricitySq are derived from Flattening.
var (
	EccentricitySq = Flattening * (2 - Flattening)
	Eccentricity   = math.Sqrt(EccentricitySq)
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi

	maxLLAIterations    = 20
	maxKeplerIterations = 50
)

var (
	// ErrNoConvergence is returned when a fixed-point iteration hits its cap.
	ErrNoConvergence = errors.New("iteration did not converge")
	// ErrInvalidLatitude is returned for latitudes outside [-90, 90].
	ErrInvalidLatitude = errors.New("latitude out of range")
)

// Vec3 is an ECEF vector in metres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// LLA is a geodetic position: latitude and longitude in degrees, ellipsoidal
// height in metres.
type LLA struct {
	Lat, Lon, Alt float64
}

// LLAToECEF converts geodetic coordinates (degrees, metres) to ECEF using the
// prime-vertical radius N = a / sqrt(1 - e^2 sin^2 lat).
func LLAToECEF(lat, lon, alt float64) Vec3 {
	phi := lat * deg2rad
	lam := lon * deg2rad
	sinp, cosp := math.Sincos(phi)
	sinl, cosl := math.Sincos(lam)
	n := primeVertical(sinp)

	return Vec3{
		X: (n + alt) * cosp * cosl,
		Y: (n + alt) * cosp * sinl,
		Z: (n*(1-EccentricitySq) + alt) * sinp,
	}
}

// ECEFToLLA converts ECEF to geodetic coordinates by fixed-point iteration on
// latitude, stopping once successive latitudes (radians) differ by less than
// tol. A tol <= 0 selects 1e-9. After 20 iterations it gives up with
// ErrNoConvergence.
func ECEFToLLA(p Vec3, tol float64) (LLA, error) {
	if tol <= 0 {
		tol = 1e-9
	}
	rho := math.Hypot(p.X, p.Y)
	lon := math.Atan2(p.Y, p.X)

	n := SemiMajorAxis
	phi := 0.0
	for i := 0; i < maxLLAIterations; i++ {
		prev := phi
		phi = math.Atan2(p.Z+EccentricitySq*n*math.Sin(phi), rho)
		n = primeVertical(math.Sin(phi))
		if math.Abs(phi-prev) < tol {
			return LLA{Lat: phi * rad2deg, Lon: lon * rad2deg, Alt: heightAbove(rho, p.Z, phi, n)}, nil
		}
	}
	return LLA{Lat: math.NaN(), Lon: lon * rad2deg, Alt: math.NaN()}, ErrNoConvergence
}

// heightAbove returns the ellipsoidal height; near the poles cos(phi)
// vanishes and the z-based form is used instead.
func heightAbove(rho, z, phi, n float64) float64 {
	sinp, cosp := math.Sincos(phi)
	if math.Abs(cosp) > 1e-10 {
		return rho/cosp - n
	}
	return z/sinp - n*(1-EccentricitySq)
}

func primeVertical(sinp float64) float64 {
	return SemiMajorAxis / math.Sqrt(1-EccentricitySq*sinp*sinp)
}

// ElevationDegrees returns the geocentric elevation of target seen from
// observer: the angle between the line of sight and the observer's radius
// vector, measured from the plane normal to it.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	r := observer.Norm()
	if vNorm == 0 || r == 0 {
		return 90
	}
	cosGamma := v.Dot(observer) / (vNorm * r)
	cosGamma = math.Max(-1, math.Min(1, cosGamma))
	return 90.0 - math.Acos(cosGamma)*rad2deg
}
