package geodesy

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLAECEFRoundTrip(t *testing.T) {
	for _, lat := range []float64{-89.5, -60, -23.4, 0, 12.25, 45, 58, 74, 89.5} {
		for _, lon := range []float64{-179.9, -90, -3.5, 0, 6, 20, 135, 179.9} {
			for _, h := range []float64{-49000, -100, 0, 250.5, 20200e3 / 1000, 49000} {
				p := LLAToECEF(lat, lon, h)
				got, err := ECEFToLLA(p, 1e-12)
				require.NoError(t, err, "lat=%v lon=%v h=%v", lat, lon, h)
				assert.InDelta(t, lat, got.Lat, 1e-6, "lat for %v,%v,%v", lat, lon, h)
				assert.InDelta(t, lon, got.Lon, 1e-6, "lon for %v,%v,%v", lat, lon, h)
				assert.InDelta(t, h, got.Alt, 1e-3, "alt for %v,%v,%v", lat, lon, h)
			}
		}
	}
}

func TestECEFToLLAKnownPoint(t *testing.T) {
	// Equator / prime meridian on the ellipsoid surface.
	got, err := ECEFToLLA(Vec3{X: SemiMajorAxis}, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, got.Lat, 1e-12)
	assert.InDelta(t, 0, got.Lon, 1e-12)
	assert.InDelta(t, 0, got.Alt, 1e-6)

	// North pole.
	got, err = ECEFToLLA(Vec3{Z: SemiMinorAxis + 100}, 0)
	require.NoError(t, err)
	assert.InDelta(t, 90, got.Lat, 1e-9)
	assert.InDelta(t, 100, got.Alt, 1e-3)
}

func TestNEDRoundTrip(t *testing.T) {
	origin := LLAToECEF(50.8, 4.35, 120)
	for _, p := range []Vec3{
		LLAToECEF(50.9, 4.4, 80),
		LLAToECEF(-10, 100, 20200e3),
		origin,
	} {
		ned, err := ECEFToNED(p, origin)
		require.NoError(t, err)
		back, err := NEDToECEF(ned, origin)
		require.NoError(t, err)
		assert.InDelta(t, p.X, back.X, 1e-6)
		assert.InDelta(t, p.Y, back.Y, 1e-6)
		assert.InDelta(t, p.Z, back.Z, 1e-6)
	}
}

func TestLocalFrameAxes(t *testing.T) {
	f := NewLocalFrame(LLA{Lat: 0, Lon: 0, Alt: 0})

	up := f.ToNED(Vec3{X: SemiMajorAxis + 1000})
	assert.InDelta(t, -1000, up.D, 1e-6)
	assert.InDelta(t, 0, up.N, 1e-6)
	assert.InDelta(t, 0, up.E, 1e-6)

	_, az, el := f.LookAngles(Vec3{X: SemiMajorAxis, Y: 1000})
	assert.InDelta(t, 90, az, 1e-9)
	assert.InDelta(t, 0, el, 1e-9)

	_, az, _ = f.LookAngles(Vec3{X: SemiMajorAxis, Z: 1000})
	assert.InDelta(t, 0, az, 1e-9)
}

func TestNEDToRangeAzEl(t *testing.T) {
	rng, az, el := NEDToRangeAzEl(0, -10, 0)
	assert.InDelta(t, 10, rng, 1e-12)
	assert.InDelta(t, 270, az, 1e-12)
	assert.InDelta(t, 0, el, 1e-12)

	_, _, el = NEDToRangeAzEl(0, 0, -5)
	assert.InDelta(t, 90, el, 1e-12)

	_, az, el = NEDToRangeAzEl(1, 0, 1)
	assert.InDelta(t, 0, az, 1e-12)
	assert.InDelta(t, -45, el, 1e-12)
}

func TestUTMZoneExceptions(t *testing.T) {
	assert.Equal(t, 32, UTMZone(58, 6), "Norway exception")
	assert.Equal(t, 31, UTMZone(58, 2))
	assert.Equal(t, 33, UTMZone(74, 20), "Svalbard 33")
	assert.Equal(t, 31, UTMZone(74, 5))
	assert.Equal(t, 35, UTMZone(80, 25))
	assert.Equal(t, 37, UTMZone(80, 40))
	assert.Equal(t, 38, UTMZone(80, 43))
	assert.Equal(t, 31, UTMZone(50.8, 4.35))
	assert.Equal(t, 1, UTMZone(0, -180))
	assert.Equal(t, 60, UTMZone(0, 179.99))
}

func TestUTMBand(t *testing.T) {
	assert.Equal(t, byte('C'), UTMBand(-80))
	assert.Equal(t, byte('M'), UTMBand(-0.1))
	assert.Equal(t, byte('N'), UTMBand(0))
	assert.Equal(t, byte('U'), UTMBand(50.8))
	assert.Equal(t, byte('X'), UTMBand(83.9))
	assert.Equal(t, byte('Z'), UTMBand(84.5))
	assert.Equal(t, byte('Z'), UTMBand(-81))
}

func TestLLAToUTMKnownPoint(t *testing.T) {
	// A point on the central meridian of zone 31 at the equator.
	u, err := LLAToUTM(0, 3, 12)
	require.NoError(t, err)
	assert.Equal(t, 31, u.Zone)
	assert.InDelta(t, 500000, u.Easting, 1e-6)
	assert.InDelta(t, 0, u.Northing, 1e-6)
	assert.InDelta(t, UTMScaleFactor, u.Scale, 1e-12)
	assert.Equal(t, 12.0, u.Alt)

	n, err := LLAToUTM(58, 6, 0)
	require.NoError(t, err)
	assert.Equal(t, 32, n.Zone)
	assert.Equal(t, "32V", n.String())
	assert.Less(t, n.Easting, 500000.0)
}

func TestUTMRoundTrip(t *testing.T) {
	for _, p := range []LLA{
		{Lat: 50.8, Lon: 4.35, Alt: 100},
		{Lat: 58, Lon: 6, Alt: 0},
		{Lat: 74, Lon: 20, Alt: 10},
		{Lat: -33.9, Lon: 18.4, Alt: 5},
		{Lat: -0.5, Lon: -78.2, Alt: 2800},
		{Lat: 1, Lon: 2.5, Alt: 0},
	} {
		u, err := LLAToUTM(p.Lat, p.Lon, p.Alt)
		require.NoError(t, err)
		back, err := UTMToLLA(u)
		require.NoError(t, err)
		assert.InDelta(t, p.Lat, back.Lat, 1e-6, "lat for %+v", p)
		assert.InDelta(t, p.Lon, back.Lon, 1e-6, "lon for %+v", p)
		assert.Equal(t, p.Alt, back.Alt)
	}
}

func TestLLAToUTMRejectsBadLatitude(t *testing.T) {
	_, err := LLAToUTM(91, 0, 0)
	assert.True(t, errors.Is(err, ErrInvalidLatitude))
}

func TestKeplerEccentric(t *testing.T) {
	for _, ecc := range []float64{0, 0.01, 0.1, 0.3} {
		for _, m := range []float64{0, 0.5, 1, math.Pi / 2, 3} {
			e, err := KeplerEccentric(m, ecc, 0)
			require.NoError(t, err)
			assert.InDelta(t, m, e-ecc*math.Sin(e), 1e-11, "ecc=%v M=%v", ecc, m)
		}
	}
}

func TestKeplerEccentricIterationCap(t *testing.T) {
	_, err := KeplerEccentric(0.1, 0.99, 1e-15)
	assert.True(t, errors.Is(err, ErrNoConvergence))
}

func TestElevationDegrees(t *testing.T) {
	obs := Vec3{X: SemiMajorAxis}
	assert.InDelta(t, 90, ElevationDegrees(obs, Vec3{X: SemiMajorAxis + 1000}), 1e-9)
	assert.InDelta(t, 0, ElevationDegrees(obs, Vec3{X: SemiMajorAxis, Y: 1000}), 1e-9)
}
