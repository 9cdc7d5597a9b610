package geodesy

import (
	"fmt"
	"math"
)

// UTMScaleFactor is the central-meridian scale factor k0.
const UTMScaleFactor = 0.9996

const (
	falseEasting       = 500000.0
	falseNorthingSouth = 10000000.0
	bandLetters        = "CDEFGHJKLMNPQRSTUVWX"
)

// UTM is a Transverse Mercator projection of a geodetic point.
type UTM struct {
	Easting  float64
	Northing float64
	Alt      float64
	Zone     int
	Band     byte

	// Scale is the point scale factor k at the projected point.
	Scale float64

	// Southern marks northings that carry the 10 000 km false northing.
	Southern bool
}

// String renders the zone designator, e.g. "32V".
func (u UTM) String() string {
	return fmt.Sprintf("%d%c", u.Zone, u.Band)
}

// UTMZone returns the zone number for a point, honouring the Norway and
// Svalbard exceptions.
func UTMZone(lat, lon float64) int {
	lon = normaliseLon(lon)
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone > 60 {
		zone = 60
	}

	if lat >= 56 && lat < 64 && lon >= 3 && lon < 12 {
		return 32
	}
	if lat >= 72 && lat < 84 {
		switch {
		case lon >= 0 && lon < 9:
			return 31
		case lon >= 9 && lon < 21:
			return 33
		case lon >= 21 && lon < 33:
			return 35
		case lon >= 33 && lon < 42:
			return 37
		}
	}
	return zone
}

// UTMBand returns the latitude band letter C..X (I and O skipped), or 'Z'
// outside [-80, 84].
func UTMBand(lat float64) byte {
	if lat < -80 || lat > 84 {
		return 'Z'
	}
	idx := int(math.Floor((lat + 80) / 8))
	if idx > len(bandLetters)-1 {
		idx = len(bandLetters) - 1
	}
	return bandLetters[idx]
}

// LLAToUTM projects a geodetic point into its own UTM zone.
func LLAToUTM(lat, lon, alt float64) (UTM, error) {
	return LLAToUTMZone(lat, lon, alt, UTMZone(lat, lon))
}

// LLAToUTMZone projects a geodetic point into the given zone, which lets a
// position series share the zone of its reference station.
func LLAToUTMZone(lat, lon, alt float64, zone int) (UTM, error) {
	if lat < -90 || lat > 90 || math.IsNaN(lat) {
		return UTM{}, fmt.Errorf("%w: %v", ErrInvalidLatitude, lat)
	}
	if zone < 1 || zone > 60 {
		return UTM{}, fmt.Errorf("utm zone %d out of range", zone)
	}

	e2 := EccentricitySq
	ep2 := e2 / (1 - e2)
	phi := lat * deg2rad
	dl := normaliseLon(lon-centralMeridian(zone)) * deg2rad

	sinp, cosp := math.Sincos(phi)
	tanp := math.Tan(phi)
	n := primeVertical(sinp)
	t := tanp * tanp
	c := ep2 * cosp * cosp
	a := cosp * dl
	m := meridianArc(phi)

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	x := UTMScaleFactor*n*(a+(1-t+c)*a3/6+(5-18*t+t*t+72*c-58*ep2)*a5/120) + falseEasting
	y := UTMScaleFactor * (m + n*tanp*(a2/2+(5-t+9*c+4*c*c)*a4/24+(61-58*t+t*t+600*c-330*ep2)*a6/720))
	if lat < 0 {
		y += falseNorthingSouth
	}
	k := UTMScaleFactor * (1 + (1+c)*a2/2 + (5-4*t+42*c+13*c*c-28*ep2)*a4/24 + (61-148*t+16*t*t)*a6/720)

	return UTM{
		Easting:  x,
		Northing: y,
		Alt:      alt,
		Zone:     zone,
		Band:     UTMBand(lat),
		Scale:    k,
		Southern: lat < 0,
	}, nil
}

// UTMToLLA inverts LLAToUTM within the same zone.
func UTMToLLA(u UTM) (LLA, error) {
	if u.Zone < 1 || u.Zone > 60 {
		return LLA{}, fmt.Errorf("utm zone %d out of range", u.Zone)
	}
	e2 := EccentricitySq
	ep2 := e2 / (1 - e2)
	sq := math.Sqrt(1 - e2)
	e1 := (1 - sq) / (1 + sq)

	northing := u.Northing
	if u.Southern {
		northing -= falseNorthingSouth
	}
	m := northing / UTMScaleFactor
	mu := m / (SemiMajorAxis * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin1, cos1 := math.Sincos(phi1)
	tan1 := math.Tan(phi1)
	c1 := ep2 * cos1 * cos1
	t1 := tan1 * tan1
	n1 := primeVertical(sin1)
	r1 := SemiMajorAxis * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
	d := (u.Easting - falseEasting) / (n1 * UTMScaleFactor)

	d2 := d * d
	d3 := d2 * d
	d4 := d3 * d
	d5 := d4 * d
	d6 := d5 * d

	phi := phi1 - (n1*tan1/r1)*(d2/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*d4/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*d6/720)
	lam := (d - (1+2*t1+c1)*d3/6 + (5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*d5/120) / cos1

	return LLA{
		Lat: phi * rad2deg,
		Lon: normaliseLon(centralMeridian(u.Zone) + lam*rad2deg),
		Alt: u.Alt,
	}, nil
}

func centralMeridian(zone int) float64 {
	return float64(zone-1)*6 - 180 + 3
}

func meridianArc(phi float64) float64 {
	e2 := EccentricitySq
	e4 := e2 * e2
	e6 := e4 * e2
	return SemiMajorAxis * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

// normaliseLon maps a longitude into [-180, 180).
func normaliseLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
