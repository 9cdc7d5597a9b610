// Package model holds the data types shared by the arc pipeline: satellite
// identifiers, observation rows, observed and predicted arcs, and the ground
// station.
package model

import "fmt"

// Constellation identifies a GNSS system by its RINEX letter.
type Constellation byte

const (
	Galileo Constellation = 'E'
	GPS     Constellation = 'G'
	GLONASS Constellation = 'R'
	BeiDou  Constellation = 'C'
	SBAS    Constellation = 'S'
	QZSS    Constellation = 'J'
	IRNSS   Constellation = 'I'
)

type constellationInfo struct {
	name string
	// carrier of the primary open-service signal, Hz
	nominalFrequency float64
	// NORAD catalogue objects carry these prefixes in CelesTrak group files
	noradPrefix string
}

var constellations = map[Constellation]constellationInfo{
	Galileo: {name: "Galileo", nominalFrequency: 1575.42e6, noradPrefix: "GSAT"},
	GPS:     {name: "GPS", nominalFrequency: 1575.42e6, noradPrefix: "GPS"},
	GLONASS: {name: "GLONASS", nominalFrequency: 1602.0e6, noradPrefix: "COSMOS"},
	BeiDou:  {name: "BeiDou", nominalFrequency: 1561.098e6, noradPrefix: "BEIDOU"},
	SBAS:    {name: "SBAS", nominalFrequency: 1575.42e6, noradPrefix: ""},
	QZSS:    {name: "QZSS", nominalFrequency: 1575.42e6, noradPrefix: "QZS"},
	IRNSS:   {name: "IRNSS", nominalFrequency: 1176.45e6, noradPrefix: "IRNSS"},
}

// AllConstellations lists the supported systems in a stable order.
var AllConstellations = []Constellation{Galileo, GPS, GLONASS, BeiDou, SBAS, QZSS, IRNSS}

// ParseConstellation accepts a single RINEX system letter.
func ParseConstellation(s string) (Constellation, error) {
	if len(s) != 1 {
		return 0, fmt.Errorf("unknown constellation %q", s)
	}
	c := Constellation(s[0])
	if !c.Valid() {
		return 0, fmt.Errorf("unknown constellation %q", s)
	}
	return c, nil
}

// Valid reports whether c is one of the known systems.
func (c Constellation) Valid() bool {
	_, ok := constellations[c]
	return ok
}

// Letter returns the RINEX system letter.
func (c Constellation) Letter() string { return string(rune(c)) }

// String returns the human-readable system name.
func (c Constellation) String() string {
	if info, ok := constellations[c]; ok {
		return info.name
	}
	return fmt.Sprintf("Constellation(%q)", rune(c))
}

// NominalFrequency returns the primary open-service carrier in Hz. For
// GLONASS this is the FDMA G1 centre frequency.
func (c Constellation) NominalFrequency() float64 {
	return constellations[c].nominalFrequency
}

// Predictable reports whether rise/set prediction from TLEs is supported.
// SBAS satellites are geostationary and are not published per PRN.
func (c Constellation) Predictable() bool {
	return c.Valid() && c != SBAS
}

// NORADPrefix returns the object-name prefix used in catalogue listings.
func (c Constellation) NORADPrefix() string {
	return constellations[c].noradPrefix
}
