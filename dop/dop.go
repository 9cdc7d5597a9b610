// Package dop computes dilution-of-precision values from satellite
// geometry, the downsampled per-epoch DOP series, visibility counts and the
// PDOP-binned coordinate error statistics.
package dop

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInsufficientSatellites is returned with fewer than four usable
	// satellites.
	ErrInsufficientSatellites = errors.New("fewer than 4 satellites above mask")
	// ErrSingular is returned when the normal matrix cannot be inverted.
	ErrSingular = errors.New("singular DOP geometry")
)

const deg2rad = math.Pi / 180

// AzEl is a line of sight in degrees.
type AzEl struct {
	Azimuth   float64
	Elevation float64
}

// DOP holds the dilution factors of one epoch. Values are NaN when the
// geometry could not be solved.
type DOP struct {
	GDOP, PDOP, HDOP, VDOP, TDOP float64
	NumSats                      int
}

// NaN returns a DOP with every factor undefined.
func NaN(numSats int) DOP {
	n := math.NaN()
	return DOP{GDOP: n, PDOP: n, HDOP: n, VDOP: n, TDOP: n, NumSats: numSats}
}

// Usable counts the lines of sight at or above mask degrees.
func Usable(sats []AzEl, mask float64) int {
	n := 0
	for _, s := range sats {
		if s.Elevation >= mask {
			n++
		}
	}
	return n
}

// Compute builds the geometry matrix with rows (cos E sin A, cos E cos A,
// sin E, 1) for every satellite at or above mask and inverts the normal
// matrix. With q the diagonal of (G^T G)^-1, HDOP = sqrt(q1+q2), VDOP =
// sqrt(q3), PDOP = sqrt(q1+q2+q3), TDOP = sqrt(q4) and GDOP their sum.
func Compute(sats []AzEl, mask float64) (DOP, error) {
	n := Usable(sats, mask)
	if n < 4 {
		return NaN(n), fmt.Errorf("%w: %d", ErrInsufficientSatellites, n)
	}

	g := mat.NewDense(n, 4, nil)
	row := 0
	for _, s := range sats {
		if s.Elevation < mask {
			continue
		}
		sinEl, cosEl := math.Sincos(s.Elevation * deg2rad)
		sinAz, cosAz := math.Sincos(s.Azimuth * deg2rad)
		g.SetRow(row, []float64{cosEl * sinAz, cosEl * cosAz, sinEl, 1})
		row++
	}

	var normal, q mat.Dense
	normal.Mul(g.T(), g)
	if err := q.Inverse(&normal); err != nil {
		return NaN(n), fmt.Errorf("%w: %v", ErrSingular, err)
	}

	q1, q2, q3, q4 := q.At(0, 0), q.At(1, 1), q.At(2, 2), q.At(3, 3)
	if q1 < 0 || q2 < 0 || q3 < 0 || q4 < 0 {
		return NaN(n), ErrSingular
	}
	return DOP{
		GDOP:    math.Sqrt(q1 + q2 + q3 + q4),
		PDOP:    math.Sqrt(q1 + q2 + q3),
		HDOP:    math.Sqrt(q1 + q2),
		VDOP:    math.Sqrt(q3),
		TDOP:    math.Sqrt(q4),
		NumSats: n,
	}, nil
}
