package model

import (
	"math"
	"time"
)

// ObservationRow is one satellite seen at one epoch. SNR and Residual are NaN
// when the source table does not carry them.
type ObservationRow struct {
	Epoch     time.Time
	PRN       PRN
	Elevation float64 // degrees, [-90, 90]
	Azimuth   float64 // degrees, [0, 360)
	SNR       float64 // dB-Hz
	Residual  float64 // pseudorange residual, m
}

// HasSNR reports whether a signal-to-noise value is present.
func (r ObservationRow) HasSNR() bool { return !math.IsNaN(r.SNR) }

// HasResidual reports whether a pseudorange residual is present.
func (r ObservationRow) HasResidual() bool { return !math.IsNaN(r.Residual) }
