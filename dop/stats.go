package dop

import (
	"fmt"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/gnss-arcs/geodesy"
	"github.com/signalsfoundry/gnss-arcs/obs"
)

// Bin is a half-open PDOP interval (Lo, Hi].
type Bin struct {
	Label  string
	Lo, Hi float64
}

// Contains reports whether pdop falls in (Lo, Hi].
func (b Bin) Contains(pdop float64) bool { return pdop > b.Lo && pdop <= b.Hi }

// DefaultBins is the standard PDOP partition.
var DefaultBins = []Bin{
	{Label: "(0,2]", Lo: 0, Hi: 2},
	{Label: "(2,3]", Lo: 2, Hi: 3},
	{Label: "(3,4]", Lo: 3, Hi: 4},
	{Label: "(4,5]", Lo: 4, Hi: 5},
	{Label: "(5,6]", Lo: 5, Hi: 6},
	{Label: "(6,inf)", Lo: 6, Hi: math.Inf(1)},
}

// AllLabel names the statistics row over every epoch with a defined PDOP.
const AllLabel = "all"

// Offset is a position minus the reference, in UTM metres, joined with the
// interpolated PDOP of its epoch.
type Offset struct {
	Epoch         time.Time
	E, N, U       float64
	SdE, SdN, SdU float64
	PDOP          float64
}

// AxisStats summarises one axis of the offsets.
type AxisStats struct {
	Mean, WeightedMean, Median, Std, Min, Max float64
}

// BinStats is one row of the statistics table.
type BinStats struct {
	Bin      Bin
	Count    int
	Fraction float64
	East     AxisStats
	North    AxisStats
	Up       AxisStats
}

// MarkerReference returns the station marker projected in zone.
func MarkerReference(marker geodesy.LLA, zone int) (geodesy.UTM, error) {
	return geodesy.LLAToUTMZone(marker.Lat, marker.Lon, marker.Alt, zone)
}

// WeightedMeanReference returns the inverse-variance weighted mean of the
// series per axis. Epochs without a positive finite sigma on an axis are left
// out of that axis; an axis with no weights falls back to the plain mean.
func WeightedMeanReference(ps []obs.Position) (geodesy.UTM, error) {
	if len(ps) == 0 {
		return geodesy.UTM{}, fmt.Errorf("no positions for a weighted reference")
	}
	e := make([]float64, len(ps))
	n := make([]float64, len(ps))
	u := make([]float64, len(ps))
	we := make([]float64, len(ps))
	wn := make([]float64, len(ps))
	wu := make([]float64, len(ps))
	for i, p := range ps {
		e[i], n[i], u[i] = p.UTM.Easting, p.UTM.Northing, p.UTM.Alt
		we[i], wn[i], wu[i] = inverseVariance(p.SdE), inverseVariance(p.SdN), inverseVariance(p.SdU)
	}
	ref := ps[0].UTM
	ref.Easting = weightedMean(e, we)
	ref.Northing = weightedMean(n, wn)
	ref.Alt = weightedMean(u, wu)
	return ref, nil
}

// Offsets subtracts ref from every position and attaches the PDOP from the
// series at the position's epoch.
func Offsets(ps []obs.Position, ref geodesy.UTM, series Series) []Offset {
	out := make([]Offset, len(ps))
	for i, p := range ps {
		out[i] = Offset{
			Epoch: p.Epoch,
			E:     p.UTM.Easting - ref.Easting,
			N:     p.UTM.Northing - ref.Northing,
			U:     p.UTM.Alt - ref.Alt,
			SdE:   p.SdE,
			SdN:   p.SdN,
			SdU:   p.SdU,
			PDOP:  series.PDOPAt(p.Epoch),
		}
	}
	return out
}

// BinStatistics groups offsets by PDOP bin and summarises each axis. The
// fraction is relative to the offsets with a defined PDOP. A final row
// labelled AllLabel covers every such offset.
func BinStatistics(offsets []Offset, bins []Bin) []BinStats {
	if len(bins) == 0 {
		bins = DefaultBins
	}
	var defined []Offset
	for _, o := range offsets {
		if !math.IsNaN(o.PDOP) {
			defined = append(defined, o)
		}
	}

	out := make([]BinStats, 0, len(bins)+1)
	for _, b := range bins {
		var in []Offset
		for _, o := range defined {
			if b.Contains(o.PDOP) {
				in = append(in, o)
			}
		}
		out = append(out, summariseBin(b, in, len(defined)))
	}
	all := Bin{Label: AllLabel, Lo: math.Inf(-1), Hi: math.Inf(1)}
	return append(out, summariseBin(all, defined, len(defined)))
}

func summariseBin(b Bin, in []Offset, total int) BinStats {
	bs := BinStats{Bin: b, Count: len(in), Fraction: math.NaN()}
	if total > 0 {
		bs.Fraction = float64(len(in)) / float64(total)
	}
	e := make([]float64, len(in))
	n := make([]float64, len(in))
	u := make([]float64, len(in))
	we := make([]float64, len(in))
	wn := make([]float64, len(in))
	wu := make([]float64, len(in))
	for i, o := range in {
		e[i], n[i], u[i] = o.E, o.N, o.U
		we[i], wn[i], wu[i] = inverseVariance(o.SdE), inverseVariance(o.SdN), inverseVariance(o.SdU)
	}
	bs.East = axisStats(e, we)
	bs.North = axisStats(n, wn)
	bs.Up = axisStats(u, wu)
	return bs
}

func axisStats(x, w []float64) AxisStats {
	if len(x) == 0 {
		nan := math.NaN()
		return AxisStats{Mean: nan, WeightedMean: nan, Median: nan, Std: nan, Min: nan, Max: nan}
	}
	mean, std := stat.MeanStdDev(x, nil)
	return AxisStats{
		Mean:         mean,
		WeightedMean: weightedMean(x, w),
		Median:       median(x),
		Std:          std,
		Min:          floats.Min(x),
		Max:          floats.Max(x),
	}
}

// weightedMean ignores zero-weight samples and falls back to the plain mean
// when every weight is zero.
func weightedMean(x, w []float64) float64 {
	if floats.Sum(w) == 0 {
		return stat.Mean(x, nil)
	}
	return stat.Mean(x, w)
}

func inverseVariance(sd float64) float64 {
	if sd <= 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
		return 0
	}
	return 1 / (sd * sd)
}

func median(x []float64) float64 {
	s := slices.Clone(x)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
