package dop

import (
	"context"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/gnss-arcs/obs"
)

// DefaultStride is the maximum number of epochs between two DOP anchors.
const DefaultStride = 4800

// Anchor is an epoch at which DOP was actually computed.
type Anchor struct {
	Index int
	Epoch time.Time
	DOP   DOP
}

// Series is the downsampled DOP of a table plus the PDOP interpolated to
// every epoch.
type Series struct {
	Epochs  []time.Time
	Counts  []int
	Anchors []Anchor
	PDOP    []float64
}

// SeriesOptions controls BuildSeries.
type SeriesOptions struct {
	Mask   float64
	Stride int
	// Workers bounds concurrent anchor evaluation; <= 0 uses GOMAXPROCS.
	Workers int
}

// BuildSeries computes DOP at the first and last epoch, at every epoch
// where the usable satellite count changes, and otherwise every Stride
// epochs. Anchors are evaluated concurrently; PDOP is then linearly
// interpolated in time between neighbouring anchors. Epochs whose geometry
// cannot be solved carry NaN.
func BuildSeries(ctx context.Context, epochs []obs.EpochRows, opts SeriesOptions) (Series, error) {
	stride := opts.Stride
	if stride <= 0 {
		stride = DefaultStride
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	s := Series{
		Epochs: make([]time.Time, len(epochs)),
		Counts: make([]int, len(epochs)),
	}
	geoms := make([][]AzEl, len(epochs))
	for i, e := range epochs {
		s.Epochs[i] = e.Epoch
		geoms[i] = lineOfSight(e)
		s.Counts[i] = Usable(geoms[i], opts.Mask)
	}

	last := -1
	for i := range epochs {
		switch {
		case i == 0, i == len(epochs)-1, s.Counts[i] != s.Counts[i-1], i-last >= stride:
			s.Anchors = append(s.Anchors, Anchor{Index: i, Epoch: epochs[i].Epoch})
			last = i
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k := range s.Anchors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := &s.Anchors[k]
			// Numerical failures stay local as NaN.
			a.DOP, _ = Compute(geoms[a.Index], opts.Mask)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Series{}, err
	}

	s.PDOP = make([]float64, len(epochs))
	for i, t := range s.Epochs {
		s.PDOP[i] = s.PDOPAt(t)
	}
	return s, nil
}

// PDOPAt interpolates PDOP linearly between the anchors around t. It is NaN
// outside the anchor span or when a neighbouring anchor is NaN.
func (s Series) PDOPAt(t time.Time) float64 {
	n := len(s.Anchors)
	if n == 0 || t.Before(s.Anchors[0].Epoch) || t.After(s.Anchors[n-1].Epoch) {
		return math.NaN()
	}
	j := sort.Search(n, func(i int) bool { return !s.Anchors[i].Epoch.Before(t) })
	if s.Anchors[j].Epoch.Equal(t) {
		return s.Anchors[j].DOP.PDOP
	}
	a, b := s.Anchors[j-1], s.Anchors[j]
	frac := float64(t.Sub(a.Epoch)) / float64(b.Epoch.Sub(a.Epoch))
	return a.DOP.PDOP + frac*(b.DOP.PDOP-a.DOP.PDOP)
}

func lineOfSight(e obs.EpochRows) []AzEl {
	out := make([]AzEl, len(e.Rows))
	for i, r := range e.Rows {
		out[i] = AzEl{Azimuth: r.Azimuth, Elevation: r.Elevation}
	}
	return out
}
