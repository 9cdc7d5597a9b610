package dop

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/gnss-arcs/model"
	"github.com/signalsfoundry/gnss-arcs/obs"
)

// AllSystems labels the summary row over every constellation.
const AllSystems = "ALL"

// EpochCount is the number of satellites above the mask at one epoch.
type EpochCount struct {
	Epoch    time.Time
	Total    int
	BySystem map[model.Constellation]int
}

// CountSummary summarises satellite counts over the day.
type CountSummary struct {
	System string
	Min    float64
	Mean   float64
	Max    float64
}

// Visibility counts satellites at or above mask per epoch and per
// constellation, and summarises the counts. Constellations never seen are
// omitted from the summary; a constellation seen at some epochs counts as
// zero at the others.
func Visibility(epochs []obs.EpochRows, mask float64) ([]EpochCount, []CountSummary) {
	counts := make([]EpochCount, len(epochs))
	seen := make(map[model.Constellation]bool)
	for i, e := range epochs {
		c := EpochCount{Epoch: e.Epoch, BySystem: make(map[model.Constellation]int)}
		for _, r := range e.Rows {
			if r.Elevation < mask {
				continue
			}
			c.Total++
			c.BySystem[r.PRN.System]++
			seen[r.PRN.System] = true
		}
		counts[i] = c
	}
	if len(counts) == 0 {
		return counts, nil
	}

	summarise := func(label string, value func(EpochCount) int) CountSummary {
		xs := make([]float64, len(counts))
		for i, c := range counts {
			xs[i] = float64(value(c))
		}
		return CountSummary{System: label, Min: floats.Min(xs), Mean: stat.Mean(xs, nil), Max: floats.Max(xs)}
	}

	summary := []CountSummary{summarise(AllSystems, func(c EpochCount) int { return c.Total })}
	systems := make([]model.Constellation, 0, len(seen))
	for sys := range seen {
		systems = append(systems, sys)
	}
	slices.Sort(systems)
	for _, sys := range systems {
		summary = append(summary, summarise(sys.Letter(), func(c EpochCount) int { return c.BySystem[sys] }))
	}
	return counts, summary
}
