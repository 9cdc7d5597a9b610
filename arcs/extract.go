// Package arcs segments observations into visibility arcs and reconciles
// them with predicted passes.
package arcs

import (
	"math"
	"time"

	"github.com/signalsfoundry/gnss-arcs/model"
	"github.com/signalsfoundry/gnss-arcs/obs"
)

// DefaultGapMultiplier is the number of nominal intervals a gap must exceed
// to end an arc.
const DefaultGapMultiplier = 30

// Segment splits the strictly increasing epochs of one PRN into arcs. A new
// arc starts wherever consecutive epochs are more than k*nominal apart.
// Rise and set are taken verbatim from epochs.
func Segment(prn model.PRN, epochs []time.Time, nominal time.Duration, k float64) []model.Arc {
	if len(epochs) == 0 {
		return nil
	}
	limit := time.Duration(math.Round(k * float64(nominal)))

	var out []model.Arc
	cur := model.Arc{PRN: prn, Rise: epochs[0], Set: epochs[0], Count: 1}
	for i := 1; i < len(epochs); i++ {
		if epochs[i].Sub(epochs[i-1]) > limit {
			out = append(out, cur)
			cur = model.Arc{PRN: prn, Index: len(out), Rise: epochs[i], Set: epochs[i], Count: 1}
			continue
		}
		cur.Set = epochs[i]
		cur.Count++
	}
	return append(out, cur)
}

// Extractor turns an observation table into per-PRN arcs.
type Extractor struct {
	// GapMultiplier is k; values <= 0 select DefaultGapMultiplier.
	GapMultiplier float64
	// Cutoff, when set, drops rows below this elevation (degrees) before
	// segmentation.
	Cutoff *float64
}

// PRNArcs holds the observed arcs of one satellite.
type PRNArcs struct {
	PRN  model.PRN
	Arcs []model.Arc
	Rows int
}

// Extraction is the result of Extract, in PRN order.
type Extraction struct {
	Nominal time.Duration
	PRNs    []PRNArcs
}

// Lookup returns the arcs of one PRN.
func (x Extraction) Lookup(prn model.PRN) (PRNArcs, bool) {
	for _, p := range x.PRNs {
		if p.PRN == prn {
			return p, true
		}
	}
	return PRNArcs{}, false
}

// ArcCount returns the total number of arcs.
func (x Extraction) ArcCount() int {
	n := 0
	for _, p := range x.PRNs {
		n += len(p.Arcs)
	}
	return n
}

// Extract computes the nominal interval over the table (after the optional
// cutoff) and segments every PRN.
func (e Extractor) Extract(t *obs.Table) Extraction {
	if e.Cutoff != nil {
		t = t.FilterElevation(*e.Cutoff)
	}
	k := e.GapMultiplier
	if k <= 0 {
		k = DefaultGapMultiplier
	}

	x := Extraction{Nominal: t.NominalInterval()}
	for _, g := range t.ByPRN() {
		epochs := make([]time.Time, len(g.Rows))
		for i, r := range g.Rows {
			epochs[i] = r.Epoch
		}
		x.PRNs = append(x.PRNs, PRNArcs{
			PRN:  g.PRN,
			Arcs: Segment(g.PRN, epochs, x.Nominal, k),
			Rows: len(g.Rows),
		})
	}
	return x
}
