package arcs

import (
	"math"
	"slices"
	"time"

	"github.com/signalsfoundry/gnss-arcs/model"
)

// Slot is one aligned position of a PRN's reconciled arcs. Either side may
// be absent.
type Slot struct {
	Observed  *model.Arc
	Predicted *model.PredictedArc

	ObservedCount  int
	PredictedCount int
	// Completeness is ObservedCount/PredictedCount, NaN when nothing was
	// predicted.
	Completeness float64
}

// Start returns the earlier of the two rise times present.
func (s Slot) Start() time.Time {
	switch {
	case s.Observed == nil:
		return s.Predicted.Rise
	case s.Predicted == nil:
		return s.Observed.Rise
	case s.Predicted.Rise.Before(s.Observed.Rise):
		return s.Predicted.Rise
	default:
		return s.Observed.Rise
	}
}

// Matched reports whether the slot pairs an observed and a predicted arc.
func (s Slot) Matched() bool { return s.Observed != nil && s.Predicted != nil }

// PRNReconciliation is the reconciled row of one satellite.
type PRNReconciliation struct {
	PRN       model.PRN
	Observed  []model.Arc
	Predicted []model.PredictedArc
	Slots     []Slot
	// Predictable is false when no element set was available.
	Predictable bool
}

// Completeness returns the observed over predicted epoch ratio summed over
// all slots, NaN when nothing was predicted.
func (r PRNReconciliation) Completeness() float64 {
	var o, p int
	for _, s := range r.Slots {
		o += s.ObservedCount
		p += s.PredictedCount
	}
	return ratio(o, p)
}

// Reconciler pairs observed arcs with predicted passes.
type Reconciler struct {
	Nominal time.Duration
}

type candidate struct {
	obs, pred int
	score     time.Duration
	overlap   time.Duration
	start     time.Time
}

// Reconcile aligns the arcs of one PRN. Observed and predicted arcs that
// overlap by a positive duration are candidates; the pair whose overlap is
// most symmetric (largest min(o.rise-p.rise, p.set-o.set)) is taken first,
// then larger overlap, then earlier start. Each arc is used at most once;
// leftovers get a slot of their own. Slots are ordered by start time.
func (rc Reconciler) Reconcile(prn model.PRN, observed []model.Arc, predicted []model.PredictedArc) PRNReconciliation {
	var cands []candidate
	for i, o := range observed {
		for j, p := range predicted {
			ov := overlap(o.Rise, o.Set, p.Rise, p.Set)
			if ov <= 0 {
				continue
			}
			start := o.Rise
			if p.Rise.Before(start) {
				start = p.Rise
			}
			cands = append(cands, candidate{
				obs:     i,
				pred:    j,
				score:   min(o.Rise.Sub(p.Rise), p.Set.Sub(o.Set)),
				overlap: ov,
				start:   start,
			})
		}
	}
	slices.SortStableFunc(cands, func(a, b candidate) int {
		switch {
		case a.score != b.score:
			return cmpDesc(a.score, b.score)
		case a.overlap != b.overlap:
			return cmpDesc(a.overlap, b.overlap)
		default:
			return a.start.Compare(b.start)
		}
	})

	usedObs := make([]bool, len(observed))
	usedPred := make([]bool, len(predicted))
	var slots []Slot
	for _, c := range cands {
		if usedObs[c.obs] || usedPred[c.pred] {
			continue
		}
		usedObs[c.obs], usedPred[c.pred] = true, true
		slots = append(slots, rc.slot(&observed[c.obs], &predicted[c.pred]))
	}
	for i := range observed {
		if !usedObs[i] {
			slots = append(slots, rc.slot(&observed[i], nil))
		}
	}
	for j := range predicted {
		if !usedPred[j] {
			slots = append(slots, rc.slot(nil, &predicted[j]))
		}
	}
	slices.SortStableFunc(slots, func(a, b Slot) int { return a.Start().Compare(b.Start()) })

	return PRNReconciliation{
		PRN:         prn,
		Observed:    observed,
		Predicted:   predicted,
		Slots:       slots,
		Predictable: true,
	}
}

func (rc Reconciler) slot(o *model.Arc, p *model.PredictedArc) Slot {
	s := Slot{Observed: o, Predicted: p}
	if o != nil {
		s.ObservedCount = o.Count
	}
	if p != nil {
		s.PredictedCount = p.ExpectedEpochs(rc.Nominal)
	}
	s.Completeness = ratio(s.ObservedCount, s.PredictedCount)
	return s
}

// MaxArcs returns the widest slot count over all rows, the column count
// needed for tabular output.
func MaxArcs(rows []PRNReconciliation) int {
	n := 0
	for _, r := range rows {
		n = max(n, len(r.Slots))
	}
	return n
}

func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	return end.Sub(start)
}

func cmpDesc(a, b time.Duration) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

func ratio(o, p int) float64 {
	if p == 0 {
		return math.NaN()
	}
	return float64(o) / float64(p)
}
