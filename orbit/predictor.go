package orbit

import (
	"errors"
	"time"

	"github.com/signalsfoundry/gnss-arcs/model"
)

const (
	defaultStep      = time.Minute
	defaultPrecision = time.Second
)

// Predictor searches the elevation profile of a satellite above a station.
// The profile is sampled every Step; horizon crossings are bisected and
// culminations refined down to Precision.
type Predictor struct {
	Station model.GroundStation
	// Mask is the elevation mask in degrees.
	Mask      float64
	Step      time.Duration
	Precision time.Duration
}

// NewPredictor returns a predictor using the station's own elevation mask.
func NewPredictor(station model.GroundStation) *Predictor {
	return &Predictor{
		Station:   station,
		Mask:      station.MaskDeg,
		Step:      defaultStep,
		Precision: defaultPrecision,
	}
}

// Elevation returns the satellite elevation in degrees at t.
func (p *Predictor) Elevation(prop *Propagator, t time.Time) (float64, error) {
	pos, err := prop.ECEF(t)
	if err != nil {
		return 0, err
	}
	_, _, el := p.Station.LookAngles(pos)
	return el, nil
}

// Events returns the rise, culmination and set events inside [t0, t1] in
// chronological order, and whether the satellite was already above the mask
// at t0. A pass cut by the window boundary has no event at the cut edge; a
// culmination is only reported when the elevation maximum lies strictly
// inside the window.
func (p *Predictor) Events(prop *Propagator, t0, t1 time.Time) ([]model.Event, bool, error) {
	if !t1.After(t0) {
		return nil, false, errors.New("prediction window is empty")
	}
	step, prec := p.step(), p.precision()

	prevT := t0
	prevEl, err := p.Elevation(prop, t0)
	if err != nil {
		return nil, false, err
	}
	visibleAtStart := prevEl >= p.Mask

	var (
		events   []model.Event
		inPass   = visibleAtStart
		runStart = t0
		maxT     = t0
		maxEl    = prevEl
	)

	closeRun := func(runEnd time.Time) error {
		ev, ok, err := p.culmination(prop, runStart, runEnd, maxT, t0, t1)
		if err != nil {
			return err
		}
		if ok {
			events = append(events, ev)
		}
		return nil
	}

	for t := t0; t.Before(t1); {
		t = t.Add(step)
		if t.After(t1) {
			t = t1
		}
		el, err := p.Elevation(prop, t)
		if err != nil {
			return nil, false, err
		}

		switch {
		case !inPass && el >= p.Mask:
			rise, riseEl, err := p.crossing(prop, prevT, t, prec, true)
			if err != nil {
				return nil, false, err
			}
			events = append(events, model.Event{Kind: model.EventRise, Time: rise, Elevation: riseEl})
			inPass = true
			runStart = rise
			maxT, maxEl = t, el
		case inPass && el < p.Mask:
			set, setEl, err := p.crossing(prop, prevT, t, prec, false)
			if err != nil {
				return nil, false, err
			}
			if err := closeRun(set); err != nil {
				return nil, false, err
			}
			events = append(events, model.Event{Kind: model.EventSet, Time: set, Elevation: setEl})
			inPass = false
		case inPass && el > maxEl:
			maxT, maxEl = t, el
		}
		prevT, prevEl = t, el
	}
	if inPass {
		if err := closeRun(t1); err != nil {
			return nil, false, err
		}
	}
	return events, visibleAtStart, nil
}

// Passes predicts the visibility passes inside [t0, t1], clipping passes cut
// by the window to its bounds.
func (p *Predictor) Passes(prop *Propagator, t0, t1 time.Time) ([]model.PredictedArc, error) {
	events, visible, err := p.Events(prop, t0, t1)
	if err != nil {
		return nil, err
	}
	return PassesFromEvents(events, visible, t0, t1), nil
}

// PassesFromEvents folds an event list into (rise, culminate, set) triples.
// A list that begins inside a pass (visibleAtStart, or a leading CULMINATE or
// SET) takes t0 as the rise; a pass still open at the end takes t1 as the
// set. When a pass carries several culminations the highest is kept.
func PassesFromEvents(events []model.Event, visibleAtStart bool, t0, t1 time.Time) []model.PredictedArc {
	var (
		out    []model.PredictedArc
		cur    model.PredictedArc
		open   bool
		bestEl float64
	)
	start := func(rise time.Time, clipped bool) {
		cur = model.PredictedArc{Rise: rise, ClippedRise: clipped}
		open = true
		bestEl = 0
	}
	finish := func(set time.Time, clipped bool) {
		cur.Set = set
		cur.ClippedSet = clipped
		if cur.Set.After(cur.Rise) {
			out = append(out, cur)
		}
		open = false
	}

	if visibleAtStart {
		start(t0, true)
	}
	for _, ev := range events {
		switch ev.Kind {
		case model.EventRise:
			if open {
				finish(ev.Time, false)
			}
			start(ev.Time, false)
		case model.EventCulminate:
			if !open {
				start(t0, true)
			}
			if !cur.HasCulminate() || ev.Elevation > bestEl {
				cur.Culminate = ev.Time
				bestEl = ev.Elevation
			}
		case model.EventSet:
			if !open {
				start(t0, true)
			}
			finish(ev.Time, false)
		}
	}
	if open {
		finish(t1, true)
	}
	return out
}

// crossing bisects [lo, hi] for the mask crossing. For a rise it returns the
// first instant at or above the mask, for a set the last.
func (p *Predictor) crossing(prop *Propagator, lo, hi time.Time, prec time.Duration, rising bool) (time.Time, float64, error) {
	for hi.Sub(lo) > prec {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if !mid.After(lo) || !mid.Before(hi) {
			break
		}
		el, err := p.Elevation(prop, mid)
		if err != nil {
			return time.Time{}, 0, err
		}
		above := el >= p.Mask
		if above == rising {
			hi = mid
		} else {
			lo = mid
		}
	}
	at := hi
	if !rising {
		at = lo
	}
	el, err := p.Elevation(prop, at)
	if err != nil {
		return time.Time{}, 0, err
	}
	return at, el, nil
}

// culmination refines the elevation maximum around the best coarse sample of
// a run by ternary search. It reports nothing when the maximum sits on a
// window edge.
func (p *Predictor) culmination(prop *Propagator, runStart, runEnd, sample, t0, t1 time.Time) (model.Event, bool, error) {
	step, prec := p.step(), p.precision()

	lo := sample.Add(-step)
	if lo.Before(runStart) {
		lo = runStart
	}
	hi := sample.Add(step)
	if hi.After(runEnd) {
		hi = runEnd
	}
	for hi.Sub(lo) > 2*prec {
		third := hi.Sub(lo) / 3
		m1, m2 := lo.Add(third), hi.Add(-third)
		e1, err := p.Elevation(prop, m1)
		if err != nil {
			return model.Event{}, false, err
		}
		e2, err := p.Elevation(prop, m2)
		if err != nil {
			return model.Event{}, false, err
		}
		if e1 < e2 {
			lo = m1
		} else {
			hi = m2
		}
	}
	at := lo.Add(hi.Sub(lo) / 2).Round(time.Second)
	if at.Sub(t0) <= prec || t1.Sub(at) <= prec {
		return model.Event{}, false, nil
	}
	el, err := p.Elevation(prop, at)
	if err != nil {
		return model.Event{}, false, err
	}
	return model.Event{Kind: model.EventCulminate, Time: at, Elevation: el}, true, nil
}

func (p *Predictor) step() time.Duration {
	if p.Step <= 0 {
		return defaultStep
	}
	return p.Step
}

func (p *Predictor) precision() time.Duration {
	if p.Precision <= 0 {
		return defaultPrecision
	}
	return p.Precision
}
