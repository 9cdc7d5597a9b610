package model

import "time"

// Arc is a maximal run of observations of one PRN without a gap longer than
// the configured multiple of the nominal interval.
type Arc struct {
	PRN   PRN
	Index int
	Rise  time.Time
	Set   time.Time
	Count int
}

// Duration returns Set - Rise.
func (a Arc) Duration() time.Duration { return a.Set.Sub(a.Rise) }

// EventKind distinguishes the events of a predicted pass.
type EventKind int

const (
	EventRise EventKind = iota
	EventCulminate
	EventSet
)

func (k EventKind) String() string {
	switch k {
	case EventRise:
		return "RISE"
	case EventCulminate:
		return "CULMINATE"
	case EventSet:
		return "SET"
	default:
		return "UNKNOWN"
	}
}

// Event is a predicted horizon crossing or culmination.
type Event struct {
	Kind      EventKind
	Time      time.Time
	Elevation float64
}

// PredictedArc is a (rise, culminate, set) triple. Culminate is the zero
// time when the pass has no culmination inside the prediction window.
type PredictedArc struct {
	Rise      time.Time
	Culminate time.Time
	Set       time.Time

	// ClippedRise/ClippedSet mark edges replaced by the window bounds.
	ClippedRise bool
	ClippedSet  bool
}

// HasCulminate reports whether the culmination time is defined.
func (p PredictedArc) HasCulminate() bool { return !p.Culminate.IsZero() }

// Duration returns Set - Rise.
func (p PredictedArc) Duration() time.Duration { return p.Set.Sub(p.Rise) }

// ExpectedEpochs returns floor((set - rise) / nominal), 0 for a
// non-positive nominal interval.
func (p PredictedArc) ExpectedEpochs(nominal time.Duration) int {
	if nominal <= 0 || !p.Set.After(p.Rise) {
		return 0
	}
	return int(p.Set.Sub(p.Rise) / nominal)
}
