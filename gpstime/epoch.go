package gpstime

import "time"

// Epoch is a single observation instant with its GPS representation cached.
// UTC is held at microsecond resolution.
type Epoch struct {
	UTC       time.Time
	GPS       GPSTime
	DayOfYear int
	LeapSecs  int
}

// NewEpoch truncates t to microseconds and derives the GPS fields.
func NewEpoch(t time.Time, leapSecs int) (Epoch, error) {
	t = t.UTC().Truncate(time.Microsecond)
	g, err := FromTime(t, leapSecs)
	if err != nil {
		return Epoch{}, err
	}
	return Epoch{
		UTC:       t,
		GPS:       g,
		DayOfYear: t.YearDay(),
		LeapSecs:  leapSecs,
	}, nil
}

// SecondOfDay returns seconds since UTC midnight including the fraction.
func (e Epoch) SecondOfDay() float64 {
	return SecondOfDay(e.UTC)
}

// SecondOfDay returns seconds since UTC midnight of t.
func SecondOfDay(t time.Time) float64 {
	t = t.UTC()
	return float64(t.Hour()*3600+t.Minute()*60+t.Second()) + float64(t.Nanosecond())/1e9
}

// StartOfDay returns UTC midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same UTC date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
