// Package gpstime converts between civil UTC and GPS time (week, second of
// week) and carries the small calendar helpers the pipeline needs.
//
// The leap-second offset is always supplied by the caller; the package keeps
// no leap-second table.
package gpstime

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// SecondsPerWeek is the length of a GPS week.
	SecondsPerWeek = 604800
	// SecondsPerDay is the length of a civil day.
	SecondsPerDay = 86400

	halfWeek = SecondsPerWeek / 2
)

// GPSEpoch is the origin of GPS time, 1980-01-06 00:00:00 UTC.
var GPSEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// ErrInvalidTime is returned for calendar fields that do not name a real
// instant (month 13, February 30th, negative seconds, ...).
var ErrInvalidTime = errors.New("invalid time")

// GPSTime is a GPS week/second-of-week representation of an instant.
type GPSTime struct {
	Week      int
	SecOfWeek float64
	DayOfWeek int
	SecOfDay  float64
}

// Civil is a broken-down UTC instant. Second carries the fractional part.
type Civil struct {
	Year, Month, Day int
	Hour, Minute     int
	Second           float64
}

// Time returns the civil value as a time.Time in UTC. Sub-nanosecond
// fractions are truncated.
func (c Civil) Time() time.Time {
	whole := math.Floor(c.Second)
	nsec := int(math.Round((c.Second - whole) * 1e9))
	return time.Date(c.Year, time.Month(c.Month), c.Day, c.Hour, c.Minute, int(whole), nsec, time.UTC)
}

// CivilFromTime breaks t (converted to UTC) into civil fields.
func CivilFromTime(t time.Time) Civil {
	t = t.UTC()
	y, m, d := t.Date()
	return Civil{
		Year:   y,
		Month:  int(m),
		Day:    d,
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: float64(t.Second()) + float64(t.Nanosecond())/1e9,
	}
}

// UTCToGPS converts a UTC calendar instant to GPS week and second of week.
// GPS time runs ahead of UTC by leapSecs. The fractional part of sec is
// carried through without passing it through integer arithmetic.
func UTCToGPS(year, month, day, hour, min int, sec float64, leapSecs int) (GPSTime, error) {
	if err := validateCivil(year, month, day, hour, min, sec); err != nil {
		return GPSTime{}, err
	}
	whole := math.Floor(sec)
	frac := sec - whole

	base := time.Date(year, time.Month(month), day, hour, min, int(whole), 0, time.UTC)
	total := int64(base.Sub(GPSEpoch)/time.Second) + int64(leapSecs)
	if total < 0 {
		return GPSTime{}, fmt.Errorf("%w: %04d-%02d-%02d precedes the GPS epoch", ErrInvalidTime, year, month, day)
	}

	week := total / SecondsPerWeek
	sow := total % SecondsPerWeek
	dow := sow / SecondsPerDay
	sod := sow % SecondsPerDay

	return GPSTime{
		Week:      int(week),
		SecOfWeek: float64(sow) + frac,
		DayOfWeek: int(dow),
		SecOfDay:  float64(sod) + frac,
	}, nil
}

// GPSToUTC is the inverse of UTCToGPS.
func GPSToUTC(week int, secOfWeek float64, leapSecs int) (Civil, error) {
	if week < 0 || math.IsNaN(secOfWeek) || math.IsInf(secOfWeek, 0) {
		return Civil{}, fmt.Errorf("%w: week %d sow %v", ErrInvalidTime, week, secOfWeek)
	}
	whole := math.Floor(secOfWeek)
	frac := secOfWeek - whole

	total := int64(week)*SecondsPerWeek + int64(whole) - int64(leapSecs)
	t := GPSEpoch.Add(time.Duration(total) * time.Second)
	y, m, d := t.Date()
	return Civil{
		Year:   y,
		Month:  int(m),
		Day:    d,
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: float64(t.Second()) + frac,
	}, nil
}

// FromTime converts a UTC time.Time to GPS time.
func FromTime(t time.Time, leapSecs int) (GPSTime, error) {
	c := CivilFromTime(t)
	return UTCToGPS(c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second, leapSecs)
}

// ToTime converts GPS week/second of week to a UTC time.Time.
func ToTime(week int, secOfWeek float64, leapSecs int) (time.Time, error) {
	c, err := GPSToUTC(week, secOfWeek, leapSecs)
	if err != nil {
		return time.Time{}, err
	}
	return c.Time(), nil
}

// WrapWeekSeconds maps t into [-302400, 302400) by whole weeks. It is
// idempotent.
func WrapWeekSeconds(t float64) float64 {
	r := math.Mod(t+halfWeek, SecondsPerWeek)
	if r < 0 {
		r += SecondsPerWeek
	}
	return r - halfWeek
}

// DayOfWeek returns 0..6 with Sunday = 0.
func DayOfWeek(year, month, day int) (int, error) {
	if err := validateCivil(year, month, day, 0, 0, 0); err != nil {
		return 0, err
	}
	return int(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Weekday()), nil
}

// DayOfYear returns 1..366.
func DayOfYear(year, month, day int) (int, error) {
	if err := validateCivil(year, month, day, 0, 0, 0); err != nil {
		return 0, err
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).YearDay(), nil
}

// YYDDD returns the two-digit-year plus day-of-year key used in TLE line 1,
// e.g. 2023-02-01 -> 23032.
func YYDDD(t time.Time) int {
	t = t.UTC()
	return (t.Year()%100)*1000 + t.YearDay()
}

func validateCivil(year, month, day, hour, min int, sec float64) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidTime, month)
	}
	if day < 1 || day > daysIn(year, time.Month(month)) {
		return fmt.Errorf("%w: day %d of %04d-%02d", ErrInvalidTime, day, year, month)
	}
	if hour < 0 || hour > 23 {
		return fmt.Errorf("%w: hour %d", ErrInvalidTime, hour)
	}
	if min < 0 || min > 59 {
		return fmt.Errorf("%w: minute %d", ErrInvalidTime, min)
	}
	if math.IsNaN(sec) || sec < 0 || sec >= 61 {
		return fmt.Errorf("%w: second %v", ErrInvalidTime, sec)
	}
	return nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
