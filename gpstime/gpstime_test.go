package gpstime

import (
	"errors"
	"testing"
	"time"
)

func TestUTCToGPS_WeekRollover(t *testing.T) {
	// GPS week 1024 starts 1999-08-22 00:00:00 GPST, which is 13 s earlier in UTC.
	g, err := UTCToGPS(1999, 8, 22, 0, 0, 1, 13)
	if err != nil {
		t.Fatalf("UTCToGPS: %v", err)
	}
	if g.Week != 1024 || g.SecOfWeek != 14.0 {
		t.Fatalf("got week=%d sow=%v, want 1024, 14", g.Week, g.SecOfWeek)
	}
	if g.DayOfWeek != 0 || g.SecOfDay != 14.0 {
		t.Fatalf("got dow=%d sod=%v, want 0, 14", g.DayOfWeek, g.SecOfDay)
	}

	c, err := GPSToUTC(g.Week, g.SecOfWeek, 13)
	if err != nil {
		t.Fatalf("GPSToUTC: %v", err)
	}
	want := Civil{Year: 1999, Month: 8, Day: 22, Hour: 0, Minute: 0, Second: 1}
	if c != want {
		t.Fatalf("GPSToUTC = %+v, want %+v", c, want)
	}
}

func TestUTCToGPS_ZeroLeapMatchesCivilSeconds(t *testing.T) {
	g, err := UTCToGPS(1999, 8, 22, 0, 0, 14, 0)
	if err != nil {
		t.Fatalf("UTCToGPS: %v", err)
	}
	if g.Week != 1024 || g.SecOfWeek != 14.0 {
		t.Fatalf("got week=%d sow=%v, want 1024, 14", g.Week, g.SecOfWeek)
	}
}

func TestRoundTripPreservesFraction(t *testing.T) {
	cases := []Civil{
		{Year: 1980, Month: 1, Day: 6, Hour: 0, Minute: 0, Second: 0},
		{Year: 2004, Month: 2, Day: 29, Hour: 23, Minute: 59, Second: 59.5},
		{Year: 2017, Month: 1, Day: 1, Hour: 0, Minute: 0, Second: 0.25},
		{Year: 2023, Month: 6, Day: 15, Hour: 12, Minute: 30, Second: 45.125},
		{Year: 2099, Month: 12, Day: 31, Hour: 23, Minute: 59, Second: 30.0625},
	}
	for _, leap := range []int{0, 13, 18} {
		for _, c := range cases {
			g, err := UTCToGPS(c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second, leap)
			if err != nil {
				t.Fatalf("UTCToGPS(%+v, leap=%d): %v", c, leap, err)
			}
			back, err := GPSToUTC(g.Week, g.SecOfWeek, leap)
			if err != nil {
				t.Fatalf("GPSToUTC: %v", err)
			}
			if back != c {
				t.Fatalf("leap=%d round trip %+v -> %+v -> %+v", leap, c, g, back)
			}
		}
	}
}

func TestUTCToGPS_InvalidDates(t *testing.T) {
	bad := []struct {
		y, m, d, h, min int
		sec             float64
	}{
		{2023, 2, 29, 0, 0, 0},
		{2023, 13, 1, 0, 0, 0},
		{2023, 4, 31, 0, 0, 0},
		{2023, 1, 1, 24, 0, 0},
		{2023, 1, 1, 0, 60, 0},
		{2023, 1, 1, 0, 0, -1},
		{1979, 12, 31, 0, 0, 0},
	}
	for _, b := range bad {
		if _, err := UTCToGPS(b.y, b.m, b.d, b.h, b.min, b.sec, 18); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("UTCToGPS(%v) err=%v, want ErrInvalidTime", b, err)
		}
	}
}

func TestWrapWeekSeconds(t *testing.T) {
	cases := map[float64]float64{
		0:         0,
		302399:    302399,
		302400:    -302400,
		-302400:   -302400,
		-302401:   302399,
		604800:    0,
		1209600.5: 0.5,
	}
	for in, want := range cases {
		got := WrapWeekSeconds(in)
		if got != want {
			t.Fatalf("WrapWeekSeconds(%v) = %v, want %v", in, got, want)
		}
		if again := WrapWeekSeconds(got); again != got {
			t.Fatalf("WrapWeekSeconds not idempotent for %v: %v -> %v", in, got, again)
		}
	}
}

func TestDayOfWeek(t *testing.T) {
	dow, err := DayOfWeek(1980, 1, 6)
	if err != nil || dow != 0 {
		t.Fatalf("DayOfWeek(GPS epoch) = %d, %v; want 0 (Sunday)", dow, err)
	}
	dow, err = DayOfWeek(2024, 3, 1)
	if err != nil || dow != 5 {
		t.Fatalf("DayOfWeek(2024-03-01) = %d, %v; want 5", dow, err)
	}
	if _, err := DayOfWeek(2024, 2, 30); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime for Feb 30th, got %v", err)
	}
}

func TestYYDDD(t *testing.T) {
	if got := YYDDD(time.Date(2023, 2, 1, 12, 0, 0, 0, time.UTC)); got != 23032 {
		t.Fatalf("YYDDD = %d, want 23032", got)
	}
	if got := YYDDD(time.Date(2000, 12, 31, 0, 0, 0, 0, time.UTC)); got != 366 {
		t.Fatalf("YYDDD = %d, want 366", got)
	}
}

func TestNewEpochTruncatesToMicroseconds(t *testing.T) {
	in := time.Date(2023, 6, 15, 12, 0, 0, 123456789, time.UTC)
	e, err := NewEpoch(in, 18)
	if err != nil {
		t.Fatalf("NewEpoch: %v", err)
	}
	if e.UTC.Nanosecond() != 123456000 {
		t.Fatalf("UTC nanos = %d, want 123456000", e.UTC.Nanosecond())
	}
	if e.DayOfYear != 166 {
		t.Fatalf("DayOfYear = %d, want 166", e.DayOfYear)
	}
	back, err := ToTime(e.GPS.Week, e.GPS.SecOfWeek, 18)
	if err != nil {
		t.Fatalf("ToTime: %v", err)
	}
	if d := back.Sub(e.UTC); d > time.Microsecond || d < -time.Microsecond {
		t.Fatalf("ToTime drift %v", d)
	}
}
