package orbit

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const (
	gpsName  = "GPS BIIR-2  (PRN 13)"
	gpsLine1 = "1 24876U 97035A   21275.52033897  .00000022  00000-0  00000+0 0  9998"
	gpsLine2 = "2 24876  55.6197 126.6810 0040321  52.6590 307.7314  2.00563439177465"

	gpsEarlier1 = "1 24876U 97035A   21274.52305433  .00000021  00000-0  00000+0 0  9994"
	gpsEarlier2 = "2 24876  55.6198 126.7216 0040299  52.6371 307.7536  2.00563418177450"
	gpsLater1   = "1 24876U 97035A   21278.51342114  .00000018  00000-0  00000+0 0  9990"
	gpsLater2   = "2 24876  55.6193 126.5592 0040386  52.7244 307.6648  2.00563512177523"
)

func mustParse(t *testing.T, l1, l2 string) TLE {
	t.Helper()
	tle, err := ParseTLE("", l1, l2)
	if err != nil {
		t.Fatalf("ParseTLE: %v", err)
	}
	return tle
}

func TestParseTLE(t *testing.T) {
	tle, err := ParseTLE(gpsName, gpsLine1, gpsLine2)
	if err != nil {
		t.Fatalf("ParseTLE: %v", err)
	}
	if tle.NORAD != 24876 {
		t.Fatalf("NORAD = %d, want 24876", tle.NORAD)
	}
	if tle.EpochKey != 21275 {
		t.Fatalf("EpochKey = %d, want 21275", tle.EpochKey)
	}
	if y, m, d := tle.Epoch.Date(); y != 2021 || m != time.October || d != 2 {
		t.Fatalf("epoch date = %d-%d-%d, want 2021-10-02", y, m, d)
	}
	if tle.Name != gpsName {
		t.Fatalf("name = %q", tle.Name)
	}
}

func TestParseTLERejectsMalformed(t *testing.T) {
	cases := map[string][2]string{
		"checksum":     {gpsLine1[:68] + "1", gpsLine2},
		"short":        {gpsLine1[:60], gpsLine2},
		"line numbers": {gpsLine2, gpsLine1},
		"norad":        {gpsLine1, strings.Replace(gpsLine2, "24876", "24877", 1)},
	}
	for name, lines := range cases {
		if _, err := ParseTLE("", lines[0], lines[1]); !errors.Is(err, ErrInvalidTLE) {
			t.Fatalf("%s: expected ErrInvalidTLE, got %v", name, err)
		}
	}
}

func TestReadTLEsMixedFormats(t *testing.T) {
	input := strings.Join([]string{
		"0 " + gpsName,
		gpsEarlier1,
		gpsEarlier2,
		"",
		gpsLine1,
		gpsLine2,
		gpsName,
		gpsLater1 + "\r",
		gpsLater2,
	}, "\n")

	tles, err := ReadTLEs(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadTLEs: %v", err)
	}
	if len(tles) != 3 {
		t.Fatalf("expected 3 records, got %d", len(tles))
	}
	if tles[0].Name != gpsName || tles[1].Name != "" || tles[2].Name != gpsName {
		t.Fatalf("unexpected names: %q %q %q", tles[0].Name, tles[1].Name, tles[2].Name)
	}
	if tles[2].EpochKey != 21278 {
		t.Fatalf("third key = %d", tles[2].EpochKey)
	}
}

func TestReadTLEsTruncated(t *testing.T) {
	_, err := ReadTLEs(strings.NewReader(gpsLine1 + "\n"))
	if !errors.Is(err, ErrInvalidTLE) {
		t.Fatalf("expected ErrInvalidTLE, got %v", err)
	}
}

func TestSelectNearest(t *testing.T) {
	tles := []TLE{
		mustParse(t, gpsEarlier1, gpsEarlier2), // 21274
		mustParse(t, gpsLine1, gpsLine2),       // 21275
		mustParse(t, gpsLater1, gpsLater2),     // 21278
	}

	cases := map[int]int{
		21275: 21275,
		21277: 21278,
		21200: 21274,
		21300: 21278,
	}
	for target, want := range cases {
		got, err := SelectNearest(tles, target)
		if err != nil {
			t.Fatalf("SelectNearest(%d): %v", target, err)
		}
		if got.EpochKey != want {
			t.Fatalf("SelectNearest(%d) = %d, want %d", target, got.EpochKey, want)
		}
	}
}

func TestSelectNearestTieKeepsEarlierRecord(t *testing.T) {
	a := mustParse(t, gpsEarlier1, gpsEarlier2)
	b := mustParse(t, gpsLine1, gpsLine2)
	a.EpochKey, b.EpochKey = 21276, 21274

	got, err := SelectNearest([]TLE{a, b}, 21275)
	if err != nil {
		t.Fatalf("SelectNearest: %v", err)
	}
	if got.EpochKey != 21276 {
		t.Fatalf("tie should keep the first record, got %d", got.EpochKey)
	}
}

func TestSelectNearestEmpty(t *testing.T) {
	if _, err := SelectNearest(nil, 21275); !errors.Is(err, ErrNoTLE) {
		t.Fatalf("expected ErrNoTLE, got %v", err)
	}
}
