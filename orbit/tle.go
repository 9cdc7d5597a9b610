// Package orbit predicts GNSS satellite visibility from two-line element
// sets: it parses and selects TLEs, propagates them with SGP4 and searches
// the elevation profile seen from a ground station for rise, culmination and
// set events.
package orbit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidTLE is returned for malformed element sets.
	ErrInvalidTLE = errors.New("invalid TLE")
	// ErrNoTLE is returned when no element set is available for a satellite.
	ErrNoTLE = errors.New("no TLE available")
	// ErrPropagation is returned when SGP4 yields no usable position.
	ErrPropagation = errors.New("sgp4 propagation failed")
)

const tleLineLength = 69

// TLE is one NORAD two-line element set.
type TLE struct {
	Name  string
	Line1 string
	Line2 string

	NORAD int
	// EpochKey is the integer YYDDD read from columns 19-23 of line 1. It is
	// the selection key; the fractional day is not used for selection.
	EpochKey int
	Epoch    time.Time
}

// ParseTLE validates two element lines and extracts the identifying fields.
// Every numeric field consumed by the SGP4 initialiser is checked here so a
// malformed record is reported as an error rather than reaching it.
func ParseTLE(name, line1, line2 string) (TLE, error) {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")

	if len(line1) < tleLineLength || len(line2) < tleLineLength {
		return TLE{}, fmt.Errorf("%w: lines must be %d characters", ErrInvalidTLE, tleLineLength)
	}
	if line1[0] != '1' || line2[0] != '2' {
		return TLE{}, fmt.Errorf("%w: bad line numbers", ErrInvalidTLE)
	}
	for i, l := range []string{line1, line2} {
		if want := checksum(l); int(l[68]-'0') != want {
			return TLE{}, fmt.Errorf("%w: line %d checksum %c, want %d", ErrInvalidTLE, i+1, l[68], want)
		}
	}

	norad, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return TLE{}, fmt.Errorf("%w: catalogue number %q", ErrInvalidTLE, line1[2:7])
	}
	if n2, err := strconv.Atoi(strings.TrimSpace(line2[2:7])); err != nil || n2 != norad {
		return TLE{}, fmt.Errorf("%w: catalogue numbers differ between lines", ErrInvalidTLE)
	}

	key, err := strconv.Atoi(strings.TrimSpace(line1[18:23]))
	if err != nil {
		return TLE{}, fmt.Errorf("%w: epoch key %q", ErrInvalidTLE, line1[18:23])
	}
	days, err := strconv.ParseFloat(strings.TrimSpace(line1[20:32]), 64)
	if err != nil || days < 1 || days >= 367 {
		return TLE{}, fmt.Errorf("%w: epoch day %q", ErrInvalidTLE, line1[20:32])
	}

	if err := checkElementFields(line1, line2); err != nil {
		return TLE{}, err
	}

	return TLE{
		Name:     strings.TrimSpace(name),
		Line1:    line1,
		Line2:    line2,
		NORAD:    norad,
		EpochKey: key,
		Epoch:    epochTime(key/1000, days),
	}, nil
}

func checkElementFields(line1, line2 string) error {
	fields := []struct {
		name  string
		value string
	}{
		{"mean motion derivative", line1[33:43]},
		{"mean motion second derivative", line1[44:45] + "." + line1[45:50] + "e" + line1[50:52]},
		{"bstar", line1[53:54] + "." + line1[54:59] + "e" + line1[59:61]},
		{"inclination", line2[8:16]},
		{"right ascension", line2[17:25]},
		{"eccentricity", "." + line2[26:33]},
		{"argument of perigee", line2[34:42]},
		{"mean anomaly", line2[43:51]},
		{"mean motion", line2[52:63]},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.ReplaceAll(f.value, " ", ""), 64)
		if err != nil || math.IsNaN(v) {
			return fmt.Errorf("%w: %s %q", ErrInvalidTLE, f.name, f.value)
		}
	}
	return nil
}

func checksum(line string) int {
	sum := 0
	for _, c := range line[:68] {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

func epochTime(yy int, days float64) time.Time {
	year := 1900 + yy
	if yy < 57 {
		year = 2000 + yy
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	offset := time.Duration((days - 1) * float64(24*time.Hour))
	return start.Add(offset).Round(time.Microsecond)
}

// ReadTLEs reads a concatenation of element sets. Both the two-line form and
// the three-line form with a leading name line (optionally prefixed "0 ") are
// accepted. Blank lines are ignored.
func ReadTLEs(r io.Reader) ([]TLE, error) {
	sc := bufio.NewScanner(r)
	var (
		out     []TLE
		name    string
		pending string
		lineNo  int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r ")
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch {
		case pending == "" && strings.HasPrefix(line, "1 "):
			pending = line
		case pending != "" && strings.HasPrefix(line, "2 "):
			tle, err := ParseTLE(name, pending, line)
			if err != nil {
				return out, fmt.Errorf("line %d: %w", lineNo, err)
			}
			out = append(out, tle)
			pending, name = "", ""
		case pending != "":
			return out, fmt.Errorf("line %d: %w: line 1 not followed by line 2", lineNo, ErrInvalidTLE)
		default:
			name = strings.TrimPrefix(line, "0 ")
		}
	}
	if err := sc.Err(); err != nil {
		return out, err
	}
	if pending != "" {
		return out, fmt.Errorf("%w: truncated record at end of input", ErrInvalidTLE)
	}
	return out, nil
}

// LoadTLEFile reads every element set in path.
func LoadTLEFile(path string) ([]TLE, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tles, err := ReadTLEs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tles, nil
}

// SelectNearest returns the element set whose YYDDD key is closest to
// target. On a tie the earlier record in the slice wins.
func SelectNearest(tles []TLE, target int) (TLE, error) {
	if len(tles) == 0 {
		return TLE{}, ErrNoTLE
	}
	best := 0
	bestDiff := absInt(tles[0].EpochKey - target)
	for i := 1; i < len(tles); i++ {
		if d := absInt(tles[i].EpochKey - target); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return tles[best], nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
