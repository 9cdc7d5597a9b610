package obs

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/gnss-arcs/geodesy"
	"github.com/signalsfoundry/gnss-arcs/gpstime"
)

var nan = math.NaN()

// Position is one epoch of a receiver solution, with the per-axis standard
// deviations reported by the positioning engine (NaN when absent).
type Position struct {
	Epoch   time.Time // UTC
	LLA     geodesy.LLA
	UTM     geodesy.UTM
	Quality int
	NumSats int

	SdN, SdE, SdU float64
}

// PositionOptions controls ReadPositions.
type PositionOptions struct {
	// LeapSeconds converts GPST solution epochs to UTC.
	LeapSeconds int
	// Zone forces every position into one UTM zone; 0 uses the zone of the
	// first position.
	Zone int
}

// ReadPositions parses an RTKLIB-style solution file with geodetic output:
// '%' header lines, then "yyyy/mm/dd hh:mm:ss.sss lat lon h Q ns sdn sde sdu
// ..." or "week tow lat lon h Q ns ...". Epochs are GPST unless the header
// names UTC.
func ReadPositions(r io.Reader, opts PositionOptions) ([]Position, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		out    []Position
		isUTC  bool
		zone   = opts.Zone
		lineNo int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "%") {
			if strings.Contains(line, "UTC") && strings.Contains(line, "latitude") {
				isUTC = true
			}
			continue
		}

		fields := strings.Fields(line)
		epoch, rest, err := parseSolutionTime(fields, isUTC, opts.LeapSeconds)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		vals, err := parseFloats(rest)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(vals) < 3 {
			return nil, fmt.Errorf("line %d: expected lat lon height", lineNo)
		}

		p := Position{
			Epoch: epoch,
			LLA:   geodesy.LLA{Lat: vals[0], Lon: vals[1], Alt: vals[2]},
			SdN:   nan,
			SdE:   nan,
			SdU:   nan,
		}
		if len(vals) >= 5 {
			p.Quality = int(vals[3])
			p.NumSats = int(vals[4])
		}
		if len(vals) >= 8 {
			p.SdN, p.SdE, p.SdU = vals[5], vals[6], vals[7]
		}

		if zone == 0 {
			zone = geodesy.UTMZone(p.LLA.Lat, p.LLA.Lon)
		}
		p.UTM, err = geodesy.LLAToUTMZone(p.LLA.Lat, p.LLA.Lon, p.LLA.Alt, zone)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadPositionsFile opens path and calls ReadPositions.
func ReadPositionsFile(path string, opts PositionOptions) ([]Position, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ps, err := ReadPositions(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ps, nil
}

func parseSolutionTime(fields []string, isUTC bool, leap int) (time.Time, []string, error) {
	if len(fields) < 2 {
		return time.Time{}, nil, fmt.Errorf("truncated solution line")
	}
	if strings.Contains(fields[0], "/") {
		t, err := time.Parse("2006/01/02 15:04:05.999999999", fields[0]+" "+fields[1])
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("invalid solution time: %w", err)
		}
		if !isUTC {
			t = t.Add(-time.Duration(leap) * time.Second)
		}
		return t.Truncate(time.Microsecond), fields[2:], nil
	}

	week, err := strconv.Atoi(fields[0])
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("invalid GPS week %q", fields[0])
	}
	sow, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("invalid time of week %q", fields[1])
	}
	if isUTC {
		leap = 0
	}
	t, err := gpstime.ToTime(week, sow, leap)
	if err != nil {
		return time.Time{}, nil, err
	}
	return t.Truncate(time.Microsecond), fields[2:], nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}
