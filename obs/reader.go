package obs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/gnss-arcs/model"
)

var (
	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("missing column")
	// ErrEmptyTable is returned when no usable rows remain.
	ErrEmptyTable = errors.New("empty observation table")
)

// SkipReason classifies a row dropped for data-consistency reasons.
type SkipReason string

const (
	SkipMalformed SkipReason = "malformed"
	SkipElevation SkipReason = "elevation"
	SkipDuplicate SkipReason = "duplicate"
	SkipOrder     SkipReason = "order"
	SkipDate      SkipReason = "date"
)

// Issue describes one skipped row.
type Issue struct {
	Line   int
	PRN    string
	Epoch  time.Time
	Reason SkipReason
	Err    error
}

func (i Issue) Error() string {
	return fmt.Sprintf("line %d: %s: %v", i.Line, i.Reason, i.Err)
}

// ReadOptions tunes ReadTable.
type ReadOptions struct {
	// OnSkip is called for every dropped row.
	OnSkip func(Issue)
	// Comma overrides the field separator; 0 auto-detects ',' ';' or tab
	// from the header line.
	Comma rune
}

// ReadStats counts what ReadTable saw.
type ReadStats struct {
	Read    int
	Skipped map[SkipReason]int
}

// SkippedTotal sums the skip counters.
func (s ReadStats) SkippedTotal() int {
	n := 0
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

type column int

const (
	colTime column = iota
	colPRN
	colElevation
	colAzimuth
	colSNR
	colResidual
	numColumns
)

var columnAliases = map[string]column{
	"time": colTime, "epoch": colTime, "utc": colTime, "datetime": colTime, "date_time": colTime,
	"prn": colPRN, "sv": colPRN, "sat": colPRN, "satellite": colPRN,
	"elevation": colElevation, "elev": colElevation, "el": colElevation, "ele": colElevation,
	"azimuth": colAzimuth, "azi": colAzimuth, "az": colAzimuth,
	"snr": colSNR, "cn0": colSNR, "c/n0": colSNR,
	"residual": colResidual, "res": colResidual, "prres": colResidual, "pr_residual": colResidual,
}

var requiredColumns = []struct {
	col  column
	name string
}{
	{colTime, "time"}, {colPRN, "prn"}, {colElevation, "elevation"}, {colAzimuth, "azimuth"},
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006/01/02 15:04:05.999999999",
}

// ReadTable parses an observation table. Rows that violate data
// consistency (unparsable fields, elevation outside [-90, 90], duplicate or
// decreasing epochs within a PRN, a second UTC date) are skipped and
// reported through opts.OnSkip; the rest are returned sorted by (PRN, epoch)
// with microsecond-resolution epochs.
func ReadTable(r io.Reader, opts ReadOptions) (*Table, ReadStats, error) {
	stats := ReadStats{Skipped: make(map[SkipReason]int)}

	text, err := io.ReadAll(r)
	if err != nil {
		return nil, stats, err
	}
	comma := opts.Comma
	if comma == 0 {
		comma = detectComma(text)
	}

	cr := csv.NewReader(strings.NewReader(string(text)))
	cr.Comma = comma
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	header, err := cr.Read()
	if err == io.EOF {
		return nil, stats, ErrEmptyTable
	}
	if err != nil {
		return nil, stats, err
	}
	idx, err := mapHeader(header)
	if err != nil {
		return nil, stats, err
	}

	skip := func(is Issue) {
		stats.Skipped[is.Reason]++
		if opts.OnSkip != nil {
			opts.OnSkip(is)
		}
	}

	var (
		rows []model.ObservationRow
		last = make(map[model.PRN]time.Time)
		date time.Time
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skip(Issue{Line: perr.Line, Reason: SkipMalformed, Err: err})
				continue
			}
			return nil, stats, err
		}
		stats.Read++
		line, _ := cr.FieldPos(0)

		row, err := parseRow(rec, idx)
		if err != nil {
			skip(Issue{Line: line, Reason: SkipMalformed, Err: err})
			continue
		}
		is := Issue{Line: line, PRN: row.PRN.String(), Epoch: row.Epoch}

		if row.Elevation < -90 || row.Elevation > 90 {
			is.Reason, is.Err = SkipElevation, fmt.Errorf("elevation %v out of range", row.Elevation)
			skip(is)
			continue
		}
		y, m, d := row.Epoch.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		if date.IsZero() {
			date = day
		} else if !day.Equal(date) {
			is.Reason, is.Err = SkipDate, fmt.Errorf("epoch outside %s", date.Format(time.DateOnly))
			skip(is)
			continue
		}
		if prev, ok := last[row.PRN]; ok {
			switch {
			case row.Epoch.Equal(prev):
				is.Reason, is.Err = SkipDuplicate, errors.New("duplicate epoch")
				skip(is)
				continue
			case row.Epoch.Before(prev):
				is.Reason, is.Err = SkipOrder, fmt.Errorf("epoch precedes %s", prev.Format(time.RFC3339Nano))
				skip(is)
				continue
			}
		}
		last[row.PRN] = row.Epoch
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, stats, ErrEmptyTable
	}
	t := NewTable(rows)
	return t, stats, nil
}

// ReadTableFile opens path and calls ReadTable.
func ReadTableFile(path string, opts ReadOptions) (*Table, ReadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ReadStats{}, err
	}
	defer f.Close()
	t, stats, err := ReadTable(f, opts)
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", path, err)
	}
	return t, stats, nil
}

func detectComma(text []byte) rune {
	end := len(text)
	for i, b := range text {
		if b == '\n' {
			end = i
			break
		}
	}
	header := string(text[:end])
	switch {
	case strings.Contains(header, ","):
		return ','
	case strings.Contains(header, ";"):
		return ';'
	case strings.Contains(header, "\t"):
		return '\t'
	default:
		return ','
	}
}

func mapHeader(header []string) ([numColumns]int, error) {
	var idx [numColumns]int
	for i := range idx {
		idx[i] = -1
	}
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if c, ok := columnAliases[key]; ok && idx[c] < 0 {
			idx[c] = i
		}
	}
	for _, req := range requiredColumns {
		if idx[req.col] < 0 {
			return idx, fmt.Errorf("%w: %s", ErrMissingColumn, req.name)
		}
	}
	return idx, nil
}

func parseRow(rec []string, idx [numColumns]int) (model.ObservationRow, error) {
	field := func(c column) string {
		i := idx[c]
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	epoch, err := parseEpoch(field(colTime))
	if err != nil {
		return model.ObservationRow{}, err
	}
	prn, err := model.ParsePRN(field(colPRN))
	if err != nil {
		return model.ObservationRow{}, err
	}
	el, err := strconv.ParseFloat(field(colElevation), 64)
	if err != nil || math.IsNaN(el) {
		return model.ObservationRow{}, fmt.Errorf("invalid elevation %q", field(colElevation))
	}
	az, err := strconv.ParseFloat(field(colAzimuth), 64)
	if err != nil || math.IsNaN(az) || math.IsInf(az, 0) {
		return model.ObservationRow{}, fmt.Errorf("invalid azimuth %q", field(colAzimuth))
	}
	snr, err := optionalFloat(field(colSNR))
	if err != nil {
		return model.ObservationRow{}, fmt.Errorf("invalid snr: %w", err)
	}
	res, err := optionalFloat(field(colResidual))
	if err != nil {
		return model.ObservationRow{}, fmt.Errorf("invalid residual: %w", err)
	}

	return model.ObservationRow{
		Epoch:     epoch,
		PRN:       prn,
		Elevation: el,
		Azimuth:   normaliseAzimuth(az),
		SNR:       snr,
		Residual:  res,
	}, nil
}

func parseEpoch(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid epoch %q", s)
}

func optionalFloat(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "", "nan", "na", "-":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func normaliseAzimuth(az float64) float64 {
	az = math.Mod(az, 360)
	if az < 0 {
		az += 360
	}
	if az >= 360 {
		az = 0
	}
	return az
}
