// Package report serialises the run results: CSV tables written atomically
// into the output directory and an optional InfluxDB sink.
package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/gnss-arcs/arcs"
	"github.com/signalsfoundry/gnss-arcs/dop"
	"github.com/signalsfoundry/gnss-arcs/model"
)

// Output file names.
const (
	RiseSetFile           = "risesettimes.csv"
	ArcBarsFile           = "arcbars.csv"
	StatisticsFile        = "statistics.csv"
	HistogramFile         = "histogram.csv"
	VisibilityFile        = "visibility.csv"
	VisibilitySummaryFile = "visibility_summary.csv"
	DOPFile               = "dop.csv"
)

const (
	listSep   = ";"
	absent    = "-"
	clockForm = "15:04:05"
)

// Writer writes CSV tables into Dir.
type Writer struct {
	Dir string
}

// NewWriter returns a writer for dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{Dir: dir}, nil
}

// writeAtomic writes name through a temporary file in the same directory
// and renames it into place once complete. The temporary file is removed on
// every failure path.
func (w *Writer) writeAtomic(name string, fill func(cw *csv.Writer) error) (path string, err error) {
	path = filepath.Join(w.Dir, name)
	tmp, err := os.CreateTemp(w.Dir, "."+name+".tmp-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	cw := csv.NewWriter(tmp)
	if err = fill(cw); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	cw.Flush()
	if err = cw.Error(); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if err = tmp.Sync(); err != nil {
		return "", err
	}
	if err = tmp.Close(); err != nil {
		return "", err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// RiseSet writes one row per PRN with slot-aligned lists: observed rise and
// set, predicted rise, set and culmination, and the per-slot counts and
// completeness. Absent entries are "-".
func (w *Writer) RiseSet(rows []arcs.PRNReconciliation) (string, error) {
	return w.writeAtomic(RiseSetFile, func(cw *csv.Writer) error {
		if err := cw.Write([]string{
			"prn", "obs_rise", "obs_set", "pred_rise", "pred_set", "pred_culminate",
			"obs_count", "pred_count", "completeness",
		}); err != nil {
			return err
		}
		for _, r := range rows {
			var oRise, oSet, pRise, pSet, pCul, oCnt, pCnt, comp []string
			for _, s := range r.Slots {
				if s.Observed != nil {
					oRise = append(oRise, clock(s.Observed.Rise))
					oSet = append(oSet, clock(s.Observed.Set))
				} else {
					oRise, oSet = append(oRise, absent), append(oSet, absent)
				}
				if s.Predicted != nil {
					pRise = append(pRise, clock(s.Predicted.Rise))
					pSet = append(pSet, clock(s.Predicted.Set))
					if s.Predicted.HasCulminate() {
						pCul = append(pCul, clock(s.Predicted.Culminate))
					} else {
						pCul = append(pCul, absent)
					}
				} else {
					pRise, pSet, pCul = append(pRise, absent), append(pSet, absent), append(pCul, absent)
				}
				oCnt = append(oCnt, strconv.Itoa(s.ObservedCount))
				pCnt = append(pCnt, strconv.Itoa(s.PredictedCount))
				comp = append(comp, formatFloat(s.Completeness))
			}
			if err := cw.Write([]string{
				r.PRN.String(), join(oRise), join(oSet), join(pRise), join(pSet), join(pCul),
				join(oCnt), join(pCnt), join(comp),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ArcBars writes one row per PRN with 3*maxArcs columns grouped as
// (observed, predicted, completeness) per slot, NaN where a slot is empty.
func (w *Writer) ArcBars(rows []arcs.PRNReconciliation) (string, error) {
	maxArcs := arcs.MaxArcs(rows)
	return w.writeAtomic(ArcBarsFile, func(cw *csv.Writer) error {
		header := []string{"prn"}
		for i := range maxArcs {
			header = append(header,
				fmt.Sprintf("obs_count_%d", i),
				fmt.Sprintf("pred_count_%d", i),
				fmt.Sprintf("completeness_%d", i))
		}
		if err := cw.Write(header); err != nil {
			return err
		}
		nan := formatFloat(math.NaN())
		for _, r := range rows {
			rec := []string{r.PRN.String()}
			for i := range maxArcs {
				if i >= len(r.Slots) {
					rec = append(rec, nan, nan, nan)
					continue
				}
				s := r.Slots[i]
				rec = append(rec, strconv.Itoa(s.ObservedCount), strconv.Itoa(s.PredictedCount), formatFloat(s.Completeness))
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Statistics writes one row per PDOP bin.
func (w *Writer) Statistics(stats []dop.BinStats) (string, error) {
	return w.writeAtomic(StatisticsFile, func(cw *csv.Writer) error {
		header := []string{"bin", "fraction", "count"}
		for _, axis := range []string{"east", "north", "up"} {
			for _, s := range []string{"mean", "weighted_mean", "median", "std", "min", "max"} {
				header = append(header, axis+"_"+s)
			}
		}
		if err := cw.Write(header); err != nil {
			return err
		}
		for _, b := range stats {
			rec := []string{b.Bin.Label, formatFloat(b.Fraction), strconv.Itoa(b.Count)}
			for _, a := range []dop.AxisStats{b.East, b.North, b.Up} {
				rec = append(rec,
					formatFloat(a.Mean), formatFloat(a.WeightedMean), formatFloat(a.Median),
					formatFloat(a.Std), formatFloat(a.Min), formatFloat(a.Max))
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Histogram writes the offset histogram, one row per grid cell.
func (w *Writer) Histogram(h dop.Histogram) (string, error) {
	return w.writeAtomic(HistogramFile, func(cw *csv.Writer) error {
		if err := cw.Write([]string{"lower", "upper", "east", "north", "up"}); err != nil {
			return err
		}
		for i := 0; i+1 < len(h.Edges); i++ {
			rec := []string{
				formatFloat(h.Edges[i]), formatFloat(h.Edges[i+1]),
				formatCount(h.East, i), formatCount(h.North, i), formatCount(h.Up, i),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Visibility writes the per-epoch satellite counts and their summary.
func (w *Writer) Visibility(counts []dop.EpochCount, summary []dop.CountSummary) ([]string, error) {
	var systems []model.Constellation
	for _, c := range counts {
		for sys := range c.BySystem {
			if !slices.Contains(systems, sys) {
				systems = append(systems, sys)
			}
		}
	}
	slices.Sort(systems)

	perEpoch, err := w.writeAtomic(VisibilityFile, func(cw *csv.Writer) error {
		header := []string{"epoch", "total"}
		for _, sys := range systems {
			header = append(header, sys.Letter())
		}
		if err := cw.Write(header); err != nil {
			return err
		}
		for _, c := range counts {
			rec := []string{c.Epoch.UTC().Format(time.RFC3339Nano), strconv.Itoa(c.Total)}
			for _, sys := range systems {
				rec = append(rec, strconv.Itoa(c.BySystem[sys]))
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sum, err := w.writeAtomic(VisibilitySummaryFile, func(cw *csv.Writer) error {
		if err := cw.Write([]string{"system", "min", "mean", "max"}); err != nil {
			return err
		}
		for _, s := range summary {
			if err := cw.Write([]string{s.System, formatFloat(s.Min), formatFloat(s.Mean), formatFloat(s.Max)}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return []string{perEpoch}, err
	}
	return []string{perEpoch, sum}, nil
}

// DOP writes the anchor epochs of a DOP series.
func (w *Writer) DOP(s dop.Series) (string, error) {
	return w.writeAtomic(DOPFile, func(cw *csv.Writer) error {
		if err := cw.Write([]string{"epoch", "nsat", "gdop", "pdop", "hdop", "vdop", "tdop"}); err != nil {
			return err
		}
		for _, a := range s.Anchors {
			d := a.DOP
			rec := []string{
				a.Epoch.UTC().Format(time.RFC3339Nano), strconv.Itoa(d.NumSats),
				formatFloat(d.GDOP), formatFloat(d.PDOP), formatFloat(d.HDOP), formatFloat(d.VDOP), formatFloat(d.TDOP),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func clock(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond() != 0 {
		return t.Format("15:04:05.000000")
	}
	return t.Format(clockForm)
}

func join(items []string) string { return strings.Join(items, listSep) }

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatCount(counts []float64, i int) string {
	if i >= len(counts) {
		return "0"
	}
	return strconv.FormatFloat(counts[i], 'f', 0, 64)
}
