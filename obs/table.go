// Package obs reads the per-epoch observation table and receiver position
// series consumed by the arc and statistics kernels.
package obs

import (
	"slices"
	"time"

	"github.com/signalsfoundry/gnss-arcs/model"
)

// Table is a day of observation rows stable-sorted by (PRN, epoch). Epochs
// within a PRN are strictly increasing and share one UTC date.
type Table struct {
	Rows []model.ObservationRow
	// Date is midnight UTC of the table's day.
	Date time.Time
}

// PRNRows is the run of rows belonging to one satellite.
type PRNRows struct {
	PRN  model.PRN
	Rows []model.ObservationRow
}

// EpochRows is the set of satellites observed at one epoch.
type EpochRows struct {
	Epoch time.Time
	Rows  []model.ObservationRow
}

// NewTable sorts rows by (PRN, epoch) and returns a table over them.
func NewTable(rows []model.ObservationRow) *Table {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b model.ObservationRow) int {
		if c := model.ComparePRN(a.PRN, b.PRN); c != 0 {
			return c
		}
		return a.Epoch.Compare(b.Epoch)
	})
	t := &Table{Rows: sorted}
	if len(sorted) > 0 {
		y, m, d := sorted[0].Epoch.UTC().Date()
		t.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// ByPRN splits the table into per-satellite runs in PRN order. The row
// slices alias the table.
func (t *Table) ByPRN() []PRNRows {
	var out []PRNRows
	start := 0
	for i := 1; i <= len(t.Rows); i++ {
		if i == len(t.Rows) || t.Rows[i].PRN != t.Rows[start].PRN {
			out = append(out, PRNRows{PRN: t.Rows[start].PRN, Rows: t.Rows[start:i]})
			start = i
		}
	}
	return out
}

// PRNs returns the satellites present, sorted.
func (t *Table) PRNs() []model.PRN {
	groups := t.ByPRN()
	out := make([]model.PRN, len(groups))
	for i, g := range groups {
		out[i] = g.PRN
	}
	return out
}

// ByEpoch regroups the table by epoch in chronological order; rows inside
// an epoch stay in PRN order.
func (t *Table) ByEpoch() []EpochRows {
	idx := make(map[time.Time]int)
	var out []EpochRows
	for _, r := range t.Rows {
		key := r.Epoch.UTC()
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, EpochRows{Epoch: key})
		}
		out[i].Rows = append(out[i].Rows, r)
	}
	slices.SortFunc(out, func(a, b EpochRows) int { return a.Epoch.Compare(b.Epoch) })
	return out
}

// NominalInterval returns the modal spacing between consecutive epochs of
// the same PRN. Ties resolve to the smaller spacing. A table where no PRN
// has two rows yields 0.
func (t *Table) NominalInterval() time.Duration {
	counts := make(map[time.Duration]int)
	for i := 1; i < len(t.Rows); i++ {
		if t.Rows[i].PRN != t.Rows[i-1].PRN {
			continue
		}
		if d := t.Rows[i].Epoch.Sub(t.Rows[i-1].Epoch); d > 0 {
			counts[d]++
		}
	}
	var (
		best  time.Duration
		bestN int
	)
	for d, n := range counts {
		if n > bestN || (n == bestN && d < best) {
			best, bestN = d, n
		}
	}
	return best
}

// FilterElevation returns a table holding the rows at or above cutoff
// degrees.
func (t *Table) FilterElevation(cutoff float64) *Table {
	out := &Table{Date: t.Date, Rows: make([]model.ObservationRow, 0, len(t.Rows))}
	for _, r := range t.Rows {
		if r.Elevation >= cutoff {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// FilterSystems keeps the rows whose constellation is in systems. An empty
// set keeps everything.
func (t *Table) FilterSystems(systems []model.Constellation) *Table {
	if len(systems) == 0 {
		return t
	}
	out := &Table{Date: t.Date, Rows: make([]model.ObservationRow, 0, len(t.Rows))}
	for _, r := range t.Rows {
		if slices.Contains(systems, r.PRN.System) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}
