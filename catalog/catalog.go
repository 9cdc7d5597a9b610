// Package catalog joins satellite PRNs to their NORAD catalogue numbers and
// to the element sets stored on disk, one file per NORAD number.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/signalsfoundry/gnss-arcs/model"
	"github.com/signalsfoundry/gnss-arcs/orbit"
)

var (
	// ErrNoMapping is returned when a PRN has no NORAD mapping.
	ErrNoMapping = errors.New("no PRN mapping")
	// ErrDuplicate is returned when a PRN is mapped twice.
	ErrDuplicate = errors.New("duplicate PRN mapping")
)

// TLE files are looked up as <dir>/<norad><ext> for each of these.
var tleExtensions = []string{".tle", ".txt", ""}

// Entry is one row of the PRN-to-NORAD mapping.
type Entry struct {
	System model.Constellation
	SVID   string
	PRN    model.PRN
	NORAD  int
	Launch time.Time
}

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	EventTLELoaded EventType = iota
	EventTLEMissing
)

// Event is emitted to subscribers when element sets are resolved for a PRN.
type Event struct {
	Type  EventType
	PRN   model.PRN
	NORAD int
	Count int
	Path  string
}

// Catalog is a thread-safe store for the PRN mapping and cached element sets.
type Catalog struct {
	mu sync.RWMutex

	byPRN  map[model.PRN]Entry
	tles   map[int][]orbit.TLE
	tleDir string

	subs []func(Event)
}

// New constructs an empty catalog reading element sets from tleDir.
func New(tleDir string) *Catalog {
	return &Catalog{
		byPRN:  make(map[model.PRN]Entry),
		tles:   make(map[int][]orbit.TLE),
		tleDir: tleDir,
	}
}

// Add registers a mapping entry. It returns ErrDuplicate if the PRN exists.
func (c *Catalog) Add(e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byPRN[e.PRN]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, e.PRN)
	}
	c.byPRN[e.PRN] = e
	return nil
}

// Lookup returns the mapping for a PRN.
func (c *Catalog) Lookup(prn model.PRN) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.byPRN[prn]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNoMapping, prn)
	}
	return e, nil
}

// Len returns the number of mapped PRNs.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byPRN)
}

// AddTLEs caches element sets for a NORAD number, bypassing the directory.
func (c *Catalog) AddTLEs(norad int, tles []orbit.TLE) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tles[norad] = append([]orbit.TLE(nil), tles...)
}

// TLEs returns the element sets for a PRN in file order, reading and caching
// the NORAD file on first use. A PRN with no mapping or no file yields an
// error wrapping orbit.ErrNoTLE.
func (c *Catalog) TLEs(prn model.PRN) ([]orbit.TLE, error) {
	entry, err := c.Lookup(prn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", orbit.ErrNoTLE, err)
	}

	c.mu.RLock()
	cached, ok := c.tles[entry.NORAD]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	path, found := c.tlePath(entry.NORAD)
	if !found {
		c.notify(Event{Type: EventTLEMissing, PRN: prn, NORAD: entry.NORAD})
		return nil, fmt.Errorf("%w: %s (NORAD %d) in %s", orbit.ErrNoTLE, prn, entry.NORAD, c.tleDir)
	}
	tles, err := orbit.LoadTLEFile(path)
	if err != nil {
		return nil, err
	}
	if len(tles) == 0 {
		c.notify(Event{Type: EventTLEMissing, PRN: prn, NORAD: entry.NORAD, Path: path})
		return nil, fmt.Errorf("%w: %s is empty", orbit.ErrNoTLE, path)
	}

	c.mu.Lock()
	c.tles[entry.NORAD] = tles
	c.mu.Unlock()

	c.notify(Event{Type: EventTLELoaded, PRN: prn, NORAD: entry.NORAD, Count: len(tles), Path: path})
	return tles, nil
}

// Nearest returns the element set for a PRN closest to the YYDDD target.
func (c *Catalog) Nearest(prn model.PRN, target int) (orbit.TLE, error) {
	tles, err := c.TLEs(prn)
	if err != nil {
		return orbit.TLE{}, err
	}
	return orbit.SelectNearest(tles, target)
}

func (c *Catalog) tlePath(norad int) (string, bool) {
	if c.tleDir == "" {
		return "", false
	}
	for _, ext := range tleExtensions {
		p := filepath.Join(c.tleDir, strconv.Itoa(norad)+ext)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, true
		}
	}
	return "", false
}

// Subscribe registers a callback for catalog events. It returns an
// unsubscribe function.
func (c *Catalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
	idx := len(c.subs) - 1

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < 0 || idx >= len(c.subs) {
			return
		}
		c.subs[idx] = nil
		idx = -1
	}
}

func (c *Catalog) notify(ev Event) {
	c.mu.RLock()
	subs := append([]func(Event){}, c.subs...)
	c.mu.RUnlock()

	// Callbacks run outside the lock so they may call back into the catalog.
	for _, sub := range subs {
		if sub != nil {
			sub(ev)
		}
	}
}

// LoadMapping reads the five-column PRN mapping CSV: constellation letter,
// SV-ID, PRN, NORAD number, launch date. A leading header row is skipped.
// The PRN column may hold a bare number or a full label such as "E05".
func (c *Catalog) LoadMapping(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line++
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < 5 {
			return fmt.Errorf("mapping line %d: expected 5 columns, got %d", line, len(rec))
		}
		if line == 1 && !isNumber(rec[3]) {
			continue
		}
		entry, err := parseEntry(rec)
		if err != nil {
			return fmt.Errorf("mapping line %d: %w", line, err)
		}
		if err := c.Add(entry); err != nil {
			return fmt.Errorf("mapping line %d: %w", line, err)
		}
	}
}

// LoadMappingFile reads the mapping CSV at path.
func (c *Catalog) LoadMappingFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := c.LoadMapping(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

var launchLayouts = []string{"2006-01-02", "2006/01/02", "02/01/2006", "2006-01-02T15:04:05Z07:00"}

func parseEntry(rec []string) (Entry, error) {
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	sys, err := model.ParseConstellation(strings.ToUpper(rec[0]))
	if err != nil {
		return Entry{}, err
	}

	label := rec[2]
	if isNumber(label) {
		label = sys.Letter() + label
	}
	prn, err := model.ParsePRN(label)
	if err != nil {
		return Entry{}, err
	}
	if prn.System != sys {
		return Entry{}, fmt.Errorf("PRN %s does not belong to %s", prn, sys)
	}

	norad, err := strconv.Atoi(rec[3])
	if err != nil || norad <= 0 {
		return Entry{}, fmt.Errorf("invalid NORAD number %q", rec[3])
	}

	var launch time.Time
	if rec[4] != "" {
		for _, layout := range launchLayouts {
			if t, err := time.Parse(layout, rec[4]); err == nil {
				launch = t.UTC()
				break
			}
		}
		if launch.IsZero() {
			return Entry{}, fmt.Errorf("invalid launch date %q", rec[4])
		}
	}

	return Entry{System: sys, SVID: rec[1], PRN: prn, NORAD: norad, Launch: launch}, nil
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(s))
	return err == nil
}
