package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/gnss-arcs/internal/config"
	"github.com/signalsfoundry/gnss-arcs/internal/logging"
	"github.com/signalsfoundry/gnss-arcs/internal/observability"
	"github.com/signalsfoundry/gnss-arcs/internal/runner"
	"github.com/signalsfoundry/gnss-arcs/model"
	"github.com/signalsfoundry/gnss-arcs/orbit"
	"github.com/signalsfoundry/gnss-arcs/report"
)

const observations = `time,prn,elevation,azimuth,snr
2021-10-02 00:00:00,G13,80,0,48
2021-10-02 00:00:30,G13,80,0,48
2021-10-02 00:00:30,G13,80,0,48
2021-10-02 00:01:00,G13,80,0,48
2021-10-02 00:01:30,G13,80,0,48
2021-10-02 00:00:00,E05,20,0,40
2021-10-02 00:00:30,E05,20,0,40
2021-10-02 00:01:00,E05,20,0,40
2021-10-02 00:01:30,E05,20,0,40
2021-10-02 00:00:00,G02,20,120,41
2021-10-02 00:00:30,G02,20,120,41
2021-10-02 00:01:00,G02,20,120,41
2021-10-02 00:01:30,G02,20,120,41
2021-10-02 00:00:00,G03,20,240,42
2021-10-02 00:00:30,G03,20,240,42
2021-10-02 00:01:00,G03,20,240,42
2021-10-02 00:01:30,G03,20,240,42
`

const prnMap = `constellation,svid,prn,norad,launch
G,G61,13,24876,1997-07-23
E,E211,05,40545,2015-03-27
`

const tleFile = `GPS BIIR-2  (PRN 13)
1 24876U 97035A   21274.52305433  .00000021  00000-0  00000+0 0  9994
2 24876  55.6198 126.7216 0040299  52.6371 307.7536  2.00563418177450
GPS BIIR-2  (PRN 13)
1 24876U 97035A   21275.52033897  .00000022  00000-0  00000+0 0  9998
2 24876  55.6197 126.6810 0040321  52.6590 307.7314  2.00563439177465
`

const positions = `%  GPST                  latitude(deg) longitude(deg)  height(m)   Q  ns   sdn(m)   sde(m)   sdu(m)
2021/10/02 00:00:18.000   50.798000000    4.359000000   158.5000   6   9   1.5000   1.1000   3.1000
2021/10/02 00:00:48.000   50.798000000    4.359000000   157.5000   6   9   1.5000   1.1000   3.1000
`

type project struct {
	dir string
	cfg config.Config
}

func newProject(t *testing.T) project {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	cfg := config.Default()
	cfg.Station = config.Station{Name: "BRUX", Lat: 50.798, Lon: 4.359, Height: 158, Mask: 10}
	cfg.Time.LeapSeconds = 18
	cfg.Paths = config.Paths{
		Observations: write("obs.csv", observations),
		PRNMap:       write("prn.csv", prnMap),
		TLEDir:       filepath.Dir(write("tle/24876.tle", tleFile)),
		Positions:    write("brux.pos", positions),
		OutputDir:    filepath.Join(dir, "out"),
	}
	cfg = cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return project{dir: dir, cfg: cfg}
}

func prn(t *testing.T, s string) model.PRN {
	t.Helper()
	p, err := model.ParsePRN(s)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunEndToEnd(t *testing.T) {
	p := newProject(t)
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewPipelineCollector(reg)
	if err != nil {
		t.Fatal(err)
	}

	res, err := New(p.cfg, logging.Noop(), WithMetrics(metrics)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Table.Len() != 16 {
		t.Fatalf("table rows = %d, want 16", res.Table.Len())
	}
	if got := res.ReadStats.SkippedTotal(); got != 1 {
		t.Fatalf("skipped = %d, want 1 duplicate", got)
	}
	if len(res.Reconciled) != 4 {
		t.Fatalf("reconciled PRNs = %d, want 4", len(res.Reconciled))
	}
	for i := 1; i < len(res.Reconciled); i++ {
		if !res.Reconciled[i-1].PRN.Less(res.Reconciled[i].PRN) {
			t.Fatalf("rows not in PRN order: %v then %v", res.Reconciled[i-1].PRN, res.Reconciled[i].PRN)
		}
	}

	g13 := prn(t, "G13")
	if len(res.Predicted[g13]) == 0 {
		t.Fatalf("no passes predicted for G13")
	}
	for _, row := range res.Reconciled {
		if row.PRN == g13 && !row.Predictable {
			t.Fatalf("G13 should be predictable")
		}
	}

	// One duplicate row plus three PRNs without an element set.
	if res.Warnings < 4 {
		t.Fatalf("warnings = %d, want at least 4", res.Warnings)
	}
	if got := testutil.ToFloat64(metrics.Warnings); got != float64(res.Warnings) {
		t.Fatalf("warnings metric = %v, want %d", got, res.Warnings)
	}
	if got := testutil.ToFloat64(metrics.RowsRead); got != 16 {
		t.Fatalf("rows metric = %v", got)
	}

	if len(res.Series.Anchors) == 0 || math.IsNaN(res.Series.Anchors[0].DOP.PDOP) {
		t.Fatalf("expected a defined PDOP at the first anchor: %+v", res.Series.Anchors)
	}
	if len(res.Positions) != 2 {
		t.Fatalf("positions = %d", len(res.Positions))
	}
	all := res.Statistics[len(res.Statistics)-1]
	if all.Count != 2 {
		t.Fatalf("all-bin count = %d, want 2", all.Count)
	}

	for _, name := range []string{
		report.RiseSetFile, report.ArcBarsFile, report.DOPFile, report.VisibilityFile,
		report.VisibilitySummaryFile, report.StatisticsFile, report.HistogramFile,
	} {
		if _, err := os.Stat(filepath.Join(p.cfg.Paths.OutputDir, name)); err != nil {
			t.Fatalf("output %s: %v", name, err)
		}
	}
	if len(res.Outputs) != 7 {
		t.Fatalf("outputs = %v", res.Outputs)
	}
	if count := stageSamples(t, reg, StagePredict); count != 1 {
		t.Fatalf("predict stage samples = %d", count)
	}
}

func TestMissingElementSetIsAWarning(t *testing.T) {
	p := newProject(t)
	res, err := New(p.cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ExitCode(err) != ExitOK {
		t.Fatalf("exit code = %d", ExitCode(err))
	}

	e05 := prn(t, "E05")
	found := false
	for _, r := range res.Reconciled {
		if r.PRN != e05 {
			continue
		}
		found = true
		if r.Predictable || len(r.Predicted) != 0 {
			t.Fatalf("E05 should have no prediction: %+v", r)
		}
		if len(r.Slots) != 1 {
			t.Fatalf("E05 slots = %d, want 1", len(r.Slots))
		}
		s := r.Slots[0]
		if s.Observed == nil || s.Predicted != nil || s.PredictedCount != 0 || !math.IsNaN(s.Completeness) {
			t.Fatalf("E05 slot should be observed-only: %+v", s)
		}
		if s.ObservedCount != 4 {
			t.Fatalf("E05 observed count = %d", s.ObservedCount)
		}
	}
	if !found {
		t.Fatalf("E05 missing from the reconciliation")
	}
}

func TestRunWithoutElementSets(t *testing.T) {
	p := newProject(t)
	p.cfg.Paths.TLEDir = ""
	p.cfg.Paths.PRNMap = ""
	p.cfg.Paths.Positions = ""
	res, err := New(p.cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Predicted) != 0 || res.Warnings != 2 {
		t.Fatalf("predicted=%d warnings=%d", len(res.Predicted), res.Warnings)
	}
	if len(res.Outputs) != 5 {
		t.Fatalf("outputs = %v", res.Outputs)
	}
}

func TestCheckInputs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		code   int
	}{
		{"missing observations", func(c *config.Config) { c.Paths.Observations += ".gone" }, ExitInputMissing},
		{"tle dir without map", func(c *config.Config) { c.Paths.PRNMap = "" }, ExitArgCombination},
		{"missing tle dir", func(c *config.Config) { c.Paths.TLEDir += "-gone" }, ExitInputDir},
		{"missing positions", func(c *config.Config) { c.Paths.Positions += ".gone" }, ExitInputMissing},
		{"weighted mean without positions", func(c *config.Config) {
			c.Paths.Positions = ""
			c.Stats.Reference = config.ReferenceWeightedMean
		}, ExitArgCombination},
	}
	for _, tc := range cases {
		p := newProject(t)
		tc.mutate(&p.cfg)
		_, err := New(p.cfg, nil).Run(context.Background())
		if got := ExitCode(err); got != tc.code {
			t.Fatalf("%s: exit code %d, want %d (err %v)", tc.name, got, tc.code, err)
		}
		if _, statErr := os.Stat(p.cfg.Paths.OutputDir); statErr == nil {
			t.Fatalf("%s: output directory created on failure", tc.name)
		}
	}
}

func TestInvalidStationMarker(t *testing.T) {
	p := newProject(t)
	p.cfg.Station.Lat = 95
	_, err := New(p.cfg, nil).Run(context.Background())
	if !errors.Is(err, ErrInvalidOption) || ExitCode(err) != ExitInvalidOption {
		t.Fatalf("expected invalid option, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	p := newProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(p.cfg, nil).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, statErr := os.Stat(p.cfg.Paths.OutputDir); statErr == nil {
		t.Fatalf("output directory created after cancellation")
	}
}

func TestExitCode(t *testing.T) {
	cases := map[int]error{
		ExitOK:             nil,
		ExitInputMissing:   fmt.Errorf("x: %w", orbit.ErrInvalidTLE),
		ExitBinaryNotFound: fmt.Errorf("x: %w", runner.ErrBinaryNotFound),
		ExitInvalidOption:  ErrInvalidOption,
		ExitInvalidConfig:  fmt.Errorf("f: %w", config.ErrInvalid),
		ExitSignalMismatch: runner.ErrSignalMismatch,
		ExitInputDir:       ErrInputDirMissing,
		ExitArgCombination: ErrArgCombination,
		ExitConverter:      runner.ErrConverterFailed,
		ExitSpawn:          runner.ErrSpawn,
		ExitGeneric:        errors.New("boom"),
	}
	for want, err := range cases {
		if got := ExitCode(err); got != want {
			t.Fatalf("ExitCode(%v) = %d, want %d", err, got, want)
		}
	}
}

func rinexHeader(types string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-60s%s\n", "     3.04           OBSERVATION DATA    M", "RINEX VERSION / TYPE")
	fmt.Fprintf(&b, "%-60s%s\n", types, "SYS / # / OBS TYPES")
	fmt.Fprintf(&b, "%-60s%s\n", "", "END OF HEADER")
	return b.String()
}

func fakeConverter(t *testing.T, dir, header string) string {
	t.Helper()
	hdr := filepath.Join(dir, "header.rnx")
	if err := os.WriteFile(hdr, []byte(header), 0o644); err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(dir, "fake-sbf2rin")
	body := fmt.Sprintf("#!/bin/sh\nwhile [ $# -gt 0 ]; do\n  if [ \"$1\" = \"-o\" ]; then out=\"$2\"; fi\n  shift\ndone\ncp %q \"$out\"\n", hdr)
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

func TestConvertChecksSignals(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "day.sbf")
	if err := os.WriteFile(in, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := runner.New(nil)
	r.Binaries = map[string]string{runner.ToolSBF2RIN: fakeConverter(t, dir, rinexHeader("G    2 C1C L1C"))}

	req := ConvertRequest{
		Format:    FormatSBF,
		Inputs:    []string{in},
		OutputDir: filepath.Join(dir, "rinex"),
		Signals:   map[model.Constellation][]string{model.GPS: {"C1C"}},
	}
	out, err := Convert(context.Background(), r, req)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if filepath.Base(out) != "day.rnx" {
		t.Fatalf("output = %s", out)
	}

	req.Signals = map[model.Constellation][]string{model.GPS: {"C2W"}}
	_, err = Convert(context.Background(), r, req)
	if ExitCode(err) != ExitSignalMismatch {
		t.Fatalf("expected signal mismatch, got %v", err)
	}

	req.Format = "rtcm"
	if _, err := Convert(context.Background(), r, req); ExitCode(err) != ExitInvalidOption {
		t.Fatalf("expected invalid option, got %v", err)
	}
	req.Inputs = []string{filepath.Join(dir, "missing.sbf")}
	if _, err := Convert(context.Background(), r, req); ExitCode(err) != ExitInputMissing {
		t.Fatalf("expected missing input, got %v", err)
	}
}

func TestPositionValidatesEngineArguments(t *testing.T) {
	dir := t.TempDir()
	obsFile := filepath.Join(dir, "day.rnx")
	if err := os.WriteFile(obsFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := runner.New(nil)
	_, err := Position(context.Background(), r, PositionRequest{Engine: EngineRTKLIB, Obs: obsFile, Output: filepath.Join(dir, "out.pos")})
	if ExitCode(err) != ExitArgCombination {
		t.Fatalf("rtklib without nav: %v", err)
	}
	_, err = Position(context.Background(), r, PositionRequest{Engine: EngineGLAB, Obs: obsFile})
	if ExitCode(err) != ExitArgCombination {
		t.Fatalf("glab without config: %v", err)
	}
	r.Binaries = map[string]string{runner.ToolGLAB: "gnssarc-no-such-glab"}
	_, err = Position(context.Background(), r, PositionRequest{Engine: EngineGLAB, Obs: obsFile, Config: obsFile, Output: filepath.Join(dir, "out.txt")})
	if ExitCode(err) != ExitBinaryNotFound {
		t.Fatalf("missing glab: %v", err)
	}
}

func stageSamples(t *testing.T, reg *prometheus.Registry, stage string) uint64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "gnss_stage_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "stage" && lp.GetValue() == stage {
					return m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return 0
}
