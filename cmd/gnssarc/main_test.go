package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/gnss-arcs/internal/pipeline"
	"github.com/signalsfoundry/gnss-arcs/report"
)

const observations = `time,prn,elevation,azimuth,snr
2021-10-02 00:00:00,G13,80,0,48
2021-10-02 00:00:30,G13,80,0,48
2021-10-02 00:01:00,G13,80,0,48
2021-10-02 00:00:00,G02,20,120,41
2021-10-02 00:00:30,G02,20,120,41
2021-10-02 00:01:00,G02,20,120,41
2021-10-02 00:00:00,G03,20,240,42
2021-10-02 00:00:30,G03,20,240,42
2021-10-02 00:01:00,G03,20,240,42
2021-10-02 00:00:00,E05,20,0,40
2021-10-02 00:00:30,E05,20,0,40
2021-10-02 00:01:00,E05,20,0,40
`

const projectFile = `
[station]
name = "BRUX"
lat = 50.798
lon = 4.359
height = 158
mask = 10

[paths]
observations = "%OBS%"
output_dir = "%OUT%"
`

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// newProject writes an observation table and a project file without leap
// seconds and returns the project file path and output directory.
func newProject(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	obs := writeFile(t, filepath.Join(dir, "obs.csv"), observations)
	out := filepath.Join(dir, "out")
	body := strings.NewReplacer("%OBS%", obs, "%OUT%", out).Replace(projectFile)
	return writeFile(t, filepath.Join(dir, "project.toml"), body), out
}

func TestReconcileEndToEnd(t *testing.T) {
	cfg, out := newProject(t)
	textfile := filepath.Join(t.TempDir(), "run.prom")

	code, stdout, stderr := execute(t, "reconcile", "--config", cfg, "--leap-seconds", "18", "--metrics-textfile", textfile)
	if code != pipeline.ExitOK {
		t.Fatalf("exit code %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "4 PRNs reconciled") {
		t.Fatalf("unexpected summary:\n%s", stdout)
	}
	for _, name := range []string{report.RiseSetFile, report.ArcBarsFile, report.DOPFile} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("missing output %s: %v", name, err)
		}
		if !strings.Contains(stdout, filepath.Join(out, name)) {
			t.Fatalf("output %s not listed:\n%s", name, stdout)
		}
	}
	metrics, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !strings.Contains(string(metrics), "gnss_rows_read_total 12") {
		t.Fatalf("textfile lacks row counter:\n%s", metrics)
	}
}

func TestReconcileExitCodes(t *testing.T) {
	cfg, _ := newProject(t)
	dir := filepath.Dir(cfg)
	prnMap := writeFile(t, filepath.Join(dir, "prn.csv"), "constellation,svid,prn,norad,launch\n")

	cases := []struct {
		name string
		args []string
		code int
	}{
		{"leap seconds missing", []string{"reconcile", "--config", cfg}, pipeline.ExitInvalidConfig},
		{"config file missing", []string{"reconcile", "--config", cfg + ".gone", "--leap-seconds", "18"}, pipeline.ExitInputMissing},
		{"observations missing", []string{"reconcile", "--config", cfg, "--leap-seconds", "18", "--obs", filepath.Join(dir, "nope.csv")}, pipeline.ExitInputMissing},
		{"map without tle dir", []string{"reconcile", "--config", cfg, "--leap-seconds", "18", "--prn-map", prnMap}, pipeline.ExitArgCombination},
		{"tle dir missing", []string{"reconcile", "--config", cfg, "--leap-seconds", "18", "--prn-map", prnMap, "--tle-dir", filepath.Join(dir, "tle")}, pipeline.ExitInputDir},
		{"bad mask", []string{"reconcile", "--config", cfg, "--leap-seconds", "18", "--mask", "95"}, pipeline.ExitInvalidConfig},
		{"bad flag value", []string{"reconcile", "--config", cfg, "--leap-seconds", "eighteen"}, pipeline.ExitInvalidOption},
		{"unknown flag", []string{"reconcile", "--frobnicate"}, pipeline.ExitInvalidOption},
		{"stray argument", []string{"reconcile", "extra"}, pipeline.ExitInvalidOption},
		{"unknown command", []string{"frobnicate"}, pipeline.ExitInvalidOption},
		{"unknown subcommand", []string{"gpstime", "sideways"}, pipeline.ExitInvalidOption},
	}
	for _, tc := range cases {
		code, _, stderr := execute(t, tc.args...)
		if code != tc.code {
			t.Fatalf("%s: exit code %d, want %d; stderr:\n%s", tc.name, code, tc.code, stderr)
		}
		if !strings.HasPrefix(stderr, "gnssarc: ") && !strings.Contains(stderr, "\ngnssarc: ") {
			t.Fatalf("%s: error not reported on stderr:\n%s", tc.name, stderr)
		}
	}
}

func TestGPSTimeCommands(t *testing.T) {
	code, stdout, stderr := execute(t, "gpstime", "from-utc", "1999-08-22T00:00:01Z", "--leap-seconds", "13")
	if code != pipeline.ExitOK {
		t.Fatalf("from-utc exit %d: %s", code, stderr)
	}
	if stdout != "week=1024 sow=14 dow=0 sod=14\n" {
		t.Fatalf("from-utc output %q", stdout)
	}

	code, stdout, stderr = execute(t, "gpstime", "to-utc", "1024", "14.5", "--leap-seconds", "13")
	if code != pipeline.ExitOK {
		t.Fatalf("to-utc exit %d: %s", code, stderr)
	}
	if stdout != "1999-08-22T00:00:01.5Z\n" {
		t.Fatalf("to-utc output %q", stdout)
	}

	if code, _, _ := execute(t, "gpstime", "from-utc", "1999-08-22T00:00:01Z"); code != pipeline.ExitInvalidOption {
		t.Fatalf("missing leap seconds: exit %d", code)
	}
	if code, _, _ := execute(t, "gpstime", "from-utc", "yesterday", "--leap-seconds", "18"); code != pipeline.ExitInvalidOption {
		t.Fatalf("bad time: exit %d", code)
	}
}

func TestCoordCommands(t *testing.T) {
	code, stdout, stderr := execute(t, "coord", "to-ecef", "0", "0", "0")
	if code != pipeline.ExitOK {
		t.Fatalf("to-ecef exit %d: %s", code, stderr)
	}
	if stdout != "6378137.0000 0.0000 0.0000\n" {
		t.Fatalf("to-ecef output %q", stdout)
	}

	code, stdout, _ = execute(t, "coord", "to-lla", "6378137", "0", "0")
	if code != pipeline.ExitOK || stdout != "0.000000000 0.000000000 0.0000\n" {
		t.Fatalf("to-lla exit %d output %q", code, stdout)
	}

	code, stdout, _ = execute(t, "coord", "to-utm", "0", "3", "12")
	if code != pipeline.ExitOK || stdout != "31N 500000.000 0.000 12.0000\n" {
		t.Fatalf("to-utm exit %d output %q", code, stdout)
	}

	if code, _, _ := execute(t, "coord", "to-ecef", "north", "0", "0"); code != pipeline.ExitInvalidOption {
		t.Fatalf("bad latitude text: exit %d", code)
	}
	if code, _, _ := execute(t, "coord", "to-ecef", "--", "-91", "0", "0"); code != pipeline.ExitInvalidOption {
		t.Fatalf("latitude out of range: exit %d", code)
	}
}

func TestConvertAndPPPArguments(t *testing.T) {
	dir := t.TempDir()
	obs := writeFile(t, filepath.Join(dir, "brux.rnx"), "")

	cases := []struct {
		name string
		args []string
		code int
	}{
		{"convert without format", []string{"convert", "--out", dir, obs}, pipeline.ExitInvalidOption},
		{"convert without inputs", []string{"convert", "--format", "sbf", "--out", dir}, pipeline.ExitInvalidOption},
		{"convert bad signal", []string{"convert", "--format", "sbf", "--out", dir, "--signal", "C1C", obs}, pipeline.ExitInvalidOption},
		{"convert missing input", []string{"convert", "--format", "sbf", "--out", dir, filepath.Join(dir, "gone.sbf")}, pipeline.ExitInputMissing},
		{"ppp without nav", []string{"ppp", "--obs", obs, "--out", filepath.Join(dir, "brux.pos")}, pipeline.ExitArgCombination},
		{"ppp missing obs", []string{"ppp", "--obs", obs + ".gone", "--out", filepath.Join(dir, "brux.pos")}, pipeline.ExitInputMissing},
		{"ppp unknown engine", []string{"ppp", "--engine", "bernese", "--obs", obs, "--out", filepath.Join(dir, "brux.pos")}, pipeline.ExitInvalidOption},
	}
	for _, tc := range cases {
		if code, _, stderr := execute(t, tc.args...); code != tc.code {
			t.Fatalf("%s: exit code %d, want %d; stderr:\n%s", tc.name, code, tc.code, stderr)
		}
	}
}
