package observability

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestPipelineCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}
	c.AddRows(120)
	c.AddSkipped("duplicate", 2)
	c.AddSkipped("duplicate", 1)
	c.AddSkipped("order", 0)
	c.AddArcs(ArcObserved, 4)
	c.AddArcs(ArcMatched, 3)
	c.SetCompleteness("G01", 0.75)
	c.SetCompleteness("G02", math.NaN())
	c.AddWarnings(5)

	if got := testutil.ToFloat64(c.RowsRead); got != 120 {
		t.Fatalf("gnss_rows_read_total = %v, want 120", got)
	}
	if got := testutil.ToFloat64(c.RowsSkipped.WithLabelValues("duplicate")); got != 3 {
		t.Fatalf("duplicate skips = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.Arcs.WithLabelValues(ArcMatched)); got != 3 {
		t.Fatalf("matched arcs = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.Completeness.WithLabelValues("G01")); got != 0.75 {
		t.Fatalf("completeness = %v", got)
	}
	if n := testutil.CollectAndCount(c.Completeness); n != 1 {
		t.Fatalf("NaN completeness exported: %d series", n)
	}
	if n := testutil.CollectAndCount(c.RowsSkipped); n != 1 {
		t.Fatalf("zero skip count created a series: %d", n)
	}
	if got := testutil.ToFloat64(c.Warnings); got != 5 {
		t.Fatalf("warnings = %v", got)
	}
}

func TestRegisterReusesExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	second.AddRows(2)
	if got := testutil.ToFloat64(first.RowsRead); got != 2 {
		t.Fatalf("collectors not shared: %v", got)
	}
}

func TestStageTimerRecordsDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}
	_, stage := StartStage(context.Background(), c, "extract")
	boom := errors.New("boom")
	if got := stage.End(boom); !errors.Is(got, boom) {
		t.Fatalf("End changed the error: %v", got)
	}
	_, stage = StartStage(context.Background(), c, "extract")
	_ = stage.End(nil)

	if count := histogramSampleCount(t, reg, "gnss_stage_duration_seconds", map[string]string{"stage": "extract"}); count != 2 {
		t.Fatalf("stage sample_count = %d, want 2", count)
	}

	// A nil collector still closes the span.
	_, stage = StartStage(context.Background(), nil, "orphan")
	_ = stage.End(nil)
}

func TestMetricsHandlerAndTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}
	c.AddRows(7)
	c.AddArcs(ArcPredicted, 2)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{"gnss_rows_read_total 7", `gnss_arcs_total{kind="predicted"} 2`, "gnss_warnings_total 0"} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}

	path := filepath.Join(t.TempDir(), "gnssarc.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "gnss_rows_read_total 7") {
		t.Fatalf("textfile missing counter:\n%s", data)
	}
}

func TestServeExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPipelineCollector(reg)
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, err := c.Serve(ctx, "127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	resp, err := http.Get("http://" + addr.String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestInitTracingDisabledAndStdout(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Exporter: "none"}, nil)
	if err != nil {
		t.Fatalf("InitTracing(none): %v", err)
	}
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	var buf strings.Builder
	shutdown, err = InitTracing(context.Background(), TracingConfig{Exporter: "stdout", Output: &buf}, nil)
	if err != nil {
		t.Fatalf("InitTracing(stdout): %v", err)
	}
	_, stage := StartStage(context.Background(), nil, "reconcile")
	_ = stage.End(nil)
	ShutdownWithTimeout(context.Background(), shutdown, nil)
	if !strings.Contains(buf.String(), "reconcile") {
		t.Fatalf("span not exported: %q", buf.String())
	}

	if _, err := InitTracing(context.Background(), TracingConfig{Exporter: "zipkin"}, nil); err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
	_, _ = InitTracing(context.Background(), TracingConfig{Exporter: "none"}, nil)
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
