package report

import (
	"context"
	"fmt"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/signalsfoundry/gnss-arcs/arcs"
	"github.com/signalsfoundry/gnss-arcs/dop"
)

// Measurement names written by InfluxSink.
const (
	MeasurementArc   = "arc_completeness"
	MeasurementDOP   = "dop"
	MeasurementStats = "pdop_bin"
)

// PointWriter is the part of the InfluxDB blocking write API the sink uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxConfig addresses an InfluxDB 2 bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink pushes the run results to InfluxDB as line-protocol points.
type InfluxSink struct {
	writer PointWriter
	client influxdb2.Client
	// Time stamps the points that carry no epoch of their own.
	Time time.Time
}

// NewInfluxSink opens a client for cfg.
func NewInfluxSink(cfg InfluxConfig, runTime time.Time) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		client: client,
		Time:   runTime,
	}
}

// NewInfluxSinkWithWriter builds a sink around an existing writer.
func NewInfluxSinkWithWriter(w PointWriter, runTime time.Time) *InfluxSink {
	return &InfluxSink{writer: w, Time: runTime}
}

// Close releases the client, if the sink owns one.
func (s *InfluxSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// WriteArcs writes one point per reconciled slot, tagged by PRN and slot.
func (s *InfluxSink) WriteArcs(ctx context.Context, rows []arcs.PRNReconciliation) error {
	var points []*write.Point
	for _, r := range rows {
		for i, slot := range r.Slots {
			at := s.Time
			if slot.Observed != nil || slot.Predicted != nil {
				at = slot.Start()
			}
			p := influxdb2.NewPointWithMeasurement(MeasurementArc).
				AddTag("prn", r.PRN.String()).
				AddTag("system", r.PRN.System.Letter()).
				AddTag("slot", fmt.Sprint(i)).
				AddField("observed", slot.ObservedCount).
				AddField("predicted", slot.PredictedCount).
				SetTime(at)
			addFinite(p, "completeness", slot.Completeness)
			points = append(points, p)
		}
	}
	return s.write(ctx, points)
}

// WriteDOP writes one point per anchor epoch.
func (s *InfluxSink) WriteDOP(ctx context.Context, series dop.Series) error {
	points := make([]*write.Point, 0, len(series.Anchors))
	for _, a := range series.Anchors {
		p := influxdb2.NewPointWithMeasurement(MeasurementDOP).
			AddField("nsat", a.DOP.NumSats).
			SetTime(a.Epoch)
		addFinite(p, "gdop", a.DOP.GDOP)
		addFinite(p, "pdop", a.DOP.PDOP)
		addFinite(p, "hdop", a.DOP.HDOP)
		addFinite(p, "vdop", a.DOP.VDOP)
		addFinite(p, "tdop", a.DOP.TDOP)
		points = append(points, p)
	}
	return s.write(ctx, points)
}

// WriteStatistics writes one point per PDOP bin.
func (s *InfluxSink) WriteStatistics(ctx context.Context, stats []dop.BinStats) error {
	points := make([]*write.Point, 0, len(stats))
	for _, b := range stats {
		p := influxdb2.NewPointWithMeasurement(MeasurementStats).
			AddTag("bin", b.Bin.Label).
			AddField("count", b.Count).
			SetTime(s.Time)
		addFinite(p, "fraction", b.Fraction)
		addFinite(p, "east_mean", b.East.Mean)
		addFinite(p, "north_mean", b.North.Mean)
		addFinite(p, "up_mean", b.Up.Mean)
		addFinite(p, "east_std", b.East.Std)
		addFinite(p, "north_std", b.North.Std)
		addFinite(p, "up_std", b.Up.Std)
		points = append(points, p)
	}
	return s.write(ctx, points)
}

func (s *InfluxSink) write(ctx context.Context, points []*write.Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// addFinite adds a float field unless it is NaN or infinite, which line
// protocol cannot carry.
func addFinite(p *write.Point, key string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	p.AddField(key, v)
}
