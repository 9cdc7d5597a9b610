// Package pipeline runs one reconciliation of a day of observations: it
// loads the inputs, extracts and predicts arcs, reconciles them, derives
// DOP and position statistics and writes the reports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/gnss-arcs/arcs"
	"github.com/signalsfoundry/gnss-arcs/catalog"
	"github.com/signalsfoundry/gnss-arcs/dop"
	"github.com/signalsfoundry/gnss-arcs/gpstime"
	"github.com/signalsfoundry/gnss-arcs/internal/config"
	"github.com/signalsfoundry/gnss-arcs/internal/logging"
	"github.com/signalsfoundry/gnss-arcs/internal/observability"
	"github.com/signalsfoundry/gnss-arcs/model"
	"github.com/signalsfoundry/gnss-arcs/obs"
	"github.com/signalsfoundry/gnss-arcs/orbit"
	"github.com/signalsfoundry/gnss-arcs/report"
)

// Stage names used for spans, metrics and log fields.
const (
	StageLoad      = "load"
	StageExtract   = "extract"
	StagePredict   = "predict"
	StageReconcile = "reconcile"
	StageDOP       = "dop"
	StageStats     = "statistics"
	StageWrite     = "write"
)

// Result is everything a run derived. It is only valid for the run that
// produced it.
type Result struct {
	RunID   string
	Station model.GroundStation

	Table      *obs.Table
	ReadStats  obs.ReadStats
	Extraction arcs.Extraction
	Predicted  map[model.PRN][]model.PredictedArc
	Reconciled []arcs.PRNReconciliation

	Series     dop.Series
	Visibility []dop.EpochCount
	Summary    []dop.CountSummary

	Positions  []obs.Position
	Offsets    []dop.Offset
	Statistics []dop.BinStats
	Histogram  dop.Histogram

	Outputs  []string
	Warnings int64
}

// Pipeline holds the immutable inputs of a run.
type Pipeline struct {
	cfg     config.Config
	log     logging.Logger
	metrics *observability.PipelineCollector
	sink    *report.InfluxSink
	now     func() time.Time
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithMetrics records run metrics on c.
func WithMetrics(c *observability.PipelineCollector) Option {
	return func(p *Pipeline) { p.metrics = c }
}

// WithInflux pushes the results to an InfluxDB sink.
func WithInflux(s *report.InfluxSink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithClock overrides the wall clock used to stamp the run.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds a pipeline for a validated configuration.
func New(cfg config.Config, log logging.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = logging.Noop()
	}
	p := &Pipeline{cfg: cfg, log: log, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every stage in order. Cancellation is checked at each stage
// boundary; nothing is written to the output directory before the write
// stage.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	ctx, runID := logging.EnsureRunID(ctx)
	counting := logging.NewCounting(p.log.With(logging.String(logging.KeyRunID, runID)))
	log := logging.Logger(counting)
	ctx = logging.ContextWithLogger(ctx, log)

	res := &Result{RunID: runID}
	started := p.now()
	log.Info(ctx, "run started", logging.String(logging.KeyFile, p.cfg.Paths.Observations))

	stages := []struct {
		name string
		fn   func(context.Context, *Result) error
	}{
		{StageLoad, p.load},
		{StageExtract, p.extract},
		{StagePredict, p.predict},
		{StageReconcile, p.reconcile},
		{StageDOP, p.dop},
		{StageStats, p.statistics},
		{StageWrite, p.write},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sctx, timer := observability.StartStage(ctx, p.metrics, st.name, attribute.String(logging.KeyRunID, runID))
		stageLog := log.With(logging.Stage(st.name))
		err := timer.End(st.fn(logging.ContextWithLogger(sctx, stageLog), res))
		if err != nil {
			log.Error(ctx, "stage failed", logging.Stage(st.name), logging.Err(err))
			return nil, err
		}
	}

	res.Warnings = counting.Warnings()
	p.metrics.AddWarnings(res.Warnings)
	if path := p.cfg.Metrics.Textfile; path != "" && p.metrics != nil {
		if err := p.metrics.WriteTextfile(path); err != nil {
			log.Error(ctx, "metrics textfile", logging.Err(err))
			return nil, err
		}
	}
	log.Info(ctx, "run finished",
		logging.Int("prns", len(res.Reconciled)),
		logging.Int("outputs", len(res.Outputs)),
		logging.Int("warnings", int(res.Warnings)),
		logging.Duration("elapsed", p.now().Sub(started)))
	return res, nil
}

// CheckInputs verifies that configured inputs exist and fit together.
func CheckInputs(cfg config.Config) error {
	paths := cfg.Paths
	if err := requireFile(paths.Observations); err != nil {
		return err
	}
	if (paths.TLEDir == "") != (paths.PRNMap == "") {
		return fmt.Errorf("%w: tle_dir and prn_map must be given together", ErrArgCombination)
	}
	if paths.PRNMap != "" {
		if err := requireFile(paths.PRNMap); err != nil {
			return err
		}
		info, err := os.Stat(paths.TLEDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: %s", ErrInputDirMissing, paths.TLEDir)
		}
	}
	if paths.Positions != "" {
		if err := requireFile(paths.Positions); err != nil {
			return err
		}
	} else if cfg.Stats.Reference == config.ReferenceWeightedMean {
		return fmt.Errorf("%w: weighted-mean reference needs a positions file", ErrArgCombination)
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInputMissing, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInputMissing, path)
	}
	return nil
}

func (p *Pipeline) load(ctx context.Context, res *Result) error {
	log := logging.FromContext(ctx)
	if err := CheckInputs(p.cfg); err != nil {
		return err
	}

	st := p.cfg.Station
	station, err := model.NewGroundStation(st.Name, st.Lat, st.Lon, st.Height, st.Mask)
	if err != nil {
		return fmt.Errorf("%w: station marker: %v", ErrInvalidOption, err)
	}
	res.Station = station

	file := p.cfg.Paths.Observations
	table, stats, err := obs.ReadTableFile(file, obs.ReadOptions{
		OnSkip: func(is obs.Issue) {
			log.Warn(ctx, "observation row skipped",
				logging.String(logging.KeyFile, file),
				logging.Int("line", is.Line),
				logging.String(logging.KeyPRN, is.PRN),
				logging.Time(logging.KeyEpoch, is.Epoch),
				logging.String("reason", string(is.Reason)),
				logging.Err(is.Err))
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	p.metrics.AddRows(table.Len())
	for reason, n := range stats.Skipped {
		p.metrics.AddSkipped(string(reason), n)
	}

	systems, err := p.cfg.Systems()
	if err != nil {
		return err
	}
	if len(systems) > 0 {
		table = table.FilterSystems(systems)
	}
	res.Table = table
	res.ReadStats = stats
	log.Info(ctx, "observations loaded",
		logging.String(logging.KeyFile, file),
		logging.Int("rows", table.Len()),
		logging.Int("prns", len(table.PRNs())),
		logging.String("date", table.Date.Format(time.DateOnly)))
	return nil
}

func (p *Pipeline) extract(ctx context.Context, res *Result) error {
	x := arcs.Extractor{GapMultiplier: p.cfg.Arcs.GapMultiplier, Cutoff: p.cfg.Cutoff()}
	res.Extraction = x.Extract(res.Table)
	p.metrics.AddArcs(observability.ArcObserved, res.Extraction.ArcCount())
	logging.FromContext(ctx).Info(ctx, "arcs extracted",
		logging.Int("arcs", res.Extraction.ArcCount()),
		logging.Duration("nominal", res.Extraction.Nominal))
	return nil
}

// predict propagates every observed PRN over the table's day. PRNs are
// independent and run concurrently; results are keyed by PRN so the
// assembly order does not depend on scheduling.
func (p *Pipeline) predict(ctx context.Context, res *Result) error {
	log := logging.FromContext(ctx)
	res.Predicted = make(map[model.PRN][]model.PredictedArc)

	paths := p.cfg.Paths
	if paths.TLEDir == "" {
		log.Warn(ctx, "no element sets configured; predictions skipped")
		return nil
	}
	cat := catalog.New(paths.TLEDir)
	unsubscribe := cat.Subscribe(func(ev catalog.Event) {
		if ev.Type == catalog.EventTLELoaded {
			log.Debug(ctx, "element sets loaded",
				logging.String(logging.KeyPRN, ev.PRN.String()),
				logging.Int("norad", ev.NORAD),
				logging.Int("count", ev.Count),
				logging.String(logging.KeyFile, ev.Path))
		}
	})
	defer unsubscribe()
	if err := cat.LoadMappingFile(paths.PRNMap); err != nil {
		return fmt.Errorf("%w: %w", ErrInputMissing, err)
	}

	t0 := res.Table.Date
	t1 := t0.Add(24 * time.Hour)
	target := gpstime.YYDDD(t0)

	prns := res.Table.PRNs()
	out := make([][]model.PredictedArc, len(prns))
	predictor := orbit.NewPredictor(res.Station)

	g, gctx := errgroup.WithContext(ctx)
	if w := p.cfg.DOP.Workers; w > 0 {
		g.SetLimit(w)
	}
	for i, prn := range prns {
		if !prn.System.Predictable() {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plog := log.With(logging.String(logging.KeyPRN, prn.String()))
			tle, err := cat.Nearest(prn, target)
			if errors.Is(err, orbit.ErrNoTLE) {
				plog.Warn(gctx, "no element set; prediction skipped", logging.Err(err))
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", prn, err)
			}
			prop, err := orbit.NewPropagator(tle)
			if err != nil {
				plog.Warn(gctx, "element set rejected by propagator", logging.Err(err))
				return nil
			}
			passes, err := predictor.Passes(prop, t0, t1)
			if err != nil {
				plog.Warn(gctx, "propagation failed; prediction skipped", logging.Err(err))
				return nil
			}
			plog.Debug(gctx, "passes predicted",
				logging.Int("passes", len(passes)),
				logging.Int("tle_epoch", tle.EpochKey))
			out[i] = passes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total := 0
	for i, prn := range prns {
		if out[i] != nil {
			res.Predicted[prn] = out[i]
			total += len(out[i])
		}
	}
	p.metrics.AddArcs(observability.ArcPredicted, total)
	log.Info(ctx, "arcs predicted", logging.Int("arcs", total), logging.Int("prns", len(res.Predicted)))
	return nil
}

func (p *Pipeline) reconcile(ctx context.Context, res *Result) error {
	rc := arcs.Reconciler{Nominal: res.Extraction.Nominal}
	matched := 0
	for _, pa := range res.Extraction.PRNs {
		predicted, ok := res.Predicted[pa.PRN]
		row := rc.Reconcile(pa.PRN, pa.Arcs, predicted)
		row.Predictable = ok
		for _, s := range row.Slots {
			if s.Matched() {
				matched++
			}
		}
		p.metrics.SetCompleteness(pa.PRN.String(), row.Completeness())
		res.Reconciled = append(res.Reconciled, row)
	}
	p.metrics.AddArcs(observability.ArcMatched, matched)
	logging.FromContext(ctx).Info(ctx, "arcs reconciled",
		logging.Int("prns", len(res.Reconciled)),
		logging.Int("matched", matched),
		logging.Int("max_arcs", arcs.MaxArcs(res.Reconciled)))
	return nil
}

func (p *Pipeline) dop(ctx context.Context, res *Result) error {
	epochs := res.Table.ByEpoch()
	series, err := dop.BuildSeries(ctx, epochs, dop.SeriesOptions{
		Mask:    p.cfg.DOP.Mask,
		Stride:  p.cfg.DOP.Stride,
		Workers: p.cfg.DOP.Workers,
	})
	if err != nil {
		return err
	}
	res.Series = series
	res.Visibility, res.Summary = dop.Visibility(epochs, p.cfg.DOP.Mask)
	logging.FromContext(ctx).Info(ctx, "dop series built",
		logging.Int("epochs", len(series.Epochs)),
		logging.Int("anchors", len(series.Anchors)))
	return nil
}

func (p *Pipeline) statistics(ctx context.Context, res *Result) error {
	path := p.cfg.Paths.Positions
	if path == "" {
		return nil
	}
	ps, err := obs.ReadPositionsFile(path, obs.PositionOptions{
		LeapSeconds: p.cfg.Time.LeapSeconds,
		Zone:        res.Station.UTM.Zone,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	res.Positions = ps

	ref, err := dop.MarkerReference(res.Station.LLA, res.Station.UTM.Zone)
	if p.cfg.Stats.Reference == config.ReferenceWeightedMean {
		ref, err = dop.WeightedMeanReference(ps)
	}
	if err != nil {
		return err
	}
	res.Offsets = dop.Offsets(ps, ref, res.Series)
	res.Statistics = dop.BinStatistics(res.Offsets, dop.DefaultBins)
	res.Histogram = dop.OffsetHistogram(res.Offsets)
	logging.FromContext(ctx).Info(ctx, "position statistics",
		logging.String(logging.KeyFile, path),
		logging.Int("positions", len(ps)),
		logging.String("reference", p.cfg.Stats.Reference))
	return nil
}

func (p *Pipeline) write(ctx context.Context, res *Result) error {
	w, err := report.NewWriter(p.cfg.Paths.OutputDir)
	if err != nil {
		return err
	}
	add := func(path string, err error) error {
		if err != nil {
			return err
		}
		res.Outputs = append(res.Outputs, path)
		return nil
	}
	if err := add(w.RiseSet(res.Reconciled)); err != nil {
		return err
	}
	if err := add(w.ArcBars(res.Reconciled)); err != nil {
		return err
	}
	if err := add(w.DOP(res.Series)); err != nil {
		return err
	}
	vis, err := w.Visibility(res.Visibility, res.Summary)
	res.Outputs = append(res.Outputs, vis...)
	if err != nil {
		return err
	}
	if res.Positions != nil {
		if err := add(w.Statistics(res.Statistics)); err != nil {
			return err
		}
		if err := add(w.Histogram(res.Histogram)); err != nil {
			return err
		}
	}

	if p.sink != nil {
		if err := p.push(ctx, res); err != nil {
			return err
		}
	}
	logging.FromContext(ctx).Info(ctx, "reports written",
		logging.String("dir", w.Dir),
		logging.Int("files", len(res.Outputs)))
	return nil
}

func (p *Pipeline) push(ctx context.Context, res *Result) error {
	if err := p.sink.WriteArcs(ctx, res.Reconciled); err != nil {
		return err
	}
	if err := p.sink.WriteDOP(ctx, res.Series); err != nil {
		return err
	}
	if res.Statistics != nil {
		return p.sink.WriteStatistics(ctx, res.Statistics)
	}
	return nil
}
