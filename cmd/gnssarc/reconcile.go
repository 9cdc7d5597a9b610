package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/signalsfoundry/gnss-arcs/internal/config"
	"github.com/signalsfoundry/gnss-arcs/internal/logging"
	"github.com/signalsfoundry/gnss-arcs/internal/observability"
	"github.com/signalsfoundry/gnss-arcs/internal/pipeline"
	"github.com/signalsfoundry/gnss-arcs/report"
)

type reconcileOptions struct {
	configPath string

	station   string
	lat       float64
	lon       float64
	height    float64
	mask      float64
	leap      int
	gapMult   float64
	cutoff    float64
	stride    int
	dopMask   float64
	workers   int
	reference string
	systems   []string

	obs       string
	prnMap    string
	tleDir    string
	positions string
	out       string

	metricsTextfile string
	metricsAddr     string
	traceExporter   string
	traceEndpoint   string
	influxURL       string
}

func (a *app) reconcileCommand() *cobra.Command {
	opts := &reconcileOptions{}
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Extract observed arcs, predict passes and write the reconciliation tables",
		Long: `reconcile reads an observation table, splits it into per-satellite arcs,
predicts passes from two-line element sets and writes the rise/set,
completeness, DOP, visibility and position statistics tables.

Settings come from the project file given with --config; flags override it.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.reconcile(cmd.Context(), cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "project file (TOML)")
	f.StringVar(&opts.station, "station", "", "station marker name")
	f.Float64Var(&opts.lat, "lat", 0, "station latitude (deg)")
	f.Float64Var(&opts.lon, "lon", 0, "station longitude (deg)")
	f.Float64Var(&opts.height, "height", 0, "station ellipsoidal height (m)")
	f.Float64Var(&opts.mask, "mask", 10, "station elevation mask (deg)")
	f.IntVar(&opts.leap, "leap-seconds", -1, "GPS-UTC leap seconds (mandatory)")
	f.Float64Var(&opts.gapMult, "gap-multiplier", 30, "arc gap threshold as a multiple of the sampling interval")
	f.Float64Var(&opts.cutoff, "elevation-cutoff", 0, "drop samples below this elevation before arc extraction (0 disables)")
	f.IntVar(&opts.stride, "dop-stride", 4800, "DOP series decimation in epochs")
	f.Float64Var(&opts.dopMask, "dop-mask", 10, "DOP elevation mask (deg); defaults to --mask")
	f.IntVar(&opts.workers, "workers", 0, "parallel DOP and prediction workers (0 uses GOMAXPROCS)")
	f.StringVar(&opts.reference, "reference", config.ReferenceMarker, "statistics reference: marker or weighted-mean")
	f.StringSliceVar(&opts.systems, "systems", nil, "constellations to keep, e.g. G,E")
	f.StringVar(&opts.obs, "obs", "", "observation table (CSV)")
	f.StringVar(&opts.prnMap, "prn-map", "", "PRN to NORAD catalogue (CSV)")
	f.StringVar(&opts.tleDir, "tle-dir", "", "directory of <norad>.tle files")
	f.StringVar(&opts.positions, "positions", "", "PPP position solution file")
	f.StringVarP(&opts.out, "out", "o", "", "output directory")
	f.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write run metrics in Prometheus text format to this file")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics on this address during the run")
	f.StringVar(&opts.traceExporter, "trace", "", "span exporter: none, stdout or otlp")
	f.StringVar(&opts.traceEndpoint, "trace-endpoint", "", "OTLP gRPC endpoint")
	f.StringVar(&opts.influxURL, "influx-url", "", "InfluxDB 2 URL; token, org and bucket come from the project file")
	return cmd
}

// loadConfig reads the project file, if any, and applies flag overrides.
// The result is validated.
func (a *app) loadConfig(flags *pflag.FlagSet, opts *reconcileOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if errors.Is(err, os.ErrNotExist) {
			return config.Config{}, fmt.Errorf("%w: %s", pipeline.ErrInputMissing, opts.configPath)
		}
		if err != nil {
			return config.Config{}, err
		}
	}

	if flags.Changed("station") {
		cfg.Station.Name = opts.station
	}
	if flags.Changed("lat") {
		cfg.Station.Lat = opts.lat
	}
	if flags.Changed("lon") {
		cfg.Station.Lon = opts.lon
	}
	if flags.Changed("height") {
		cfg.Station.Height = opts.height
	}
	if flags.Changed("mask") {
		// The DOP mask follows the station mask unless it was set apart.
		if !flags.Changed("dop-mask") && cfg.DOP.Mask == cfg.Station.Mask {
			cfg.DOP.Mask = opts.mask
		}
		cfg.Station.Mask = opts.mask
	}
	if flags.Changed("dop-mask") {
		cfg.DOP.Mask = opts.dopMask
	}
	if flags.Changed("leap-seconds") {
		cfg.Time.LeapSeconds = opts.leap
	}
	if flags.Changed("gap-multiplier") {
		cfg.Arcs.GapMultiplier = opts.gapMult
	}
	if flags.Changed("elevation-cutoff") {
		cfg.Arcs.ElevationCutoff = opts.cutoff
	}
	if flags.Changed("dop-stride") {
		cfg.DOP.Stride = opts.stride
	}
	if flags.Changed("workers") {
		cfg.DOP.Workers = opts.workers
	}
	if flags.Changed("reference") {
		cfg.Stats.Reference = opts.reference
	}
	if flags.Changed("systems") {
		cfg.Constellations = opts.systems
	}
	if flags.Changed("obs") {
		cfg.Paths.Observations = opts.obs
	}
	if flags.Changed("prn-map") {
		cfg.Paths.PRNMap = opts.prnMap
	}
	if flags.Changed("tle-dir") {
		cfg.Paths.TLEDir = opts.tleDir
	}
	if flags.Changed("positions") {
		cfg.Paths.Positions = opts.positions
	}
	if flags.Changed("out") {
		cfg.Paths.OutputDir = opts.out
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = opts.metricsTextfile
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if flags.Changed("trace") {
		cfg.Tracing.Exporter = opts.traceExporter
	}
	if flags.Changed("trace-endpoint") {
		cfg.Tracing.Endpoint = opts.traceEndpoint
	}
	if flags.Changed("influx-url") {
		cfg.Influx.URL = opts.influxURL
	}
	if changed(flags, "log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if changed(flags, "log-format") {
		cfg.Logging.Format = a.logFormat
	}

	cfg = cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (a *app) reconcile(ctx context.Context, cmd *cobra.Command, opts *reconcileOptions) error {
	cfg, err := a.loadConfig(cmd.Flags(), opts)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: a.stderr})

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Exporter: cfg.Tracing.Exporter,
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
		Output:   a.stderr,
	}, log)
	if err != nil {
		return fmt.Errorf("%w: tracing: %v", config.ErrInvalid, err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdown, log)

	metrics, err := observability.NewPipelineCollector(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		serveCtx, stopServing := context.WithCancel(ctx)
		defer stopServing()
		if _, err := metrics.Serve(serveCtx, cfg.Metrics.Addr, log); err != nil {
			return err
		}
	}

	popts := []pipeline.Option{pipeline.WithMetrics(metrics)}
	if cfg.Influx.URL != "" {
		sink := report.NewInfluxSink(report.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		}, time.Now())
		defer sink.Close()
		popts = append(popts, pipeline.WithInflux(sink))
	}

	res, err := pipeline.New(cfg, log, popts...).Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d PRNs reconciled, %d warnings\n", res.RunID, len(res.Reconciled), res.Warnings)
	for _, path := range res.Outputs {
		fmt.Fprintln(out, path)
	}
	return nil
}
