package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/gnss-arcs/internal/logging"
	"github.com/signalsfoundry/gnss-arcs/internal/pipeline"
	"github.com/signalsfoundry/gnss-arcs/internal/runner"
	"github.com/signalsfoundry/gnss-arcs/model"
)

func (a *app) convertCommand() *cobra.Command {
	var (
		format   string
		out      string
		systems  []string
		signals  []string
		binaries map[string]string
	)
	cmd := &cobra.Command{
		Use:   "convert [flags] LOG...",
		Short: "Convert receiver logs to one RINEX 3 observation file",
		Example: `  gnssarc convert --format sbf --out rinex --systems G,E --signal G:C1C,L1C log1.sbf log2.sbf
  gnssarc convert --format ubx --out rinex --bin convbin=/opt/rtklib/convbin rover.ubx`,
		Args: minimumArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" || out == "" {
				return fmt.Errorf("%w: --format and --out are required", pipeline.ErrInvalidOption)
			}
			keep, err := parseSystems(systems)
			if err != nil {
				return err
			}
			want, err := parseSignals(signals)
			if err != nil {
				return err
			}

			log := a.logger()
			ctx := logging.ContextWithLogger(cmd.Context(), log)
			r := runner.New(log)
			r.Binaries = binaries

			path, err := pipeline.Convert(ctx, r, pipeline.ConvertRequest{
				Format:    format,
				Inputs:    args,
				OutputDir: out,
				Systems:   keep,
				Signals:   want,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "", "receiver log format: sbf or ubx")
	f.StringVarP(&out, "out", "o", "", "output directory")
	f.StringSliceVar(&systems, "systems", nil, "constellations to keep, e.g. G,E (sbf only)")
	f.StringArrayVar(&signals, "signal", nil, "required observation codes per system, e.g. G:C1C,L1C (repeatable)")
	f.StringToStringVar(&binaries, "bin", nil, "tool=executable overrides, e.g. glab=gLAB_linux")
	return cmd
}

func (a *app) pppCommand() *cobra.Command {
	var (
		req      pipeline.PositionRequest
		binaries map[string]string
	)
	cmd := &cobra.Command{
		Use:   "ppp",
		Short: "Compute a PPP position series with RTKLIB or gLAB",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Obs == "" || req.Output == "" {
				return fmt.Errorf("%w: --obs and --out are required", pipeline.ErrInvalidOption)
			}
			log := a.logger()
			ctx := logging.ContextWithLogger(cmd.Context(), log)
			r := runner.New(log)
			r.Binaries = binaries

			path, err := pipeline.Position(ctx, r, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Engine, "engine", pipeline.EngineRTKLIB, "positioning engine: rtklib or glab")
	f.StringVar(&req.Obs, "obs", "", "RINEX observation file")
	f.StringSliceVar(&req.Nav, "nav", nil, "RINEX navigation files (rtklib)")
	f.StringVar(&req.Config, "conf", "", "engine configuration file")
	f.StringVarP(&req.Output, "out", "o", "", "solution file")
	f.StringToStringVar(&binaries, "bin", nil, "tool=executable overrides")
	return cmd
}

func parseSystems(values []string) ([]model.Constellation, error) {
	var out []model.Constellation
	for _, v := range values {
		sys, err := model.ParseConstellation(strings.ToUpper(strings.TrimSpace(v)))
		if err != nil {
			return nil, invalidOption("--systems", err)
		}
		out = append(out, sys)
	}
	return out, nil
}

// parseSignals reads "G:C1C,L1C" entries into a per-system code list.
func parseSignals(values []string) (map[model.Constellation][]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[model.Constellation][]string, len(values))
	for _, v := range values {
		sysText, codes, ok := strings.Cut(v, ":")
		if !ok || codes == "" {
			return nil, invalidOption("--signal", fmt.Errorf("%q is not SYSTEM:CODE[,CODE...]", v))
		}
		sys, err := model.ParseConstellation(strings.ToUpper(strings.TrimSpace(sysText)))
		if err != nil {
			return nil, invalidOption("--signal", err)
		}
		for _, code := range strings.Split(codes, ",") {
			if code = strings.TrimSpace(code); code != "" {
				out[sys] = append(out[sys], strings.ToUpper(code))
			}
		}
	}
	return out, nil
}
