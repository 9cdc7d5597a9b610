package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalsfoundry/gnss-arcs/internal/logging"
	"github.com/signalsfoundry/gnss-arcs/internal/runner"
	"github.com/signalsfoundry/gnss-arcs/model"
)

// Receiver log formats accepted by Convert.
const (
	FormatSBF = "sbf"
	FormatUBX = "ubx"
)

// ConvertRequest describes a raw-log to RINEX conversion.
type ConvertRequest struct {
	Format    string
	Inputs    []string
	OutputDir string
	Systems   []model.Constellation
	// Signals lists observation codes that must be present in the result,
	// e.g. {G: [C1C, L1C]}.
	Signals map[model.Constellation][]string
}

// Convert turns receiver logs into one RINEX 3 observation file. Several
// inputs are converted one by one and spliced with gfzrnx. It returns the
// path of the observation file.
func Convert(ctx context.Context, r *runner.Runner, req ConvertRequest) (string, error) {
	log := logging.FromContext(ctx)
	if len(req.Inputs) == 0 {
		return "", fmt.Errorf("%w: no input files", ErrInvalidOption)
	}
	for _, in := range req.Inputs {
		if _, err := os.Stat(in); err != nil {
			return "", fmt.Errorf("%w: %s", ErrInputMissing, in)
		}
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return "", err
	}

	var parts []string
	for _, in := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
		switch strings.ToLower(req.Format) {
		case FormatSBF:
			out := filepath.Join(req.OutputDir, base+".rnx")
			if _, err := r.SBF2RIN(ctx, in, out, req.Systems); err != nil {
				return "", err
			}
			parts = append(parts, out)
		case FormatUBX:
			dir := filepath.Join(req.OutputDir, base)
			if _, err := r.Convbin(ctx, in, dir); err != nil {
				return "", err
			}
			obsFiles, err := filepath.Glob(filepath.Join(dir, "*.obs"))
			if err != nil {
				return "", err
			}
			if len(obsFiles) == 0 {
				return "", fmt.Errorf("%w: convbin wrote no observation file for %s", runner.ErrConverterFailed, in)
			}
			parts = append(parts, obsFiles...)
		default:
			return "", fmt.Errorf("%w: unknown format %q", ErrInvalidOption, req.Format)
		}
	}

	result := parts[0]
	if len(parts) > 1 {
		result = filepath.Join(req.OutputDir, "merged.rnx")
		if _, err := r.GFZRNXMerge(ctx, parts, result); err != nil {
			return "", err
		}
	}
	if len(req.Signals) > 0 {
		if err := runner.CheckObsTypesFile(result, req.Signals); err != nil {
			return "", err
		}
	}
	log.Info(ctx, "conversion finished", logging.String(logging.KeyFile, result), logging.Int("inputs", len(req.Inputs)))
	return result, nil
}

// PPP engines accepted by Position.
const (
	EngineRTKLIB = "rtklib"
	EngineGLAB   = "glab"
)

// PositionRequest describes a PPP run over a RINEX observation file.
type PositionRequest struct {
	Engine string
	Obs    string
	Nav    []string
	Config string
	Output string
}

// Position computes a position series with the selected engine and returns
// the solution file path.
func Position(ctx context.Context, r *runner.Runner, req PositionRequest) (string, error) {
	if _, err := os.Stat(req.Obs); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInputMissing, req.Obs)
	}
	switch strings.ToLower(req.Engine) {
	case EngineRTKLIB, "":
		if len(req.Nav) == 0 {
			return "", fmt.Errorf("%w: rtklib needs navigation files", ErrArgCombination)
		}
		if _, err := r.RNX2RTKP(ctx, req.Obs, req.Nav, req.Config, req.Output); err != nil {
			return "", err
		}
	case EngineGLAB:
		if req.Config == "" {
			return "", fmt.Errorf("%w: glab needs a configuration file", ErrArgCombination)
		}
		if _, err := r.GLAB(ctx, req.Config, req.Obs, req.Output); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("%w: unknown engine %q", ErrInvalidOption, req.Engine)
	}
	logging.FromContext(ctx).Info(ctx, "position solution written", logging.String(logging.KeyFile, req.Output))
	return req.Output, nil
}
