package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/signalsfoundry/gnss-arcs/model"
)

// Tool names as looked up on PATH.
const (
	ToolSBF2RIN  = "sbf2rin"
	ToolConvbin  = "convbin"
	ToolGFZRNX   = "gfzrnx"
	ToolRNX2RTKP = "rnx2rtkp"
	ToolGLAB     = "glab"
)

// SBF2RIN converts a Septentrio SBF log to a RINEX 3 observation file.
// Constellations not listed in keep are excluded; an empty keep converts
// everything.
func (r *Runner) SBF2RIN(ctx context.Context, sbf, out string, keep []model.Constellation) (Result, error) {
	args := []string{"-f", sbf, "-o", out, "-R3"}
	if x := excluded(keep); x != "" {
		args = append(args, "-x"+x)
	}
	return r.run(ctx, ToolSBF2RIN, []string{sbf}, out, args...)
}

// Convbin converts a u-blox UBX log to RINEX 3 observation and navigation
// files in outDir.
func (r *Runner) Convbin(ctx context.Context, ubx, outDir string) (Result, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, err
	}
	args := []string{"-r", "ubx", "-v", "3.04", "-od", "-os", "-d", outDir, ubx}
	return r.run(ctx, ToolConvbin, []string{ubx}, "", args...)
}

// GFZRNXMerge splices several RINEX files into out.
func (r *Runner) GFZRNXMerge(ctx context.Context, inputs []string, out string) (Result, error) {
	if len(inputs) == 0 {
		return Result{}, fmt.Errorf("%s: no input files", ToolGFZRNX)
	}
	args := append([]string{"-finp"}, inputs...)
	args = append(args, "-fout", out, "-f", "-kv")
	return r.run(ctx, ToolGFZRNX, inputs, out, args...)
}

// GFZRNXStats returns gfzrnx's observation statistics of a RINEX file on
// stdout.
func (r *Runner) GFZRNXStats(ctx context.Context, in string) (Result, error) {
	return r.run(ctx, ToolGFZRNX, []string{in}, "", "-finp", in, "-stk_obs")
}

// RNX2RTKP computes a position solution with RTKLIB. conf may be empty to
// use the built-in options.
func (r *Runner) RNX2RTKP(ctx context.Context, obsFile string, navFiles []string, conf, out string) (Result, error) {
	var args []string
	if conf != "" {
		args = append(args, "-k", conf)
	}
	args = append(args, "-o", out, obsFile)
	args = append(args, navFiles...)
	return r.run(ctx, ToolRNX2RTKP, append([]string{obsFile}, navFiles...), out, args...)
}

// GLAB runs a gLAB PPP processing described by a configuration file.
func (r *Runner) GLAB(ctx context.Context, conf, obsFile, out string) (Result, error) {
	args := []string{"-input:cfg", conf, "-input:obs", obsFile, "-output:file", out}
	return r.run(ctx, ToolGLAB, []string{conf, obsFile}, out, args...)
}

// run checks that inputs exist, prepares the output directory and runs the
// tool.
func (r *Runner) run(ctx context.Context, tool string, inputs []string, out string, args ...string) (Result, error) {
	for _, in := range inputs {
		if _, err := os.Stat(in); err != nil {
			return Result{}, fmt.Errorf("%s input: %w", tool, err)
		}
	}
	if out != "" {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return Result{}, err
		}
	}
	return r.Run(ctx, tool, args...)
}

func excluded(keep []model.Constellation) string {
	if len(keep) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range model.AllConstellations {
		if !slices.Contains(keep, c) {
			b.WriteString(c.Letter())
		}
	}
	return b.String()
}
