// Package runner invokes the external GNSS converters (sbf2rin, convbin,
// gfzrnx, rnx2rtkp, gLAB) and classifies their failures.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/signalsfoundry/gnss-arcs/internal/logging"
)

var (
	// ErrBinaryNotFound is returned when a converter is not on PATH.
	ErrBinaryNotFound = errors.New("binary not found in PATH")
	// ErrConverterFailed is returned when a converter exits non-zero.
	ErrConverterFailed = errors.New("external converter failed")
	// ErrSpawn is returned when the operating system could not start the
	// child process.
	ErrSpawn = errors.New("could not start child process")
)

// Result is the outcome of one converter invocation.
type Result struct {
	Path     string
	Args     []string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner executes converters. Binaries maps a tool name to the executable
// to run instead, e.g. "glab" to "gLAB_linux".
type Runner struct {
	Log      logging.Logger
	Dir      string
	Binaries map[string]string
}

// New returns a runner logging to log.
func New(log logging.Logger) *Runner {
	if log == nil {
		log = logging.Noop()
	}
	return &Runner{Log: log}
}

// Resolve returns the executable path for a tool.
func (r *Runner) Resolve(name string) (string, error) {
	bin := name
	if alt, ok := r.Binaries[name]; ok && alt != "" {
		bin = alt
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, bin)
	}
	return path, nil
}

// Run executes a tool with args, buffering its output. A non-zero exit is
// ErrConverterFailed with the tail of stderr in the message.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	log := r.Log
	if log == nil {
		log = logging.Noop()
	}
	path, err := r.Resolve(name)
	if err != nil {
		return Result{}, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = r.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Info(ctx, "running converter", logging.String("cmd", commandLine(path, args)))
	start := time.Now()
	err = cmd.Run()
	res := Result{
		Path:     path,
		Args:     args,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}
	if err == nil {
		log.Debug(ctx, "converter finished", logging.String("tool", name), logging.Duration("duration", res.Duration))
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		log.Error(ctx, "converter failed",
			logging.String("tool", name),
			logging.Int("exit_code", res.ExitCode),
			logging.String("stderr", tail(res.Stderr, 512)))
		return res, fmt.Errorf("%w: %s exited with %d: %s", ErrConverterFailed, name, res.ExitCode, tail(res.Stderr, 512))
	}
	return res, fmt.Errorf("%w: %s: %v", ErrSpawn, name, err)
}

func commandLine(path string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, a := range append([]string{path}, args...) {
		if strings.ContainsAny(a, " \t\"'") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
