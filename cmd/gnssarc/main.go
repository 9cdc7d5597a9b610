// Command gnssarc reconciles observed GNSS satellite passes against SGP4
// predictions and drives the external RINEX and PPP tooling.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/signalsfoundry/gnss-arcs/internal/logging"
	"github.com/signalsfoundry/gnss-arcs/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries the settings shared by every subcommand.
type app struct {
	stdout    io.Writer
	stderr    io.Writer
	logLevel  string
	logFormat string
}

// run executes the command line and returns the process exit code. Errors
// are reported on stderr as a single line.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "gnssarc: %v\n", err)
	}
	return pipeline.ExitCode(err)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "gnssarc",
		Short:         "Reconcile observed GNSS passes against SGP4 predictions",
		Args:          cobra.ArbitraryArgs,
		RunE:          groupRunE,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", pipeline.ErrInvalidOption, err)
	})
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(
		a.reconcileCommand(),
		a.convertCommand(),
		a.pppCommand(),
		a.gpstimeCommand(),
		a.coordCommand(),
	)
	return root
}

// logger builds the logger from the persistent flags.
func (a *app) logger() logging.Logger {
	return logging.New(logging.Config{Level: a.logLevel, Format: a.logFormat, Output: a.stderr})
}

// groupRunE backs commands that only group subcommands: bare invocation
// prints help and anything else is an unknown subcommand.
func groupRunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: unknown command %q for %q", pipeline.ErrInvalidOption, args[0], cmd.CommandPath())
	}
	return cmd.Help()
}

// exactArgs is cobra.ExactArgs with the error classified as an invalid
// option.
func exactArgs(n int) cobra.PositionalArgs {
	return classifyArgs(cobra.ExactArgs(n))
}

func minimumArgs(n int) cobra.PositionalArgs {
	return classifyArgs(cobra.MinimumNArgs(n))
}

func classifyArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", pipeline.ErrInvalidOption, err)
		}
		return nil
	}
}

// invalidOption wraps a parse failure of a positional argument or flag
// value.
func invalidOption(name string, err error) error {
	if errors.Is(err, pipeline.ErrInvalidOption) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", pipeline.ErrInvalidOption, name, err)
}

// changed reports whether any of the named flags was set on the command line.
func changed(flags *pflag.FlagSet, names ...string) bool {
	for _, n := range names {
		if flags.Changed(n) {
			return true
		}
	}
	return false
}
