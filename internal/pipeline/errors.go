package pipeline

import (
	"errors"
	"os"

	"github.com/signalsfoundry/gnss-arcs/internal/config"
	"github.com/signalsfoundry/gnss-arcs/internal/runner"
	"github.com/signalsfoundry/gnss-arcs/orbit"
)

var (
	// ErrInputMissing is returned when a configured input file is absent.
	ErrInputMissing = errors.New("input file missing")
	// ErrInvalidOption is returned for a malformed command-line option or
	// station marker.
	ErrInvalidOption = errors.New("invalid option")
	// ErrInputDirMissing is returned when a configured input directory is
	// absent.
	ErrInputDirMissing = errors.New("input directory missing")
	// ErrArgCombination is returned when options are individually valid but
	// cannot be used together.
	ErrArgCombination = errors.New("invalid argument combination")
)

// Process exit codes.
const (
	ExitOK             = 0
	ExitInputMissing   = 1
	ExitBinaryNotFound = 2
	ExitInvalidOption  = 3
	ExitInvalidConfig  = 5
	ExitSignalMismatch = 6
	ExitInputDir       = 7
	ExitArgCombination = 8
	ExitConverter      = 9
	ExitSpawn          = 10
	ExitGeneric        = 99
)

// ExitCode maps an error returned by a run to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInputDirMissing):
		return ExitInputDir
	case errors.Is(err, ErrInputMissing), errors.Is(err, os.ErrNotExist), errors.Is(err, orbit.ErrInvalidTLE):
		return ExitInputMissing
	case errors.Is(err, runner.ErrBinaryNotFound):
		return ExitBinaryNotFound
	case errors.Is(err, ErrInvalidOption):
		return ExitInvalidOption
	case errors.Is(err, config.ErrInvalid):
		return ExitInvalidConfig
	case errors.Is(err, runner.ErrSignalMismatch):
		return ExitSignalMismatch
	case errors.Is(err, ErrArgCombination):
		return ExitArgCombination
	case errors.Is(err, runner.ErrConverterFailed):
		return ExitConverter
	case errors.Is(err, runner.ErrSpawn):
		return ExitSpawn
	default:
		return ExitGeneric
	}
}
