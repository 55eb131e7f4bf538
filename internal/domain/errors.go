package domain

import "errors"

// Error categories. Callers wrap these with context and match them with errors.Is.
var (
	ErrFormat           = errors.New("format error")
	ErrIO               = errors.New("io error")
	ErrNetwork          = errors.New("network error")
	ErrInsufficientData = errors.New("insufficient data")
)

// Process exit codes returned by the ingest commands.
const (
	ExitOK               = 0
	ExitUsage            = 1
	ExitFormat           = 2
	ExitIO               = 3
	ExitNetwork          = 4
	ExitInsufficientData = 5
)

// ExitCode maps an error returned by an ingest run to a process exit code.
// Errors outside the known categories are treated as usage or configuration failures.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrFormat):
		return ExitFormat
	case errors.Is(err, ErrIO):
		return ExitIO
	case errors.Is(err, ErrNetwork):
		return ExitNetwork
	case errors.Is(err, ErrInsufficientData):
		return ExitInsufficientData
	default:
		return ExitUsage
	}
}
