package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/felixgeelhaar/orgsync/internal/infrastructure/config"
	"github.com/felixgeelhaar/orgsync/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/orgsync/pkg/domain/desired"
	"github.com/felixgeelhaar/orgsync/pkg/domain/planning"
	"github.com/felixgeelhaar/orgsync/pkg/storage"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailed    = 1
	ExitInvalid   = 2
	ExitCancelled = 3
)

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: ExitFailed,
	}
}

func invalid(msg, hint string, err error) *CLIError {
	e := NewCLIError(msg, hint, err)
	e.ExitCode = ExitInvalid
	return e
}

// MapError converts known domain errors into CLIErrors with actionable hints.
// Unmapped errors are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	var schemaErr *storage.SchemaError
	if errors.As(err, &schemaErr) {
		return invalid("spec does not match the schema", "Fix the listed fields and run 'orgsync validate <spec>'", err)
	}

	var cfgErr *desired.ConfigurationError
	if errors.As(err, &cfgErr) {
		if cfgErr.Field == "name" {
			return invalid("invalid organization", "Check the org name and that the token can see it", err)
		}
		return invalid("invalid spec", fmt.Sprintf("Fix '%s' and run 'orgsync validate <spec>'", cfgErr.Field), err)
	}

	switch {
	case errors.Is(err, storage.ErrUnreadableSpec):
		return invalid("cannot read spec", "Check the path and that the file is valid YAML or JSON", err)
	case errors.Is(err, wiring.ErrMissingToken):
		return invalid("no GitHub token", "Export GITHUB_TOKEN or set github.token_env in the config file", err)
	case errors.Is(err, config.ErrInvalidConfig):
		return invalid("invalid configuration", "Run 'orgsync config show' to inspect the effective configuration", err)
	case errors.Is(err, context.Canceled):
		return &CLIError{Message: "interrupted", Err: err, ExitCode: ExitCancelled}
	case errors.Is(err, planning.ErrCyclicDependency), errors.Is(err, planning.ErrUnknownDependency):
		return NewCLIError("internal planning error", "Please report this with the spec that triggered it", err)
	}

	return err
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cliErr *CLIError
	if errors.As(MapError(err), &cliErr) {
		return cliErr.ExitCode
	}
	return ExitFailed
}

// PrintError writes err and its hint, if any.
func PrintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	err = MapError(err)
	fmt.Fprintf(w, "Error: %v\n", err)

	var cliErr *CLIError
	if errors.As(err, &cliErr) && cliErr.Hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", cliErr.Hint)
	}
}
