package cmd

import (
	"errors"
	"fmt"
	"os"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/lingualens/lingualens/internal/core/client"
	"github.com/lingualens/lingualens/internal/core/engine"
	"github.com/lingualens/lingualens/internal/observability"
)

// ExitCodeFor maps a command error onto a foundry exit code.
func ExitCodeFor(err error) foundry.ExitCode {
	var (
		cfgErr  *configError
		limited *engine.RateLimitedError
		apiErr  *client.APIError
	)
	switch {
	case err == nil:
		return foundry.ExitCode(0)
	case errors.As(err, &cfgErr):
		return foundry.ExitConfigInvalid
	case errors.As(err, &limited):
		return foundry.ExitFailure
	case errors.Is(err, client.ErrUnavailable), errors.Is(err, client.ErrTimeout):
		return foundry.ExitExternalServiceUnavailable
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 500:
		return foundry.ExitExternalServiceUnavailable
	default:
		return foundry.ExitFailure
	}
}

// Exit terminates the process for a failed command. Server runs log the
// failure as structured JSON; CLI runs print it to stderr.
func Exit(err error) {
	code := ExitCodeFor(err)
	if observability.ServerLogger != nil {
		ExitWithCode(observability.ServerLogger, code, "command failed", err)
		return
	}
	ExitWithCodeStderr(code, "command failed", err)
}

// ExitWithCode logs err with exit code metadata and exits.
// logger may be nil for failures before logger initialization.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}

	var envelope *gferrors.ErrorEnvelope
	if errors.As(err, &envelope) {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
	}

	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)
	os.Exit(info.Code)
}

// ExitWithCodeStderr writes the failure to stderr and exits. Rate limit
// denials print only their message so the wait time reads cleanly.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	var limited *engine.RateLimitedError
	switch {
	case errors.As(err, &limited):
		fmt.Fprintln(os.Stderr, limited.Error())
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		os.Exit(int(exitCode))
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	}
	os.Exit(info.Code)
}
