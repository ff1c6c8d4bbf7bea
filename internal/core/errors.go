// Package core wires configuration, platform clients, pipelines and
// storage into the operations the CLI exposes.
package core

import (
	"errors"
	"fmt"
	"os"
	"sort"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/utils"
)

// Exit codes by error type
const (
	ExitGeneric    = 1
	ExitValidation = 2
	ExitNotFound   = 3
	ExitFatal      = 4
	ExitPermission = 5
	ExitRateLimit  = 6
	ExitTimeout    = 7
	ExitExternal   = 8
	ExitInternal   = 9
)

// HandleError logs err at a level matching its type and prints a
// user-facing message.
func HandleError(err error, logger *utils.Logger) {
	if err == nil {
		return
	}

	errorType, ok := bserrors.GetType(err)
	context := bserrors.GetContext(err)

	if ok {
		switch errorType {
		case bserrors.ErrorTypeValidation:
			logger.Debug("Validation error: %v", err)
		case bserrors.ErrorTypeNotFound:
			logger.Debug("Resource not found: %v", err)
		case bserrors.ErrorTypeFatal:
			logger.Error("Fatal error: %v", err)
		case bserrors.ErrorTypePermission:
			logger.Warn("Permission denied: %v", err)
		case bserrors.ErrorTypeRateLimit:
			logger.Warn("Rate limit exceeded: %v", err)
		case bserrors.ErrorTypeTimeout, bserrors.ErrorTypeTransient:
			logger.Error("Operation timeout: %v", err)
		case bserrors.ErrorTypeExternal, bserrors.ErrorTypeSchema:
			logger.Error("External service error: %v", err)
		case bserrors.ErrorTypeInternal:
			logger.Error("Internal error: %v", err)
		default:
			logger.Error("Unknown error type %s: %v", errorType, err)
		}
	} else {
		logger.Error("Unexpected error: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Error: %s\n", bserrors.UserMessage(err))

	if ok && len(context) > 0 {
		fmt.Fprintf(os.Stderr, "\nDebug Information:\n")
		fmt.Fprintf(os.Stderr, "  Type: %s\n", errorType)
		fmt.Fprintf(os.Stderr, "  Context:\n")
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(os.Stderr, "    %s: %v\n", k, context[k])
		}
	}
}

// ExitCode maps an error to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	errorType, ok := bserrors.GetType(err)
	if !ok {
		return ExitGeneric
	}
	switch errorType {
	case bserrors.ErrorTypeValidation:
		return ExitValidation
	case bserrors.ErrorTypeNotFound:
		return ExitNotFound
	case bserrors.ErrorTypeFatal:
		return ExitFatal
	case bserrors.ErrorTypePermission:
		return ExitPermission
	case bserrors.ErrorTypeRateLimit:
		return ExitRateLimit
	case bserrors.ErrorTypeTimeout, bserrors.ErrorTypeTransient:
		return ExitTimeout
	case bserrors.ErrorTypeExternal, bserrors.ErrorTypeSchema:
		return ExitExternal
	case bserrors.ErrorTypeInternal:
		return ExitInternal
	}
	return ExitGeneric
}

// ExitOnError handles an error and exits with the matching code
func ExitOnError(err error, logger *utils.Logger) {
	if err == nil {
		return
	}

	HandleError(err, logger)
	os.Exit(ExitCode(err))
}

// WrapCommandError wraps errors from command execution with context
func WrapCommandError(err error, command string, args map[string]interface{}) error {
	if err == nil {
		return nil
	}

	var bsErr *bserrors.BountyScopeError
	if errors.As(err, &bsErr) {
		bsErr.WithContext("command", command)
		for k, v := range args {
			bsErr.WithContext(k, v)
		}
		return err
	}

	wrapped := bserrors.InternalError(fmt.Sprintf("command '%s' failed", command), err)
	wrapped.WithContext("command", command)
	for k, v := range args {
		wrapped.WithContext(k, v)
	}
	return wrapped
}
