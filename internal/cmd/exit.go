package cmd

import (
	"errors"
	"fmt"
)

// Exit codes for scripted callers.
const (
	ExitOK                 = 0
	ExitGeneralError       = 1
	ExitInvalidArgument    = 2
	ExitFileNotFound       = 3
	ExitResourceNotFound   = 4
	ExitExecutionFailed    = 5
	ExitServiceUnavailable = 6
)

// ExitCodeError carries an exit code alongside the error so main can map
// failures to stable process exit statuses.
type ExitCodeError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

func exitError(code int, message string, err error) error {
	return &ExitCodeError{Code: code, Message: message, Err: err}
}

// ExitCode extracts the exit code from an error returned by Execute.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ec *ExitCodeError
	if errors.As(err, &ec) {
		return ec.Code
	}
	return ExitGeneralError
}
