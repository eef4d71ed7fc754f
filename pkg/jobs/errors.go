package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors for job operations.
var (
	// ErrJobNotFound indicates the requested job id is unknown.
	ErrJobNotFound = errors.New("job not found")

	// ErrUnknownJobType indicates no executor function is registered for
	// the job's type.
	ErrUnknownJobType = errors.New("unknown job type")
)

// JobError wraps job-level failures with context.
type JobError struct {
	// Op is the operation that failed (e.g. "Run", "Get").
	Op string

	// JobID is the id of the job involved, if known.
	JobID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *JobError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("jobs %s: %s: %v", e.Op, e.JobID, e.Err)
	}
	return fmt.Sprintf("jobs %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *JobError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates an unknown job id.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

// IsUnknownJobType returns true if the error indicates a registry miss.
func IsUnknownJobType(err error) bool {
	return errors.Is(err, ErrUnknownJobType)
}
