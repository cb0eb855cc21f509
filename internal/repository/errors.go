package repository

import "errors"

var (
	// ErrJobNotFound indicates the job id does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition indicates a write that violates the job state
	// machine, e.g. claiming a non-pending job or deleting a completed one.
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrNotFound indicates a missing domain record (remote item, evidence).
	ErrNotFound = errors.New("record not found")
)
