package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// ErrInvariantViolation marks internal-consistency failures. These are caller
	// programming errors and must propagate instead of being skipped.
	ErrInvariantViolation = errors.New("invariant violation")
	ErrEmptySite          = fmt.Errorf("%w: site has no events", ErrInvariantViolation)
	ErrAmbiguousOrder     = fmt.Errorf("%w: distinct values share identifying fields", ErrInvariantViolation)

	// Input errors
	ErrEventOutOfRange        = errors.New("event time outside observation window")
	ErrInconsistentExperiment = errors.New("experiment total time differs between records")
	ErrInvalidTotalTime       = errors.New("total time must be positive")
	ErrInvalidClusterSize     = errors.New("cluster size must be at least 2")

	// Lookup errors
	ErrNotFound       = errors.New("resource not found")
	ErrSiteNotFound   = fmt.Errorf("%w: site", ErrNotFound)
	ErrCutoffNotFound = fmt.Errorf("%w: cutoff", ErrNotFound)

	// ErrScoreUndefined is returned when a goodness-of-fit p-value underflows to zero.
	ErrScoreUndefined = errors.New("score undefined for zero p-value")
)

// NewEmptySiteError reports a time-based query against a site without events.
func NewEmptySiteError(key SiteKey) error {
	return fmt.Errorf("%w: %s", ErrEmptySite, key)
}

// NewAmbiguousOrderError reports two distinct values that compare as equal.
func NewAmbiguousOrderError(kind, identity string) error {
	return fmt.Errorf("%w: %s %s", ErrAmbiguousOrder, kind, identity)
}

// IsInvariantViolation reports whether err must abort the computation.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// IsNotFoundError reports whether err is a lookup miss.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
