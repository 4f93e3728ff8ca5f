// Package errs holds the sentinel errors shared across the expected-move engine.
// Call sites wrap them with context; callers classify with errors.Is.
package errs

import "errors"

var (
	// ErrInvalidArgument rejects bad input (non-positive tick, unknown model, horizon < 1).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCalendarDataGap means the holiday table or expiration rules cannot answer
	// for the requested date or symbol.
	ErrCalendarDataGap = errors.New("calendar data gap")

	// ErrUpstreamQuoteFailure means the quote provider failed or returned nothing.
	ErrUpstreamQuoteFailure = errors.New("upstream quote failure")

	// ErrDuplicateRecord is returned when a historical record for (symbol, date) exists.
	ErrDuplicateRecord = errors.New("duplicate record")

	ErrNotFound = errors.New("not found")

	// ErrAlreadySettled is returned when an actual close was already attached.
	ErrAlreadySettled = errors.New("already settled")

	// ErrBusy means another writer holds the row; the caller may retry.
	ErrBusy = errors.New("resource busy")
)
