package reconcile

import (
	"errors"
	"fmt"
)

// ValidationError means the import payload is structurally unusable. It is
// always returned before anything has been written.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid import: %s: %v", e.Reason, e.Err)
	}
	return "invalid import: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ErrOutsidePeriod marks an imported draft day that lies outside the
// draft's own period and so has no archive record to land in.
var ErrOutsidePeriod = errors.New("day outside imported period")

// CurrentStateIndex is the Index reported for entries that came from the
// imported draft rather than from its history.
const CurrentStateIndex = -1

// PartialImportError records one archive entry that could not be
// normalized or written. The import carries on without it.
type PartialImportError struct {
	Index           int
	PeriodStartDate string
	Err             error
}

func (e *PartialImportError) Error() string {
	if e.Index == CurrentStateIndex {
		return fmt.Sprintf("currentState (%s) skipped: %v", e.PeriodStartDate, e.Err)
	}
	if e.PeriodStartDate != "" {
		return fmt.Sprintf("history[%d] (%s) skipped: %v", e.Index, e.PeriodStartDate, e.Err)
	}
	return fmt.Sprintf("history[%d] skipped: %v", e.Index, e.Err)
}

func (e *PartialImportError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
