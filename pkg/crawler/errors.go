package crawler

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation marks source states the crawler refuses to work with.
var ErrInvariantViolation = errors.New("invariant violation")

var (
	// ErrTotalShrank is returned when the probed total is below the last known total.
	ErrTotalShrank = fmt.Errorf("%w: result count shrank", ErrInvariantViolation)

	// ErrCountExceedsTotal is returned when more items are requested than exist.
	ErrCountExceedsTotal = fmt.Errorf("%w: requested count exceeds total", ErrInvariantViolation)
)

// CountError carries the numbers behind an invariant violation.
type CountError struct {
	Err      error
	Current  int
	Expected int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("%v (current %d, expected %d)", e.Err, e.Current, e.Expected)
}

func (e *CountError) Unwrap() error {
	return e.Err
}
