package utils

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a helper receives an argument it cannot work with.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRetryExhausted matches every *RetryExhaustedError through errors.Is.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// RetryExhaustedError is returned by Retry once the attempt budget is used up.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
