package mychoize

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport reports that the gateway could not be reached.
	ErrTransport = errors.New("mychoize: transport failure")
	// ErrBadResponse reports a non-2xx status or a payload missing its expected fields.
	ErrBadResponse = errors.New("mychoize: bad response")
	// ErrRetryExhausted is returned once every attempt of a retried call failed.
	ErrRetryExhausted = errors.New("mychoize: retries exhausted")
	// ErrInvalidDate is returned when a date string cannot be parsed.
	ErrInvalidDate = errors.New("mychoize: invalid date")
)

// StatusError carries the status and a prefix of the body of a failed gateway response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("mychoize: gateway returned status %d", e.Code)
	}
	return fmt.Sprintf("mychoize: gateway returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrBadResponse }

// RetryExhaustedError wraps the cause of the last failed attempt.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("mychoize: failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

func (e *RetryExhaustedError) Unwrap() error { return e.Err }
