package arbiscan

import (
	"errors"
	"fmt"
)

// TransientError wraps a retryable failure: rate limiting, HTTP 5xx, or
// network errors. The client retries these with exponential backoff; once
// attempts are exhausted the last TransientError is escalated inside a
// FatalError so the caller still sees the address and cursor to resume
// from.
type TransientError struct {
	Address string
	Cursor  Cursor
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch error (address=%s page=%d): %v", e.Address, e.Cursor.Page, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError wraps a non-retryable failure: authentication rejection or a
// malformed response schema. It aborts the run and carries the address
// and cursor context for resumption.
type FatalError struct {
	Address string
	Cursor  Cursor
	Err     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal fetch error (address=%s page=%d): %v", e.Address, e.Cursor.Page, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
