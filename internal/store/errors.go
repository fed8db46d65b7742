package store

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes store failures.
type ErrorCode string

const (
	// ErrCodeUnavailable means the database could not be opened even after
	// a retry. No persistence is possible until a later open succeeds.
	ErrCodeUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// ErrCodeTransaction means a single get/put failed. Only that call is
	// affected; the caller decides the fallback.
	ErrCodeTransaction ErrorCode = "TRANSACTION_ERROR"
)

// StoreError is returned by every Store method that touches SQLite.
type StoreError struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is a StoreUnavailable failure.
func IsUnavailable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == ErrCodeUnavailable
}

// IsTransaction reports whether err is a TransactionError.
func IsTransaction(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == ErrCodeTransaction
}
