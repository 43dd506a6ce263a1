package core

import (
	"database/sql"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// StorageError reports a failure of the underlying store. It is never recoverable by the caller's input.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps a store failure. A closed connection cannot recover and asks for a shutdown.
func NewStorageError(op string, err error) error {
	if errors.Is(err, sql.ErrConnDone) {
		err = NewShutdownError(err.Error())
	}
	return &StorageError{Op: op, Err: err}
}

func (err StorageError) Error() string {
	if err.Err == nil {
		return err.Op
	}
	return err.Op + ": " + err.Err.Error()
}

func (err StorageError) Unwrap() error { return err.Err }

func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	var s *shutdown
	return errors.As(err, &s)
}
