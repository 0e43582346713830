package errors

import (
	"errors"
	"fmt"
)

var (
	ErrFormatNotDetected    = errors.New("file format not detected")
	ErrInvalidFileFormat    = errors.New("invalid file format")
	ErrChipNotResolved      = errors.New("chip not resolved")
	ErrNoSamplesInWindow    = errors.New("no gps samples in window")
	ErrImportRunNotFound    = errors.New("import run not found")
	ErrDeviceOffline        = errors.New("device is offline")
	ErrExternalAPITimeout   = errors.New("external API timeout")
	ErrExternalAPIError     = errors.New("external API error")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

// DuplicateError marks a store write rejected by a uniqueness constraint so
// callers can count the rows as already imported instead of broken.
type DuplicateError struct {
	Err error
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("duplicate readings: %s", e.Err.Error())
}

func (e DuplicateError) Unwrap() error {
	return e.Err
}

func NewDuplicateError(err error) error {
	return DuplicateError{Err: err}
}

func IsDuplicate(err error) bool {
	var d DuplicateError
	return errors.As(err, &d)
}

type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

func IsRetryable(err error) bool {
	var r RetryableError
	return errors.As(err, &r)
}
