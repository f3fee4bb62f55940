// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

package backup

import (
	"errors"
	"fmt"
)

// ErrOperationInProgress is returned when a destructive operation is started
// while another one is still running. The attempt is rejected outright, never
// queued.
var ErrOperationInProgress = errors.New("another destructive operation is already in progress")

// ValidationError reports a malformed artifact, a schema-version mismatch or
// an orphaned reference. It is always raised before any destructive mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "backup validation failed: " + e.Reason
}

// validationErrorf builds a ValidationError with a formatted reason.
func validationErrorf(format string, v ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, v...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DecryptionError reports an authentication-tag verification failure. A wrong
// password and a corrupted artifact are indistinguishable here, deliberately.
type DecryptionError struct{}

func (e *DecryptionError) Error() string {
	return "decryption failed: wrong password or corrupted backup"
}

// IsDecryptionError reports whether err is (or wraps) a DecryptionError.
func IsDecryptionError(err error) bool {
	var de *DecryptionError
	return errors.As(err, &de)
}

// FatalRestoreError reports a failure of the replace/delete transaction
// itself. Because the failure happened inside a transaction, the prior
// dataset is guaranteed intact.
type FatalRestoreError struct {
	Err error
}

func (e *FatalRestoreError) Error() string {
	return "restore transaction failed (dataset unchanged): " + e.Err.Error()
}

func (e *FatalRestoreError) Unwrap() error { return e.Err }
