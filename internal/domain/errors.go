package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a referenced document does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports missing or blank inputs. No I/O has been performed
// when one is returned.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(e.Fields, ", "))
}

// ConflictError signals a duplicate (description, barcode) pair. The write is
// held under Token until confirmed or cancelled.
type ConflictError struct {
	Token string
	Key   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("a sample with key %q already exists", e.Key)
}

// TransientError wraps a backend failure. Its message is safe to show to
// operators; the cause is available through Unwrap.
type TransientError struct {
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	return e.Message
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
