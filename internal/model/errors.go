package model

import (
	"errors"
	"fmt"
)

var ErrHabitNotFound = errors.New("habit not found")

// ValidationError reports a malformed or missing field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
