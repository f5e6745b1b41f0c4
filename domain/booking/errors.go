package booking

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalState = errors.New("illegal state")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("version conflict")
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("booking not found")
)

// TransitionError is returned when the state machine refuses a command.
// Kind is one of ErrIllegalState, ErrForbidden or ErrConflict.
type TransitionError struct {
	Kind    error
	Command string
	Current Status
	Detail  string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: %v (current status %s)", e.Command, e.Kind, e.Current)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return e.Kind }

func illegal(cmd string, current Status, detail string) error {
	return &TransitionError{Kind: ErrIllegalState, Command: cmd, Current: current, Detail: detail}
}

func forbidden(cmd string, current Status, actor Actor) error {
	return &TransitionError{Kind: ErrForbidden, Command: cmd, Current: current,
		Detail: fmt.Sprintf("%s %s may not do this", actor.Role, actor.ID)}
}

// Conflict builds the error returned for a stale write.
func Conflict(cmd string, current Status, expected, actual int) error {
	return &TransitionError{Kind: ErrConflict, Command: cmd, Current: current,
		Detail: fmt.Sprintf("expected version %d, found %d", expected, actual)}
}

// ValidationError reports bad input or a referenced entity in the wrong state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// CurrentStatus extracts the booking status carried by a transition error.
func CurrentStatus(err error) (Status, bool) {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Current, true
	}
	return "", false
}
