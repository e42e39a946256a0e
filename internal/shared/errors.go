package shared

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can react without parsing messages.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindProvider    Kind = "provider"
	KindConsistency Kind = "consistency"
	KindInternal    Kind = "internal"
)

// Error carries a kind plus a human-readable message. The provider kind wraps
// messages reported verbatim by the billing provider.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf builds a validation error.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Providerf builds an external-provider error.
func Providerf(format string, args ...any) error {
	return &Error{Kind: KindProvider, Message: fmt.Sprintf(format, args...)}
}

// Consistencyf builds a derived-value consistency error.
func Consistencyf(format string, args ...any) error {
	return &Error{Kind: KindConsistency, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// UserSafeMessage returns a message suitable to show callers. Internal errors
// are masked; classified errors carry messages written for humans.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if KindOf(err) == KindInternal {
		return "internal error"
	}
	return err.Error()
}
