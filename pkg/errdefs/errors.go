// Package errdefs holds the error taxonomy shared by the conversation manager.
//
// Every typed error matches its sentinel through errors.Is, so callers can
// branch on the class of failure without caring about the concrete type:
//
//	if errors.Is(err, errdefs.ErrBusy) { ... }
package errdefs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrBusy                = errors.New("busy")
	ErrValidation          = errors.New("validation error")
	ErrGateway             = errors.New("gateway error")
)

// NotFoundError reports a reference to a resource that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ErrNotFound.Error()
	}
	if e.ID == "" {
		return fmt.Sprintf("%s %s", e.Resource, ErrNotFound)
	}
	return fmt.Sprintf("%s %q %s", e.Resource, e.ID, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// UnsupportedLanguageError reports a language code outside the supported set.
type UnsupportedLanguageError struct {
	Code string
}

func (e *UnsupportedLanguageError) Error() string {
	if e == nil {
		return ErrUnsupportedLanguage.Error()
	}
	return fmt.Sprintf("language code %q is not supported", e.Code)
}

func (e *UnsupportedLanguageError) Is(target error) bool { return target == ErrUnsupportedLanguage }

// BusyError reports that an exclusive operation is already in flight for Target.
type BusyError struct {
	Operation string
	Target    string
}

func (e *BusyError) Error() string {
	if e == nil {
		return ErrBusy.Error()
	}
	if e.Target == "" {
		return fmt.Sprintf("%s already in progress", e.Operation)
	}
	return fmt.Sprintf("%s already in progress for %q", e.Operation, e.Target)
}

func (e *BusyError) Is(target error) bool { return target == ErrBusy }

// ValidationError reports invalid caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// GatewayError wraps any failure coming from the completion service.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ErrGateway.Error()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", ErrGateway, e.Op)
	}
	return fmt.Sprintf("%s: %s: %s", ErrGateway, e.Op, e.Err.Error())
}

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewGatewayError wraps err as a GatewayError unless it already is one.
func NewGatewayError(op string, err error) error {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}
