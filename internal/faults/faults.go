// Package faults defines the error taxonomy shared by every unaflow component.
//
// Components wrap failures in an *Error carrying one of three kinds. Callers
// branch on the kind with Is; the message chain stays intact for display.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a run-aborting failure.
type Kind string

const (
	// Configuration covers missing path parameters and unresolvable
	// cost or weight attribute names.
	Configuration Kind = "ConfigurationError"

	// ResourceNotFound covers missing network, origin or destination files.
	ResourceNotFound Kind = "ResourceNotFound"

	// ComputationFailure covers anything raised by the computation service.
	ComputationFailure Kind = "ComputationFailure"
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an *Error of the given kind with a formatted cause.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. A nil err stays nil. An err that already carries a
// kind keeps it, so the innermost classification wins.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether any error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first classified error in err's chain, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
