// Package apperr defines the stable error taxonomy shared by the CLI and
// HTTP surfaces, so exit codes and status codes cannot drift between them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable error classification. The string value
// is part of the wire contract (HTTP envelope "code" field) and must not
// change once released.
type Kind string

const (
	InvalidInput     Kind = "InvalidInput"
	InvalidToken     Kind = "InvalidToken"
	InvalidKey       Kind = "InvalidKey"
	InvalidSignature Kind = "InvalidSignature"
	ClaimInvalid     Kind = "ClaimInvalid"
	AmbiguousKey     Kind = "AmbiguousKey"
	NotFound         Kind = "NotFound"
	StorageError     Kind = "StorageError"
	CryptoError      Kind = "CryptoError"
	NonInteractive   Kind = "NonInteractive"
	MissingEnv       Kind = "MissingEnv"
	IOError          Kind = "IOError"
	CsrfRejected     Kind = "CsrfRejected"
	OriginRejected   Kind = "OriginRejected"
	Internal         Kind = "Internal"
)

// Error is the concrete error type carried across every workbench surface.
type Error struct {
	Kind    Kind
	Message string
	err     error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// As reports the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise, in which case callers should treat it as Internal.
func As(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// KindOf returns the Kind of err, defaulting to Internal for plain errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if k, ok := As(err); ok {
		return k
	}
	return Internal
}

// exitCodes and httpStatuses form the single shared mapping table referenced
// by both the CLI dispatcher and the HTTP layer.
var exitCodes = map[Kind]int{
	InvalidInput:     10,
	InvalidToken:     10,
	InvalidSignature: 11,
	ClaimInvalid:     12,
	InvalidKey:       13,
	AmbiguousKey:     13,
	NotFound:         13,
	StorageError:     14,
	CryptoError:      14,
	NonInteractive:   10,
	MissingEnv:       10,
	IOError:          14,
	CsrfRejected:     14,
	OriginRejected:   14,
	Internal:         14,
}

var httpStatuses = map[Kind]int{
	InvalidInput:     400,
	InvalidToken:     400,
	ClaimInvalid:     422,
	InvalidSignature: 422,
	InvalidKey:       422,
	AmbiguousKey:     409,
	NotFound:         404,
	StorageError:     500,
	CryptoError:      500,
	NonInteractive:   400,
	MissingEnv:       400,
	IOError:          500,
	CsrfRejected:     403,
	OriginRejected:   403,
	Internal:         500,
}

// ExitCode returns the process exit code for err, per the shared table.
// Success (nil error) is not represented here; callers exit 0 themselves.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := exitCodes[KindOf(err)]; ok {
		return code
	}
	return 14
}

// HTTPStatus returns the HTTP status code for err, per the shared table.
func HTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	if code, ok := httpStatuses[KindOf(err)]; ok {
		return code
	}
	return 500
}
