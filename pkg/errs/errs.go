// Package errs augments the standard errors package with a Wrap method and
// a fixed set of typed error kinds surfaced by every CAS operation.
package errs

import (
	stderr "errors"

	"go.uber.org/zap"
)

var _ error = New("")

// Kind classifies an error the way every CAS operation surfaces failures.
type Kind int

const (
	// KindUnknown is the zero value: carried by errors built with New and
	// reported by KindOf for errors that are not an *Error.
	KindUnknown Kind = iota
	// KindMalformedInput covers malformed keys, bad base64/hex, invalid configs.
	KindMalformedInput
	// KindNotFound covers get/remove of an unknown key.
	KindNotFound
	// KindDigestMismatch covers a put whose streamed bytes don't hash to the declared key.
	KindDigestMismatch
	// KindInsufficientReplicas covers a put/remove/list/compact that can't reach enough backends.
	KindInsufficientReplicas
	// KindGCRace covers an endGC whose id no longer matches the current generation.
	KindGCRace
	// KindDiskError covers a failed fsync/pread/pwrite.
	KindDiskError
	// KindTransportLost covers a client-observed disconnect.
	KindTransportLost
)

func (k Kind) String() string {
	switch k {
	case KindMalformedInput:
		return "malformed-input"
	case KindNotFound:
		return "not-found"
	case KindDigestMismatch:
		return "digest-mismatch"
	case KindInsufficientReplicas:
		return "insufficient-replicas"
	case KindGCRace:
		return "gc-race"
	case KindDiskError:
		return "disk-error"
	case KindTransportLost:
		return "transport-lost"
	default:
		return "unknown"
	}
}

// New builds a new *Error carrying msg and no wrapped cause.
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error augments the standard error interface with a Kind and a Wrap method.
//
// The difference with github.com/pkg/errors is that we wrap errors from
// errors, not from text, and every Error carries a Kind callers can branch on.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// Error message.
func (e *Error) Error() string {
	return e.msg
}

// Kind reports the error's classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Unwrap returns the nested error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap attaches a nested error and returns the receiver.
func (e *Error) Wrap(err error) *Error {
	e.err = err
	return e
}

// WrapWithLog attaches a nested error, logs it at Error level with the
// supplied fields, and returns the receiver.
func (e *Error) WrapWithLog(l *zap.Logger, err error, fields ...zap.Field) *Error {
	e.err = err
	if l != nil {
		l.Error(e.msg, append(fields, zap.Error(err))...)
	}
	return e
}

// Is reports whether target is this error or its wrapped cause.
func (e *Error) Is(target error) bool {
	return e == target || e.err == target
}

func newKind(k Kind, msg string) *Error {
	return &Error{kind: k, msg: msg}
}

// Sentinel constructors, one per Kind. Each call site wraps the returned
// *Error with Wrap/WrapWithLog to attach the underlying cause.
func MalformedInput(msg string) *Error        { return newKind(KindMalformedInput, msg) }
func NotFound(msg string) *Error              { return newKind(KindNotFound, msg) }
func DigestMismatch(msg string) *Error        { return newKind(KindDigestMismatch, msg) }
func InsufficientReplicas(msg string) *Error  { return newKind(KindInsufficientReplicas, msg) }
func GCRace(msg string) *Error                { return newKind(KindGCRace, msg) }
func DiskError(msg string) *Error             { return newKind(KindDiskError, msg) }
func TransportLost(msg string) *Error         { return newKind(KindTransportLost, msg) }

// KindOf extracts the Kind of err if it is (or wraps) an *Error, and
// KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if stderr.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// As finds the first error in err's chain that matches target (a shortcut to
// the standard library's errors.As).
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target (a shortcut to
// the standard library's errors.Is).
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
