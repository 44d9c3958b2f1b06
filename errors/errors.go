// Package errors defines the sentinel error values returned by the fat16
// driver. Every exported operation that can fail returns one of these kinds,
// optionally wrapped with a human-readable message and/or an underlying
// cause via WithMessage/WrapError.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies an error category: the nine named by the driver's
// error-handling contract, plus the general-purpose InvalidArgument and
// IOFailure. Kind itself implements the error interface so it
// can be returned, compared, and wrapped without an extra allocation when no
// message or cause is needed.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	// InvalidFileSystem means the boot signature is absent or the BPB is
	// internally inconsistent.
	InvalidFileSystem Kind = "invalid file system"

	// OutOfBounds means a directory entry index exceeds the directory's
	// entry count.
	OutOfBounds Kind = "index out of bounds"

	// NotDeletable means the target entry is a directory, system, hidden,
	// volume-label, read-only, already-deleted, or unused entry.
	NotDeletable Kind = "entry not deletable"

	// NotFound means a handle does not match any entry in the current
	// directory.
	NotFound Kind = "entry not found"

	// NotReadable means the entry's kind excludes it from being read
	// (directory, unused, deleted, hidden, system, volume label).
	NotReadable Kind = "entry not readable"

	// NoSpace means the FAT has no free, non-reserved cluster left to
	// allocate.
	NoSpace Kind = "no space left on device"

	// NotSectorAligned means a non-flush write was given a buffer whose
	// length isn't a whole multiple of the sector size.
	NotSectorAligned Kind = "write not sector aligned"

	// DirectoryFull means no unused or deleted slot exists in the target
	// directory to receive a new entry.
	DirectoryFull Kind = "directory full"

	// CorruptChain means a cluster chain revisited a cluster already seen
	// in this traversal, or exceeded the FAT's cluster count.
	CorruptChain Kind = "corrupt cluster chain"

	// InvalidArgument is a general-purpose kind for malformed caller input
	// that doesn't fall under one of the domain-specific kinds above.
	InvalidArgument Kind = "invalid argument"

	// IOFailure wraps a failure from the underlying block device.
	IOFailure Kind = "device i/o failure"
)

// DriverError is the concrete error type returned by the driver. It pairs a
// Kind with an optional message and an optional wrapped cause, so callers
// can use errors.Is(err, fat16errors.NotFound) regardless of how much detail
// was attached.
type DriverError struct {
	kind    Kind
	message string
	cause   error
}

// New returns a DriverError carrying kind with no message or cause.
func New(kind Kind) *DriverError {
	return &DriverError{kind: kind}
}

// WithMessage returns a DriverError carrying kind and a formatted message.
func WithMessage(kind Kind, format string, args ...any) *DriverError {
	return &DriverError{kind: kind, message: fmt.Sprintf(format, args...)}
}

// WrapError returns a DriverError carrying kind, a message, and an
// underlying cause that Unwrap() will expose.
func WrapError(kind Kind, cause error, format string, args ...any) *DriverError {
	return &DriverError{kind: kind, message: fmt.Sprintf(format, args...), cause: cause}
}

func (e *DriverError) Error() string {
	if e.message == "" {
		return string(e.kind)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.kind, e.message, e.cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause, if any.
func (e *DriverError) Unwrap() error {
	return e.cause
}

// Is reports whether target is the same Kind as e, so that
// errors.Is(err, fat16errors.NotFound) works without callers needing to
// know about DriverError at all.
func (e *DriverError) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.kind == k
	}
	var other *DriverError
	if errors.As(target, &other) {
		return e.kind == other.kind
	}
	return false
}

// Kind returns the error's category.
func (e *DriverError) Kind() Kind {
	return e.kind
}

// IsSameError reports whether err was constructed with the given kind,
// whether or not it is wrapped. It is a convenience wrapper around
// errors.Is for callers that don't want to construct a Kind value to
// compare against.
func IsSameError(err error, kind Kind) bool {
	return errors.Is(err, kind)
}
