package fs

import "errors"

// Error represents a domain error from engine operations.
//
// These are format and filesystem-logic errors (bad checksum, missing
// path component, oversized payload) as opposed to infrastructure errors
// from the backing device. The VFS layer above the engine translates
// codes to POSIX errnos.
type Error struct {
	// Code is the error category.
	Code ErrorCode

	// Message is a human-readable error description.
	Message string

	// Path is the filesystem path related to the error, if applicable.
	Path string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode is the category of an engine error.
type ErrorCode int

const (
	// ErrInvalidFormat indicates on-disk corruption or a format violation:
	// bad magic, checksum mismatch, truncated or malformed TLV, or an inode
	// number disagreement between the table and a node record.
	ErrInvalidFormat ErrorCode = iota

	// ErrNotFound indicates a missing path component, encryption key,
	// snapshot, or dedup entry.
	ErrNotFound

	// ErrInvalidOperation indicates a structurally impossible request,
	// such as traversing a regular file as a directory.
	ErrInvalidOperation

	// ErrInvalidArgument indicates invalid parameters: oversized block
	// payload, wrong key size, empty names.
	ErrInvalidArgument

	// ErrIO indicates a failure in the underlying backing device.
	ErrIO

	// ErrPermissionDenied is surfaced to the VFS layer; the engine itself
	// performs no permission checks.
	ErrPermissionDenied

	// ErrNoSpace indicates block allocation exhaustion on the device.
	ErrNoSpace

	// ErrNoMemory indicates an in-memory allocation limit was reached.
	ErrNoMemory

	// ErrAuthentication indicates AEAD decryption failed: the ciphertext
	// or its tag was tampered with, or the wrong key was used.
	ErrAuthentication
)

func (c ErrorCode) String() string {
	switch c {
	case ErrInvalidFormat:
		return "invalid format"
	case ErrNotFound:
		return "not found"
	case ErrInvalidOperation:
		return "invalid operation"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrIO:
		return "io error"
	case ErrPermissionDenied:
		return "permission denied"
	case ErrNoSpace:
		return "out of space"
	case ErrNoMemory:
		return "out of memory"
	case ErrAuthentication:
		return "authentication failed"
	default:
		return "unknown"
	}
}

// CodeOf extracts the ErrorCode from err, or ok=false when err is not an
// engine error.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// IsCode reports whether err is an engine error with the given code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// NewInvalidFormatError creates an Error for on-disk format violations.
func NewInvalidFormatError(msg string) *Error {
	return &Error{Code: ErrInvalidFormat, Message: msg}
}

// NewNotFoundError creates an Error for a missing entity.
func NewNotFoundError(msg, path string) *Error {
	return &Error{Code: ErrNotFound, Message: msg, Path: path}
}

// NewInvalidOperationError creates an Error for a structurally invalid request.
func NewInvalidOperationError(msg, path string) *Error {
	return &Error{Code: ErrInvalidOperation, Message: msg, Path: path}
}

// NewInvalidArgumentError creates an Error for bad parameters.
func NewInvalidArgumentError(msg string) *Error {
	return &Error{Code: ErrInvalidArgument, Message: msg}
}

// NewIOError wraps a device failure as an engine error.
func NewIOError(msg string) *Error {
	return &Error{Code: ErrIO, Message: msg}
}

// NewNoSpaceError creates an Error for allocation exhaustion.
func NewNoSpaceError(msg string) *Error {
	return &Error{Code: ErrNoSpace, Message: msg}
}

// NewAuthenticationError creates an Error for AEAD authentication failure.
func NewAuthenticationError(msg string) *Error {
	return &Error{Code: ErrAuthentication, Message: msg}
}
