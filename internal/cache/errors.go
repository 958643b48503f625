package cache

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotFound indicates a virtual path is absent from both trees
	ErrNotFound = errors.New("path not found")

	// ErrBadHandle indicates an unknown or already released handle
	ErrBadHandle = errors.New("bad file handle")

	// ErrIO indicates a storage-level copy, read or write failed
	ErrIO = errors.New("input/output error")
)

var errNegativeLength = errors.New("negative read length")

// Error describes a failed engine operation. Kind is one of ErrNotFound,
// ErrBadHandle or ErrIO; Err is the underlying cause, if any.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Err != nil {
		msg = fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns a short label for the error kind.
func (e *Error) KindName() string {
	switch e.Kind {
	case ErrNotFound:
		return "not_found"
	case ErrBadHandle:
		return "bad_handle"
	default:
		return "io_error"
	}
}

func notFound(op, path string) *Error {
	return &Error{Op: op, Path: path, Kind: ErrNotFound}
}

func badHandle(op string, h Handle) *Error {
	return &Error{Op: op, Path: fmt.Sprintf("handle %d", h), Kind: ErrBadHandle}
}

func ioError(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Kind: ErrIO, Err: err}
}

// classify turns an OS error into NotFound when the file is missing and
// IOError otherwise. Errors that are already classified pass through.
func classify(op, path string, err error) error {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return err
	}
	if errors.Is(err, fs.ErrNotExist) {
		return &Error{Op: op, Path: path, Kind: ErrNotFound, Err: err}
	}
	return ioError(op, path, err)
}

// Operation names for consistent logging and error reporting
const (
	OpGetattr  = "getattr"
	OpReaddir  = "readdir"
	OpOpen     = "open"
	OpCreate   = "create"
	OpRead     = "read"
	OpWrite    = "write"
	OpRelease  = "release"
	OpTruncate = "truncate"
	OpUnlink   = "unlink"
	OpFsync    = "fsync"
	OpPopulate = "populate"
	OpSync     = "sync"
)
