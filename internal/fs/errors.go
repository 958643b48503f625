// Package fs provides the FUSE bridge for the caching engine.
//
// This file contains the translation from engine errors to the errno values
// the kernel expects.
package fs

import (
	"errors"
	"os"
	"syscall"

	"cachefs/internal/cache"
	"cachefs/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")
)

// ToFuseError converts an engine error to the matching FUSE error code.
// Only three codes ever reach the kernel: ENOENT, EBADF and EIO.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}

	var engineErr *cache.Error
	if errors.As(err, &engineErr) {
		errLogger.Trace("Converting engine error to FUSE error: %v", engineErr)

		switch {
		case errors.Is(engineErr, cache.ErrNotFound):
			return syscall.ENOENT
		case errors.Is(engineErr, cache.ErrBadHandle):
			return syscall.EBADF
		default:
			return syscall.EIO
		}
	}

	// For errors that did not come through the engine
	errLogger.Trace("Converting standard error to FUSE error: %v", err)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return syscall.ENOENT
	default:
		errLogger.Debug("Unknown error type, returning EIO: %v", err)
		return syscall.EIO
	}
}
