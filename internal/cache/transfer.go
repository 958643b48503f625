package cache

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"cachefs/internal/metrics"
)

// copyBufferSize bounds the memory used by a single file transfer.
const copyBufferSize = 64 * 1024

// streamFile copies src over dst through a fixed-size buffer, creating the
// parent directories of dst. A failure part way through leaves dst
// truncated; callers do not roll it back.
func streamFile(dst, src string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	// The anonymous wrappers hide ReadFrom/WriteTo so io.CopyBuffer really
	// goes through buf.
	buf := make([]byte, copyBufferSize)
	n, copyErr := io.CopyBuffer(struct{ io.Writer }{out}, struct{ io.Reader }{in}, buf)
	closeErr := out.Close()
	if copyErr != nil {
		return n, copyErr
	}
	return n, closeErr
}

// exists reports whether path is present. Errors other than "does not
// exist" are returned so they can surface as I/O failures.
func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// ensureCached guarantees a cache-resident copy of rel. Existence is the only
// check: a truncated copy left by an earlier failure counts as cached.
func (e *Engine) ensureCached(rel string) error {
	cachePath := e.paths.CachePath(rel)
	cached, err := exists(cachePath)
	if err != nil {
		return ioError(OpPopulate, rel, err)
	}
	if cached {
		metrics.RecordCacheHit()
		return nil
	}

	remotePath := e.paths.RemotePath(rel)
	present, err := exists(remotePath)
	if err != nil {
		return ioError(OpPopulate, rel, err)
	}
	if !present {
		return notFound(OpPopulate, rel)
	}

	e.logger.Info("Cache miss: streaming %q from remote to cache", rel)
	n, err := streamFile(cachePath, remotePath)
	metrics.RecordCacheMiss(n)
	if err != nil {
		e.logger.Error("Failed to stream %q into cache: %v", rel, err)
		return ioError(OpPopulate, rel, err)
	}

	e.logger.Debug("Cached %q (%d bytes)", rel, n)
	return nil
}

// syncToRemote overwrites the remote copy of rel with the cache content.
func (e *Engine) syncToRemote(rel string) error {
	e.logger.Info("Sync: streaming %q from cache to remote", rel)

	n, err := streamFile(e.paths.RemotePath(rel), e.paths.CachePath(rel))
	metrics.RecordSync(n, err)
	if err != nil {
		e.logger.Error("Failed to sync %q to remote: %v", rel, err)
		return ioError(OpSync, rel, err)
	}

	e.logger.Debug("Synced %q (%d bytes)", rel, n)
	return nil
}
