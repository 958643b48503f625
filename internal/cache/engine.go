// Package cache implements the caching engine behind cachefs: a unified view
// of an authoritative remote tree accelerated by a local cache tree.
//
// Files are pulled into the cache whole on first access and pushed back to
// remote whole, either immediately after every modification or when the last
// modification is followed by a release, depending on the write mode. All
// operations are serialized by a single engine-wide lock.
package cache

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"cachefs/internal/config"
	"cachefs/internal/logging"
	"cachefs/internal/metrics"
)

// Operations is the operation surface a kernel bridge drives.
type Operations interface {
	Getattr(path string) (Attr, error)
	Readdir(path string) ([]string, error)
	Open(path string, flags int) (Handle, error)
	Create(path string, flags int, mode os.FileMode) (Handle, error)
	Read(h Handle, length int, offset int64) ([]byte, error)
	Write(h Handle, data []byte, offset int64) (int, error)
	Release(h Handle) error
	Truncate(path string, size int64) error
	Unlink(path string) error
}

// Options configures an Engine.
type Options struct {
	RemoteDir     string
	CacheDir      string
	WriteMode     config.WriteMode
	MetadataCache bool
}

// Stats is a point-in-time view of the engine's bookkeeping.
type Stats struct {
	OpenHandles int
	DirtyFiles  int
}

// Engine is the operation dispatcher. It owns the handle table and the dirty
// set; both are only touched with mu held.
type Engine struct {
	paths         *Translator
	mode          config.WriteMode
	metadataCache bool
	logger        *logging.Logger

	mu      sync.Mutex
	handles *handleTable
	policy  *writePolicy
}

var _ Operations = (*Engine)(nil)

// NewEngine creates an engine over existing remote and cache directories.
func NewEngine(opts Options) (*Engine, error) {
	logger := logging.GetLogger().WithPrefix("engine")

	for _, dir := range []string{opts.RemoteDir, opts.CacheDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, &fs.PathError{Op: "stat", Path: dir, Err: config.ErrNotDirectory}
		}
	}

	mode, err := config.ParseWriteMode(string(opts.WriteMode))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		paths:         NewTranslator(opts.RemoteDir, opts.CacheDir),
		mode:          mode,
		metadataCache: opts.MetadataCache,
		logger:        logger,
		handles:       newHandleTable(),
	}
	e.policy = newWritePolicy(mode, e.syncToRemote, logger.WithPrefix("policy"))

	logger.Info("Cache engine initialized")
	logger.Info("Remote dir: %s", opts.RemoteDir)
	logger.Info("Cache dir: %s", opts.CacheDir)
	logger.Info("Write mode: %s", mode)
	logger.Info("Metadata cache: %v", opts.MetadataCache)
	return e, nil
}

// track records metrics for an operation. It is deferred before the lock is
// taken so the duration includes lock wait.
func (e *Engine) track(op string, start time.Time, errp *error) {
	err := *errp
	metrics.RecordOperation(op, start, err)
	if err != nil {
		e.logger.Debug("%s failed: %v", op, err)
	}
}

// Getattr returns the attributes of path. With the metadata cache enabled a
// cache-resident copy answers. Otherwise remote is consulted, except for a
// dirty path: remote does not have its content yet, and a file created in
// deferred mode would not exist there at all, failing the stat that follows
// every create.
func (e *Engine) Getattr(path string) (attr Attr, err error) {
	defer e.track(OpGetattr, time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	rel := e.paths.Relative(path)
	if e.metadataCache || e.policy.isDirty(rel) {
		if cached, cacheErr := lstatAttr(e.paths.CachePath(rel)); cacheErr == nil {
			e.logger.Trace("getattr %q served from cache", rel)
			return cached, nil
		}
	}

	attr, err = lstatAttr(e.paths.RemotePath(rel))
	if err != nil {
		return Attr{}, classify(OpGetattr, rel, err)
	}
	return attr, nil
}

// Readdir lists ".", ".." and the union of the remote and cache entries of
// path. A directory missing on one side contributes nothing.
func (e *Engine) Readdir(path string) (names []string, err error) {
	defer e.track(OpReaddir, time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	rel := e.paths.Relative(path)
	seen := make(map[string]struct{})
	for _, dir := range []string{e.paths.RemotePath(rel), e.paths.CachePath(rel)} {
		entries, readErr := os.ReadDir(dir)
		if readErr != nil {
			if errors.Is(readErr, fs.ErrNotExist) || isNotDir(dir) {
				continue
			}
			return nil, ioError(OpReaddir, rel, readErr)
		}
		for _, entry := range entries {
			seen[entry.Name()] = struct{}{}
		}
	}

	names = make([]string, 0, len(seen)+2)
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{".", ".."}, names...), nil
}

func isNotDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Open pulls path into the cache if needed and opens the cache copy.
func (e *Engine) Open(path string, flags int) (h Handle, err error) {
	defer e.track(OpOpen, time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	rel := e.paths.Relative(path)
	if err := e.ensureCached(rel); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(e.paths.CachePath(rel), flags&^(os.O_CREATE|os.O_EXCL), 0)
	if err != nil {
		return 0, classify(OpOpen, rel, err)
	}
	h = e.handles.add(rel, f)
	e.logger.Debug("Opened %q as handle %d (flags %#o)", rel, h, flags)

	// Truncating on open changes content just like Truncate does.
	if flags&os.O_TRUNC != 0 && flags&(os.O_WRONLY|os.O_RDWR) != 0 {
		if err := e.policy.modified(rel, "open with truncate"); err != nil {
			e.discard(h)
			return 0, err
		}
	}
	return h, nil
}

// Create creates path in the cache and applies the create-time write policy.
// Remote is not consulted: a new path has nothing to pull.
func (e *Engine) Create(path string, flags int, mode os.FileMode) (h Handle, err error) {
	defer e.track(OpCreate, time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	rel := e.paths.Relative(path)
	cachePath := e.paths.CachePath(rel)
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return 0, ioError(OpCreate, rel, err)
	}

	f, err := os.OpenFile(cachePath, flags|os.O_CREATE, mode.Perm())
	if err != nil {
		return 0, classify(OpCreate, rel, err)
	}
	h = e.handles.add(rel, f)
	e.logger.Debug("Created %q as handle %d", rel, h)

	if err := e.policy.created(rel); err != nil {
		e.discard(h)
		return 0, err
	}
	return h, nil
}

// discard drops a handle that was issued by a call which then failed.
func (e *Engine) discard(h Handle) {
	if of, ok := e.handles.remove(h); ok {
		of.file.Close()
	}
}

// Read reads up to length bytes at offset. Fewer bytes come back at end of
// file.
func (e *Engine) Read(h Handle, length int, offset int64) (data []byte, err error) {
	defer e.track(OpRead, time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	of, ok := e.handles.get(h)
	if !ok {
		return nil, badHandle(OpRead, h)
	}

	if length < 0 {
		return nil, ioError(OpRead, of.rel, errNegativeLength)
	}
	buf := make([]byte, length)
	n, err := of.file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, ioError(OpRead, of.rel, err)
	}
	e.logger.Trace("Read %d bytes from %q at offset %d", n, of.rel, offset)
	return buf[:n], nil
}

// Write writes data at offset and applies the write-time policy.
func (e *Engine) Write(h Handle, data []byte, offset int64) (n int, err error) {
	defer e.track(OpWrite, time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	of, ok := e.handles.get(h)
	if !ok {
		return 0, badHandle(OpWrite, h)
	}

	if _, err := of.file.Seek(offset, io.SeekStart); err != nil {
		return 0, ioError(OpWrite, of.rel, err)
	}
	n, err = of.file.Write(data)
	if err != nil {
		return n, ioError(OpWrite, of.rel, err)
	}
	e.logger.Trace("Wrote %d bytes to %q at offset %d", n, of.rel, offset)

	// Writes through a handle whose path was unlinked have nowhere to go.
	if of.unlinked {
		return n, nil
	}
	if err := e.policy.modified(of.rel, "write"); err != nil {
		return n, err
	}
	return n, nil
}

// Release closes a handle and, in deferred mode, flushes its path if dirty.
// A failed flush is logged rather than returned and the path stays dirty.
func (e *Engine) Release(h Handle) (err error) {
	defer e.track(OpRelease, time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	of, ok := e.handles.remove(h)
	if !ok {
		return badHandle(OpRelease, h)
	}

	closeErr := of.file.Close()
	e.logger.Debug("Released handle %d for %q", h, of.rel)
	if !of.unlinked {
		e.policy.released(of.rel)
	}

	if closeErr != nil {
		return ioError(OpRelease, of.rel, closeErr)
	}
	return nil
}

// Fsync synchronizes path to remote if it is dirty. Unlike release, a failed
// flush is reported to the caller.
func (e *Engine) Fsync(path string) (err error) {
	defer e.track(OpFsync, time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.policy.flush(e.paths.Relative(path))
}

// Truncate pulls path into the cache if needed, truncates the cache copy and
// applies the write-time policy.
func (e *Engine) Truncate(path string, size int64) (err error) {
	defer e.track(OpTruncate, time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	rel := e.paths.Relative(path)
	if err := e.ensureCached(rel); err != nil {
		return err
	}
	if err := os.Truncate(e.paths.CachePath(rel), size); err != nil {
		return classify(OpTruncate, rel, err)
	}
	e.logger.Debug("Truncated %q to %d bytes", rel, size)
	return e.policy.modified(rel, "truncate")
}

// Unlink removes path from both trees and forgets any pending sync. A side
// that is already absent is not an error.
func (e *Engine) Unlink(path string) (err error) {
	defer e.track(OpUnlink, time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	rel := e.paths.Relative(path)
	for _, side := range []struct {
		name string
		path string
	}{
		{"cache", e.paths.CachePath(rel)},
		{"remote", e.paths.RemotePath(rel)},
	} {
		if err := os.Remove(side.path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return ioError(OpUnlink, rel, err)
		}
		e.logger.Info("Deleted %q from %s", rel, side.name)
	}

	e.handles.unlink(rel)
	e.policy.removed(rel)
	return nil
}

// DirtyPaths returns the paths whose cache content has not reached remote.
func (e *Engine) DirtyPaths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.paths()
}

// Stats returns current handle and dirty counts.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		OpenHandles: e.handles.len(),
		DirtyFiles:  len(e.policy.dirty),
	}
}

// Close closes descriptors still open at unmount. Dirty files are left as
// they are; the caller decides how to report them.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for h, of := range e.handles.files {
		e.logger.Warn("Closing handle %d for %q left open at shutdown", h, of.rel)
		if err := of.file.Close(); err != nil {
			errs = append(errs, ioError(OpRelease, of.rel, err))
		}
		e.handles.remove(h)
	}
	return errors.Join(errs...)
}
