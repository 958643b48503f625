package fs

import (
	"context"
	"time"

	"cachefs/internal/cache"
	"cachefs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// File represents a regular file in the cached filesystem.
type File struct {
	fs   *CacheFS
	path string
}

// Attr implements the Node interface, returning the file's attributes.
func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	fileLogger.Trace("Getting attributes for file: %q", f.path)

	attr, err := f.fs.engine.Getattr(f.path)
	if err != nil {
		return ToFuseError(err)
	}
	fillAttr(a, attr, f.fs.attrValid)

	fileLogger.Trace("File attributes: mode=%v, size=%d, mtime=%v",
		a.Mode, a.Size, a.Mtime)
	return nil
}

// Open implements the NodeOpener interface, pulling the file into the cache
// and opening the cache copy.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	flags := int(req.Flags)
	fileLogger.Debug("Opening file %q with flags %v", f.path, req.Flags)

	h, err := f.fs.engine.Open(f.path, flags)
	if err != nil {
		fileLogger.Error("Failed to open file %q: %v", f.path, err)
		return nil, ToFuseError(err)
	}

	// Every read and write must reach the engine so the write policy sees it.
	resp.Flags |= fuse.OpenDirectIO

	fileLogger.Debug("Successfully opened file %q as handle %d", f.path, h)
	return &FileHandle{fs: f.fs, handle: h, path: f.path}, nil
}

// Setattr implements the NodeSetattrer interface. Only size changes are
// acted on; they become a truncate.
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		fileLogger.Debug("Truncating %q to %d bytes", f.path, req.Size)
		if err := f.fs.engine.Truncate(f.path, int64(req.Size)); err != nil {
			return ToFuseError(err)
		}
	}
	return f.Attr(ctx, &resp.Attr)
}

// Fsync implements the NodeFsyncer interface, pushing a dirty file to remote.
func (f *File) Fsync(_ context.Context, _ *fuse.FsyncRequest) error {
	fileLogger.Debug("Fsync %q", f.path)
	return ToFuseError(f.fs.engine.Fsync(f.path))
}

// FileHandle represents an open file handle.
// It refers to an engine handle bound to the cache copy of the file.
type FileHandle struct {
	fs     *CacheFS
	handle cache.Handle
	path   string // For logging purposes
}

// Read implements the HandleReader interface, reading data from the file.
func (fh *FileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	fileLogger.Trace("Reading %d bytes from file %q at offset %d",
		req.Size, fh.path, req.Offset)

	data, err := fh.fs.engine.Read(fh.handle, req.Size, req.Offset)
	if err != nil {
		fileLogger.Error("Failed to read from file %q: %v", fh.path, err)
		return ToFuseError(err)
	}

	resp.Data = data
	fileLogger.Trace("Successfully read %d bytes", len(data))
	return nil
}

// Write implements the HandleWriter interface, writing data to the file.
func (fh *FileHandle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	fileLogger.Trace("Writing %d bytes to file %q at offset %d",
		len(req.Data), fh.path, req.Offset)

	n, err := fh.fs.engine.Write(fh.handle, req.Data, req.Offset)
	resp.Size = n
	if err != nil {
		fileLogger.Error("Failed to write to file %q: %v", fh.path, err)
		return ToFuseError(err)
	}
	return nil
}

// Release implements the HandleReleaser interface, closing the file handle.
func (fh *FileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	fileLogger.Debug("Closing file %q (handle %d)", fh.path, fh.handle)
	return ToFuseError(fh.fs.engine.Release(fh.handle))
}

// fillAttr copies engine attributes into a FUSE attribute record.
func fillAttr(a *fuse.Attr, attr cache.Attr, valid time.Duration) {
	a.Valid = valid
	a.Mode = attr.Mode
	a.Size = safeInt64ToUint64(attr.Size)
	a.Nlink = attr.Nlink
	a.Uid = attr.Uid
	a.Gid = attr.Gid
	a.Atime = attr.Atime
	a.Mtime = attr.Mtime
	a.Ctime = attr.Ctime
	a.BlockSize = 4096
	a.Blocks = safeInt64ToUint64((attr.Size + 511) / 512)
}
