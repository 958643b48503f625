package fs

import (
	"context"
	"syscall"

	"cachefs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir represents a directory in the cached filesystem. Its content is the
// union of the remote and cache directories at the same path.
type Dir struct {
	fs   *CacheFS
	path string
}

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	dirLogger.Trace("Getting attributes for directory: %q", d.path)

	attr, err := d.fs.engine.Getattr(d.path)
	if err != nil {
		return ToFuseError(err)
	}
	fillAttr(a, attr, d.fs.attrValid)
	return nil
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	child := childPath(d.path, name)
	dirLogger.Debug("Looking up %q in directory %q", name, d.path)

	attr, err := d.fs.engine.Getattr(child)
	if err != nil {
		dirLogger.Debug("Path not found: %q", child)
		return nil, ToFuseError(err)
	}

	if attr.IsDir() {
		return &Dir{fs: d.fs, path: child}, nil
	}
	return &File{fs: d.fs, path: child}, nil
}

// ReadDirAll implements the HandleReadDirAller interface, listing directory contents.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	dirLogger.Debug("Reading directory contents: %q", d.path)

	names, err := d.fs.engine.Readdir(d.path)
	if err != nil {
		return nil, ToFuseError(err)
	}

	entries := make([]fuse.Dirent, 0, len(names))
	for _, name := range names {
		typ := fuse.DT_Unknown
		if name == "." || name == ".." {
			typ = fuse.DT_Dir
		}
		entries = append(entries, fuse.Dirent{Name: name, Type: typ})
	}

	dirLogger.Debug("Found %d entries in %q", len(entries), d.path)
	return entries, nil
}

// Create implements the NodeCreater interface, creating and opening a new
// file.
func (d *Dir) Create(_ context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	child := childPath(d.path, req.Name)
	dirLogger.Debug("Creating file %q (mode %v)", child, req.Mode)

	h, err := d.fs.engine.Create(child, int(req.Flags), req.Mode)
	if err != nil {
		dirLogger.Error("Failed to create %q: %v", child, err)
		return nil, nil, ToFuseError(err)
	}

	resp.Flags |= fuse.OpenDirectIO
	file := &File{fs: d.fs, path: child}
	return file, &FileHandle{fs: d.fs, handle: h, path: child}, nil
}

// Remove implements the NodeRemover interface. Only files can be removed.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	child := childPath(d.path, req.Name)
	if req.Dir {
		dirLogger.Warn("Refusing to remove directory %q", child)
		return syscall.EPERM
	}

	dirLogger.Debug("Removing file %q", child)
	return ToFuseError(d.fs.engine.Unlink(child))
}
