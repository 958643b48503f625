package fs

import (
	"fmt"
	"time"

	"cachefs/internal/logging"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	vfsLogger = logging.GetLogger().WithPrefix("vfs")
)

// CacheFS exposes an Engine to the kernel through bazil.org/fuse.
type CacheFS struct {
	engine    Engine
	attrValid time.Duration // How long the kernel may keep attributes
}

// NewCacheFS creates the FUSE filesystem. With metadataCache disabled the
// kernel is told not to keep attributes, so every stat reaches the engine.
func NewCacheFS(engine Engine, metadataCache bool) *CacheFS {
	attrValid := time.Nanosecond
	if metadataCache {
		attrValid = time.Minute
	}

	vfsLogger.Debug("Creating FUSE filesystem (attribute validity %v)", attrValid)
	return &CacheFS{
		engine:    engine,
		attrValid: attrValid,
	}
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (cfs *CacheFS) Root() (fusefs.Node, error) {
	vfsLogger.Trace("Getting root directory node")
	return &Dir{
		fs:   cfs,
		path: "/",
	}, nil
}

// Serve mounts the filesystem at mountPoint and serves requests until it is
// unmounted. Any host user may access the mount.
func (cfs *CacheFS) Serve(mountPoint string) error {
	vfsLogger.Info("Mounting filesystem at %s", mountPoint)

	mountOpts := []fuse.MountOption{
		fuse.FSName("cachefs"),
		fuse.Subtype("cachefs"),
		fuse.AllowOther(),
	}

	c, err := fuse.Mount(mountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	defer c.Close()

	vfsLogger.Info("Serving filesystem")
	if err := fusefs.Serve(c, cfs); err != nil {
		return fmt.Errorf("serve failed: %w", err)
	}

	vfsLogger.Debug("FUSE server stopped")
	return nil
}

// Unmount cleanly unmounts the filesystem.
func (cfs *CacheFS) Unmount(mountPoint string) error {
	vfsLogger.Info("Unmounting filesystem from: %s", mountPoint)
	err := fuse.Unmount(mountPoint)
	if err != nil {
		vfsLogger.Error("Unmount failed: %v", err)
	} else {
		vfsLogger.Info("Unmount completed successfully")
	}
	return err
}
