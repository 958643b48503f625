// internal/fs/interfaces.go

package fs

import (
	"bazil.org/fuse/fs"

	"cachefs/internal/cache"
)

// Engine is what the bridge needs from the caching engine: the nine
// operations plus fsync.
type Engine interface {
	cache.Operations
	Fsync(path string) error
}

// Node represents a filesystem node (file or directory)
type Node interface {
	fs.Node
}

// Directory represents a directory in the cached filesystem
type Directory interface {
	Node
	fs.NodeStringLookuper
	fs.HandleReadDirAller
	fs.NodeCreater
	fs.NodeRemover
}

// FileInterface represents a file in the cached filesystem
type FileInterface interface {
	Node
	fs.NodeOpener
	fs.NodeSetattrer
	fs.NodeFsyncer
}

// FileHandleInterface represents an open file handle
type FileHandleInterface interface {
	fs.Handle
	fs.HandleReader
	fs.HandleWriter
	fs.HandleReleaser
}

var (
	_ Directory           = (*Dir)(nil)
	_ FileInterface       = (*File)(nil)
	_ FileHandleInterface = (*FileHandle)(nil)
)
