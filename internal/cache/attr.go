package cache

import (
	"os"
	"time"
)

// Attr is the attribute record returned by Getattr.
type Attr struct {
	Mode  os.FileMode
	Size  int64
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// IsDir reports whether the attributes describe a directory.
func (a Attr) IsDir() bool {
	return a.Mode.IsDir()
}

func lstatAttr(path string) (Attr, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Attr{}, err
	}
	return attrFromFileInfo(info), nil
}
