//go:build !linux

package cache

import (
	"os"
)

func attrFromFileInfo(info os.FileInfo) Attr {
	return Attr{
		Mode:  info.Mode(),
		Size:  info.Size(),
		Nlink: 1,
		Uid:   safeUint32(os.Getuid()),
		Gid:   safeUint32(os.Getgid()),
		Atime: info.ModTime(),
		Mtime: info.ModTime(),
		Ctime: info.ModTime(),
	}
}

func safeUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}
