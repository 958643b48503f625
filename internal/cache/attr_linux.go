//go:build linux

package cache

import (
	"os"
	"syscall"
	"time"
)

func attrFromFileInfo(info os.FileInfo) Attr {
	attr := Attr{
		Mode:  info.Mode(),
		Size:  info.Size(),
		Nlink: 1,
		Atime: info.ModTime(),
		Mtime: info.ModTime(),
		Ctime: info.ModTime(),
	}

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		attr.Nlink = uint32(st.Nlink)
		attr.Uid = st.Uid
		attr.Gid = st.Gid
		attr.Atime = time.Unix(st.Atim.Unix())
		attr.Ctime = time.Unix(st.Ctim.Unix())
	}
	return attr
}
