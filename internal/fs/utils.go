package fs

import "path"

func safeInt64ToUint64(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// childPath joins a directory's virtual path with an entry name.
func childPath(dir, name string) string {
	return path.Join(dir, name)
}
