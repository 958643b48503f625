package cache

import (
	"os"

	"cachefs/internal/metrics"
)

// Handle identifies one open session on a cache file. Ids start at 1 and are
// never reused within a process.
type Handle uint64

// openFile is the descriptor bound to a handle and the path it was opened
// for. An unlinked file keeps its descriptor but no longer has a path.
type openFile struct {
	rel      string
	file     *os.File
	unlinked bool
}

type handleTable struct {
	next  Handle
	files map[Handle]*openFile
}

func newHandleTable() *handleTable {
	return &handleTable{
		next:  1,
		files: make(map[Handle]*openFile),
	}
}

func (t *handleTable) add(rel string, f *os.File) Handle {
	h := t.next
	t.next++
	t.files[h] = &openFile{rel: rel, file: f}
	metrics.SetOpenHandles(len(t.files))
	return h
}

func (t *handleTable) get(h Handle) (*openFile, bool) {
	of, ok := t.files[h]
	return of, ok
}

func (t *handleTable) remove(h Handle) (*openFile, bool) {
	of, ok := t.files[h]
	if ok {
		delete(t.files, h)
		metrics.SetOpenHandles(len(t.files))
	}
	return of, ok
}

// unlink detaches every open handle on rel from the path.
func (t *handleTable) unlink(rel string) {
	for _, of := range t.files {
		if of.rel == rel {
			of.unlinked = true
		}
	}
}

func (t *handleTable) len() int {
	return len(t.files)
}
