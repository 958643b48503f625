package cache

import (
	"path/filepath"
	"strings"
)

// Translator maps virtual paths onto the remote and cache roots.
type Translator struct {
	remoteRoot string
	cacheRoot  string
}

// NewTranslator creates a Translator for the given roots.
func NewTranslator(remoteRoot, cacheRoot string) *Translator {
	return &Translator{
		remoteRoot: remoteRoot,
		cacheRoot:  cacheRoot,
	}
}

// Relative strips one leading separator from a virtual path. The result is
// the key used for the path in the engine's bookkeeping.
func (t *Translator) Relative(virtual string) string {
	return strings.TrimPrefix(virtual, "/")
}

// RemotePath returns the location of virtual under the remote root.
func (t *Translator) RemotePath(virtual string) string {
	return filepath.Join(t.remoteRoot, t.Relative(virtual))
}

// CachePath returns the location of virtual under the cache root.
func (t *Translator) CachePath(virtual string) string {
	return filepath.Join(t.cacheRoot, t.Relative(virtual))
}
