package cache

import (
	"sort"

	"cachefs/internal/config"
	"cachefs/internal/logging"
	"cachefs/internal/metrics"
)

// writePolicy tracks which paths are Dirty and decides when the
// synchronizer runs. A path absent from dirty is Clean.
type writePolicy struct {
	mode   config.WriteMode
	dirty  map[string]struct{}
	sync   func(rel string) error
	logger *logging.Logger
}

func newWritePolicy(mode config.WriteMode, sync func(string) error, logger *logging.Logger) *writePolicy {
	return &writePolicy{
		mode:   mode,
		dirty:  make(map[string]struct{}),
		sync:   sync,
		logger: logger,
	}
}

// created applies the policy for a newly created file.
func (p *writePolicy) created(rel string) error {
	if p.mode == config.WriteImmediate {
		return p.sync(rel)
	}
	p.markDirty(rel, "created")
	return nil
}

// modified applies the policy after a write or truncate.
func (p *writePolicy) modified(rel, reason string) error {
	if p.mode == config.WriteImmediate {
		p.logger.Debug("Immediate sync of %q after %s", rel, reason)
		return p.sync(rel)
	}
	p.markDirty(rel, reason)
	return nil
}

// released applies the policy when a handle on rel is closed. A failed flush
// leaves rel Dirty; nothing retries it.
func (p *writePolicy) released(rel string) {
	if !p.isDirty(rel) {
		return
	}
	p.logger.Info("Deferred sync: flushing %q on release", rel)
	if err := p.flush(rel); err != nil {
		p.logger.Error("Deferred flush of %q failed, file stays dirty: %v", rel, err)
	}
}

// flush synchronizes rel if it is Dirty and marks it Clean on success.
func (p *writePolicy) flush(rel string) error {
	if !p.isDirty(rel) {
		return nil
	}
	if err := p.sync(rel); err != nil {
		return err
	}
	delete(p.dirty, rel)
	metrics.SetDirtyFiles(len(p.dirty))
	return nil
}

// removed forgets rel unconditionally.
func (p *writePolicy) removed(rel string) {
	delete(p.dirty, rel)
	metrics.SetDirtyFiles(len(p.dirty))
}

func (p *writePolicy) markDirty(rel, reason string) {
	if p.isDirty(rel) {
		return
	}
	p.logger.Info("Deferred sync: marking %q dirty (%s)", rel, reason)
	p.dirty[rel] = struct{}{}
	metrics.SetDirtyFiles(len(p.dirty))
}

func (p *writePolicy) isDirty(rel string) bool {
	_, ok := p.dirty[rel]
	return ok
}

func (p *writePolicy) paths() []string {
	out := make([]string, 0, len(p.dirty))
	for rel := range p.dirty {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}
