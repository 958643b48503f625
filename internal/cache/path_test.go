package cache

import "testing"

func TestTranslator(t *testing.T) {
	tr := NewTranslator("/srv/remote", "/var/cache/cachefs")

	tests := []struct {
		virtual string
		rel     string
		remote  string
		cache   string
	}{
		{"/a.txt", "a.txt", "/srv/remote/a.txt", "/var/cache/cachefs/a.txt"},
		{"/dir/b.txt", "dir/b.txt", "/srv/remote/dir/b.txt", "/var/cache/cachefs/dir/b.txt"},
		{"/", "", "/srv/remote", "/var/cache/cachefs"},
		{"c.txt", "c.txt", "/srv/remote/c.txt", "/var/cache/cachefs/c.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.virtual, func(t *testing.T) {
			if got := tr.Relative(tt.virtual); got != tt.rel {
				t.Errorf("Relative(%q) = %q, want %q", tt.virtual, got, tt.rel)
			}
			if got := tr.RemotePath(tt.virtual); got != tt.remote {
				t.Errorf("RemotePath(%q) = %q, want %q", tt.virtual, got, tt.remote)
			}
			if got := tr.CachePath(tt.virtual); got != tt.cache {
				t.Errorf("CachePath(%q) = %q, want %q", tt.virtual, got, tt.cache)
			}
		})
	}
}
