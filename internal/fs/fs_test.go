package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"cachefs/internal/cache"
	"cachefs/internal/config"

	"bazil.org/fuse"
)

func setupTestFS(t *testing.T, mode config.WriteMode) (*CacheFS, string, string, func()) {
	// Create temp directories for remote and cache
	remoteDir, err := os.MkdirTemp("", "cachefs-remote-*")
	if err != nil {
		t.Fatalf("Failed to create remote dir: %v", err)
	}

	cacheDir, err := os.MkdirTemp("", "cachefs-cache-*")
	if err != nil {
		t.Fatalf("Failed to create cache dir: %v", err)
	}

	engine, err := cache.NewEngine(cache.Options{
		RemoteDir: remoteDir,
		CacheDir:  cacheDir,
		WriteMode: mode,
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	cleanup := func() {
		engine.Close()
		os.RemoveAll(remoteDir)
		os.RemoveAll(cacheDir)
	}

	return NewCacheFS(engine, false), remoteDir, cacheDir, cleanup
}

func rootDir(t *testing.T, cfs *CacheFS) *Dir {
	t.Helper()
	root, err := cfs.Root()
	if err != nil {
		t.Fatalf("Failed to get root: %v", err)
	}
	return root.(*Dir)
}

func TestDirOperations(t *testing.T) {
	cfs, remoteDir, cacheDir, cleanup := setupTestFS(t, config.WriteImmediate)
	defer cleanup()

	ctx := context.Background()

	if err := os.MkdirAll(filepath.Join(remoteDir, "docs"), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(remoteDir, "docs", "remote.txt"), []byte("r"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(cacheDir, "docs"), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cacheDir, "docs", "cached.txt"), []byte("c"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	t.Run("RootAttributes", func(t *testing.T) {
		attr := &fuse.Attr{}
		if err := rootDir(t, cfs).Attr(ctx, attr); err != nil {
			t.Fatalf("Failed to get root attributes: %v", err)
		}
		if attr.Mode&os.ModeDir == 0 {
			t.Error("Root should be a directory")
		}
	})

	t.Run("LookupDirectory", func(t *testing.T) {
		node, err := rootDir(t, cfs).Lookup(ctx, "docs")
		if err != nil {
			t.Fatalf("Failed to lookup docs: %v", err)
		}
		if _, ok := node.(*Dir); !ok {
			t.Errorf("Expected *Dir, got %T", node)
		}
	})

	t.Run("LookupMissing", func(t *testing.T) {
		_, err := rootDir(t, cfs).Lookup(ctx, "nope")
		if !errors.Is(err, syscall.ENOENT) {
			t.Errorf("Expected ENOENT, got %v", err)
		}
	})

	t.Run("ReadDirUnion", func(t *testing.T) {
		node, err := rootDir(t, cfs).Lookup(ctx, "docs")
		if err != nil {
			t.Fatalf("Failed to lookup docs: %v", err)
		}

		entries, err := node.(*Dir).ReadDirAll(ctx)
		if err != nil {
			t.Fatalf("ReadDirAll failed: %v", err)
		}

		names := make(map[string]int)
		for _, e := range entries {
			names[e.Name]++
		}
		for _, want := range []string{".", "..", "remote.txt", "cached.txt"} {
			if names[want] != 1 {
				t.Errorf("Expected %q exactly once, got %d", want, names[want])
			}
		}
	})

	t.Run("RemoveDirectoryRefused", func(t *testing.T) {
		err := rootDir(t, cfs).Remove(ctx, &fuse.RemoveRequest{Name: "docs", Dir: true})
		if !errors.Is(err, syscall.EPERM) {
			t.Errorf("Expected EPERM, got %v", err)
		}
	})
}

func TestFileOperations(t *testing.T) {
	cfs, remoteDir, cacheDir, cleanup := setupTestFS(t, config.WriteImmediate)
	defer cleanup()

	ctx := context.Background()

	testContent := []byte("hello")
	if err := os.WriteFile(filepath.Join(remoteDir, "a.txt"), testContent, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	t.Run("FileAttributes", func(t *testing.T) {
		node, err := rootDir(t, cfs).Lookup(ctx, "a.txt")
		if err != nil {
			t.Fatalf("Failed to lookup file: %v", err)
		}

		attr := &fuse.Attr{}
		if err := node.Attr(ctx, attr); err != nil {
			t.Fatalf("Failed to get file attributes: %v", err)
		}
		if attr.Mode&os.ModeDir != 0 {
			t.Error("File should not be a directory")
		}
		if attr.Size != uint64(len(testContent)) {
			t.Errorf("Expected size %d, got %d", len(testContent), attr.Size)
		}
	})

	t.Run("FileReading", func(t *testing.T) {
		node, err := rootDir(t, cfs).Lookup(ctx, "a.txt")
		if err != nil {
			t.Fatalf("Failed to lookup file: %v", err)
		}

		openResp := &fuse.OpenResponse{}
		handle, err := node.(*File).Open(ctx, &fuse.OpenRequest{Flags: fuse.OpenReadOnly}, openResp)
		if err != nil {
			t.Fatalf("Failed to open file: %v", err)
		}
		if openResp.Flags&fuse.OpenDirectIO == 0 {
			t.Error("Expected direct IO on open")
		}

		fh := handle.(*FileHandle)
		resp := &fuse.ReadResponse{}
		if err := fh.Read(ctx, &fuse.ReadRequest{Size: len(testContent)}, resp); err != nil {
			t.Fatalf("Failed to read file: %v", err)
		}
		if string(resp.Data) != string(testContent) {
			t.Errorf("Expected content %q, got %q", string(testContent), string(resp.Data))
		}

		cached, err := os.ReadFile(filepath.Join(cacheDir, "a.txt"))
		if err != nil || string(cached) != string(testContent) {
			t.Errorf("Expected cache copy %q, got %q (%v)", string(testContent), string(cached), err)
		}

		if err := fh.Release(ctx, &fuse.ReleaseRequest{}); err != nil {
			t.Errorf("Failed to close file: %v", err)
		}

		t.Run("ReleasedHandle", func(t *testing.T) {
			err := fh.Read(ctx, &fuse.ReadRequest{Size: 1}, &fuse.ReadResponse{})
			if !errors.Is(err, syscall.EBADF) {
				t.Errorf("Expected EBADF, got %v", err)
			}
			if err := fh.Release(ctx, &fuse.ReleaseRequest{}); !errors.Is(err, syscall.EBADF) {
				t.Errorf("Expected EBADF on second release, got %v", err)
			}
		})
	})

	t.Run("Truncate", func(t *testing.T) {
		node, err := rootDir(t, cfs).Lookup(ctx, "a.txt")
		if err != nil {
			t.Fatalf("Failed to lookup file: %v", err)
		}

		req := &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 2}
		resp := &fuse.SetattrResponse{}
		if err := node.(*File).Setattr(ctx, req, resp); err != nil {
			t.Fatalf("Setattr failed: %v", err)
		}
		if resp.Attr.Size != 2 {
			t.Errorf("Expected size 2 in response, got %d", resp.Attr.Size)
		}

		remote, _ := os.ReadFile(filepath.Join(remoteDir, "a.txt"))
		if string(remote) != "he" {
			t.Errorf("Expected remote %q, got %q", "he", string(remote))
		}
	})

	t.Run("Remove", func(t *testing.T) {
		if err := rootDir(t, cfs).Remove(ctx, &fuse.RemoveRequest{Name: "a.txt"}); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if _, err := rootDir(t, cfs).Lookup(ctx, "a.txt"); !errors.Is(err, syscall.ENOENT) {
			t.Errorf("Expected ENOENT after remove, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(remoteDir, "a.txt")); !os.IsNotExist(err) {
			t.Error("Remote copy should be gone")
		}
	})
}

func TestCreateDeferred(t *testing.T) {
	cfs, remoteDir, _, cleanup := setupTestFS(t, config.WriteDeferred)
	defer cleanup()

	ctx := context.Background()
	req := &fuse.CreateRequest{
		Name:  "b.txt",
		Flags: fuse.OpenWriteOnly | fuse.OpenCreate,
		Mode:  0644,
	}
	resp := &fuse.CreateResponse{}

	node, handle, err := rootDir(t, cfs).Create(ctx, req, resp)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, ok := node.(*File); !ok {
		t.Errorf("Expected *File node, got %T", node)
	}

	fh := handle.(*FileHandle)
	writeResp := &fuse.WriteResponse{}
	if err := fh.Write(ctx, &fuse.WriteRequest{Data: []byte("xxxxxxxxxx")}, writeResp); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if writeResp.Size != 10 {
		t.Errorf("Expected 10 bytes written, got %d", writeResp.Size)
	}

	// The dirty file is visible through the mount before it reaches remote
	attr := &fuse.Attr{}
	if err := node.Attr(ctx, attr); err != nil {
		t.Fatalf("Attr on dirty file failed: %v", err)
	}
	if attr.Size != 10 {
		t.Errorf("Expected size 10, got %d", attr.Size)
	}
	if _, err := os.Stat(filepath.Join(remoteDir, "b.txt")); !os.IsNotExist(err) {
		t.Error("Remote should not have b.txt before release")
	}

	if err := fh.Release(ctx, &fuse.ReleaseRequest{}); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	remote, err := os.ReadFile(filepath.Join(remoteDir, "b.txt"))
	if err != nil || string(remote) != "xxxxxxxxxx" {
		t.Errorf("Expected remote content after release, got %q (%v)", string(remote), err)
	}

	t.Run("FsyncClean", func(t *testing.T) {
		if err := node.(*File).Fsync(ctx, &fuse.FsyncRequest{}); err != nil {
			t.Errorf("Fsync on clean file failed: %v", err)
		}
	})
}

func TestToFuseError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"Nil", nil, nil},
		{"NotFound", &cache.Error{Op: "open", Path: "a", Kind: cache.ErrNotFound}, syscall.ENOENT},
		{"BadHandle", &cache.Error{Op: "read", Kind: cache.ErrBadHandle}, syscall.EBADF},
		{"IO", &cache.Error{Op: "sync", Path: "a", Kind: cache.ErrIO, Err: errors.New("disk full")}, syscall.EIO},
		{"PlainNotExist", os.ErrNotExist, syscall.ENOENT},
		{"PlainOther", errors.New("boom"), syscall.EIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToFuseError(tt.err); got != tt.want {
				t.Errorf("ToFuseError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
