package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	krfs "github.com/kr/fs"
)

// FileSystem is the view of a directory tree the scanner walks. It extends the
// kr/fs walker interface with Stat so the root may be a symlink.
type FileSystem interface {
	krfs.FileSystem
	Stat(name string) (os.FileInfo, error)
}

// Resolver maps a configured path onto the filesystem that serves it and the
// path to walk within that filesystem.
type Resolver interface {
	Open(ctx context.Context, path string) (FileSystem, string, error)
}

// LocalResolver serves every path from the operating system.
type LocalResolver struct{}

func (LocalResolver) Open(_ context.Context, path string) (FileSystem, string, error) {
	return Local(), path, nil
}

// Local returns the operating-system FileSystem.
func Local() FileSystem {
	return osFS{}
}

type osFS struct{}

// ReadDir lists a directory without stat'ing every entry; the scanner only
// stats entries that survive filtering.
func (osFS) ReadDir(dirname string) ([]os.FileInfo, error) {
	entries, err := os.ReadDir(dirname)
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, len(entries))
	for i, entry := range entries {
		infos[i] = entryInfo{entry}
	}
	return infos, nil
}

func (osFS) Lstat(name string) (os.FileInfo, error) { return os.Lstat(name) }

func (osFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

func (osFS) Join(elem ...string) string { return filepath.Join(elem...) }

// entryInfo exposes a directory entry's name and type bits as a FileInfo.
type entryInfo struct {
	fs.DirEntry
}

func (e entryInfo) Size() int64        { return 0 }
func (e entryInfo) Mode() fs.FileMode  { return e.Type() }
func (e entryInfo) ModTime() time.Time { return time.Time{} }
func (e entryInfo) Sys() any           { return nil }

// followRoot resolves the walk root with Stat so a symlinked root is descended
// into, while every entry below it is still Lstat'ed.
type followRoot struct {
	FileSystem
	root string
}

func (f followRoot) Lstat(name string) (os.FileInfo, error) {
	if name == f.root {
		return f.FileSystem.Stat(name)
	}
	return f.FileSystem.Lstat(name)
}
