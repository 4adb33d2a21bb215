package testsupport

import (
	"context"
	"os"
	"sync"

	"fileexporter/internal/scanner"
)

// FaultyFS wraps a scanner.FileSystem and fails selected operations.
type FaultyFS struct {
	scanner.FileSystem

	mu         sync.Mutex
	lstatErrs  map[string]error
	readDirErr map[string]error
	statErrs   map[string]error
}

// NewFaultyFS wraps base, or the local filesystem when base is nil.
func NewFaultyFS(base scanner.FileSystem) *FaultyFS {
	if base == nil {
		base = scanner.Local()
	}
	return &FaultyFS{
		FileSystem: base,
		lstatErrs:  make(map[string]error),
		readDirErr: make(map[string]error),
		statErrs:   make(map[string]error),
	}
}

// FailLstat makes Lstat(path) return err.
func (f *FaultyFS) FailLstat(path string, err error) *FaultyFS {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lstatErrs[path] = err
	return f
}

// FailReadDir makes ReadDir(path) return err.
func (f *FaultyFS) FailReadDir(path string, err error) *FaultyFS {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readDirErr[path] = err
	return f
}

// FailStat makes Stat(path) return err.
func (f *FaultyFS) FailStat(path string, err error) *FaultyFS {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statErrs[path] = err
	return f
}

func (f *FaultyFS) lookup(m map[string]error, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return m[path]
}

func (f *FaultyFS) Lstat(name string) (os.FileInfo, error) {
	if err := f.lookup(f.lstatErrs, name); err != nil {
		return nil, &os.PathError{Op: "lstat", Path: name, Err: err}
	}
	return f.FileSystem.Lstat(name)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error) {
	if err := f.lookup(f.statErrs, name); err != nil {
		return nil, &os.PathError{Op: "stat", Path: name, Err: err}
	}
	return f.FileSystem.Stat(name)
}

func (f *FaultyFS) ReadDir(dirname string) ([]os.FileInfo, error) {
	if err := f.lookup(f.readDirErr, dirname); err != nil {
		return nil, &os.PathError{Op: "open", Path: dirname, Err: err}
	}
	return f.FileSystem.ReadDir(dirname)
}

// Open implements scanner.Resolver so a FaultyFS can be handed to a Scanner.
func (f *FaultyFS) Open(_ context.Context, path string) (scanner.FileSystem, string, error) {
	return f, path, nil
}

// ResolverFunc adapts a function to scanner.Resolver.
type ResolverFunc func(ctx context.Context, path string) (scanner.FileSystem, string, error)

func (fn ResolverFunc) Open(ctx context.Context, path string) (scanner.FileSystem, string, error) {
	return fn(ctx, path)
}
