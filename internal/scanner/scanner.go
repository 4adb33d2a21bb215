package scanner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	krfs "github.com/kr/fs"

	"fileexporter/internal/logging"
)

// Scanner walks directories and aggregates what it finds.
type Scanner struct {
	resolver Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithResolver overrides how directory paths map onto filesystems.
func WithResolver(r Resolver) Option {
	return func(s *Scanner) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithClock overrides the time source used to compute ages.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Scanner. Without options it reads the local filesystem and
// uses the wall clock.
func New(logger *slog.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		resolver: LocalResolver{},
		logger:   logging.NewComponentLogger(logger, "scanner"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks dir and returns its aggregates. It never returns an error
// separately: a directory that cannot be read produces the all-zero Result
// with Err set, and unreadable entries below it are skipped with a warning.
func (s *Scanner) Scan(ctx context.Context, dir Directory) Result {
	started := time.Now()
	logger := logging.WithContext(ctx, s.logger).With(
		logging.String(logging.FieldDirectory, dir.Name),
		logging.String(logging.FieldPath, dir.Path),
	)
	logger.Debug("scanning directory", logging.Bool("recursive", dir.Recursive))

	res := s.scan(ctx, dir, logger)
	res.Duration = time.Since(started)

	if res.Failed() {
		if !errors.Is(res.Err, context.Canceled) {
			logging.ErrorWithContext(logger, "directory inaccessible; reporting zero values", "directory_scan_failed",
				logging.Error(res.Err),
				logging.String("reason", KindOf(res.Err).String()),
				logging.String(logging.FieldErrorHint, Hint(res.Err)),
			)
		}
		return res
	}

	logger.Debug("directory scanned",
		logging.String(logging.FieldEventType, "directory_scanned"),
		logging.Int("files", res.Count),
		logging.Int64("bytes", res.TotalSize),
		logging.Float64("oldest_age_seconds", res.OldestAge),
		logging.Float64("newest_age_seconds", res.NewestAge),
		logging.Int("warnings", res.Warnings),
		logging.Duration("duration", res.Duration),
	)
	return res
}

func (s *Scanner) scan(ctx context.Context, dir Directory, logger *slog.Logger) Result {
	fsys, root, err := s.resolver.Open(ctx, dir.Path)
	if err != nil {
		return failedResult(dir, s.now(), newError("open", dir.Path, err))
	}

	info, err := fsys.Stat(root)
	if err != nil {
		return failedResult(dir, s.now(), newError("stat", dir.Path, err))
	}
	if !info.IsDir() {
		return failedResult(dir, s.now(), newError("stat", dir.Path, ErrNotDirectory))
	}

	matcher := NewMatcher(dir.IncludePatterns, dir.IncludeDirs)
	walker := krfs.WalkFS(root, followRoot{FileSystem: fsys, root: root})

	var files []File
	warnings := 0
	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return failedResult(dir, s.now(), err)
		}

		path := walker.Path()
		if walkErr := walker.Err(); walkErr != nil {
			if path == root {
				return failedResult(dir, s.now(), newError("list", dir.Path, walkErr))
			}
			warnings++
			s.warnEntry(logger, "subdirectory unreadable; skipping", "subdirectory_unreadable", path, walkErr)
			continue
		}
		if path == root {
			continue
		}

		entry := walker.Stat()
		name := entry.Name()
		if entry.IsDir() {
			if !dir.Recursive || !matcher.Descend(name) {
				walker.SkipDir()
			}
			continue
		}
		if !entry.Mode().IsRegular() || !matcher.MatchFile(name) {
			continue
		}

		file, ok := s.statFile(logger, fsys, root, path, name)
		if !ok {
			warnings++
			continue
		}
		if file != nil {
			files = append(files, *file)
		}
	}

	res := Aggregate(dir.Name, files, s.now())
	res.Path = dir.Path
	res.Warnings = warnings
	return res
}

// statFile reads modification time and size with one Lstat. A file that
// vanished since the listing is dropped silently (nil, true); any other error
// is a warning (nil, false).
func (s *Scanner) statFile(logger *slog.Logger, fsys FileSystem, root, path, name string) (*File, bool) {
	info, err := fsys.Lstat(path)
	if err != nil {
		if Classify(err) == KindNotFound {
			logger.Debug("file vanished during scan", logging.String("file", path))
			return nil, true
		}
		s.warnEntry(logger, "file stat failed; excluding from aggregates", "file_stat_failed", path, err)
		return nil, false
	}
	if !info.Mode().IsRegular() {
		return nil, true
	}
	return &File{
		Path:    path,
		RelPath: relPath(root, path),
		Name:    name,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, true
}

func (s *Scanner) warnEntry(logger *slog.Logger, msg, eventType, path string, err error) {
	logging.WarnWithContext(logger, msg, eventType,
		logging.String("entry", path),
		logging.String("reason", Classify(err).String()),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, Hint(err)),
		logging.String(logging.FieldImpact, "entry excluded from this cycle's metrics"),
	)
}

func relPath(root, path string) string {
	if root == "." || root == "" {
		return path
	}
	rel := strings.TrimPrefix(path, root)
	return strings.TrimLeft(rel, `/`+string(os.PathSeparator))
}
