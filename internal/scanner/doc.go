// Package scanner walks configured directories and reduces them to point-in-time
// aggregates: file count, total size, oldest and newest age, and per-file ages.
//
// A Scanner never fails outright. Filesystem problems are logged and folded
// into the returned Result: an inaccessible root yields the all-zero result with
// a typed *Error, while unreadable files or subdirectories are skipped with a
// warning. Traversal runs over the FileSystem interface so the same rules apply
// to local paths and to remote directories served by package remote.
package scanner
