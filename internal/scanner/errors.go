package scanner

import (
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

// Kind classifies why a path could not be read.
type Kind int

const (
	// KindIO covers every failure that is neither missing nor forbidden.
	KindIO Kind = iota
	KindNotFound
	KindPermission
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission_denied"
	default:
		return "io_error"
	}
}

// ErrNotDirectory is reported when a configured path exists but is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Error describes a failed filesystem operation on a scan target.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) *Error {
	return &Error{Kind: Classify(err), Op: op, Path: path, Err: err}
}

// Classify maps err onto a Kind. Both local syscalls and SFTP status codes
// normalise to the io/fs sentinels, so the same switch covers remote paths.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindIO
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, unix.ENOTDIR), errors.Is(err, ErrNotDirectory):
		return KindNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return KindPermission
	default:
		return KindIO
	}
}

// KindOf extracts the Kind from a scan failure. Errors that did not come from
// the filesystem, such as context cancellation, report KindIO.
func KindOf(err error) Kind {
	var scanErr *Error
	if errors.As(err, &scanErr) {
		return scanErr.Kind
	}
	return KindIO
}

// Hint suggests the operator action for err.
func Hint(err error) string {
	if isUnreachableMount(err) {
		return "network mount looks stale or unreachable; check the mount and remote host"
	}
	switch Classify(err) {
	case KindNotFound:
		return "check that the configured path exists and is a directory"
	case KindPermission:
		return "grant the exporter user read and execute permission on the directory"
	default:
		return "check filesystem health and the exporter logs"
	}
}

func isUnreachableMount(err error) bool {
	for _, errno := range []unix.Errno{unix.ESTALE, unix.EIO, unix.ENOTCONN, unix.EHOSTDOWN, unix.ETIMEDOUT} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
