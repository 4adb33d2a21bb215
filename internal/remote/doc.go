// Package remote resolves configured directory paths to the filesystem that
// serves them.
//
// Plain paths go to the operating system. sftp:// URLs are served over SSH by
// github.com/pkg/sftp, with one session kept per user@host:port and reused
// across scan cycles. A session that fails with a transport error is dropped
// and dialled again on the next Open.
package remote
