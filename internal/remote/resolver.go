package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"sync"
	"time"

	"github.com/pkg/sftp"

	"fileexporter/internal/config"
	"fileexporter/internal/logging"
	"fileexporter/internal/scanner"
)

// Resolver implements scanner.Resolver for local paths and sftp:// URLs.
type Resolver struct {
	logger *slog.Logger
	dial   dialFunc

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// OptionsFromConfig maps the [sftp] config section onto Options.
func OptionsFromConfig(cfg config.SFTP) Options {
	return Options{
		KnownHosts:            cfg.KnownHosts,
		IdentityFiles:         append([]string(nil), cfg.IdentityFiles...),
		InsecureIgnoreHostKey: cfg.InsecureIgnoreHostKey,
		Timeout:               time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// NewResolver builds a Resolver. No connection is made until a remote path is
// opened.
func NewResolver(opts Options, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "remote")
	return &Resolver{
		logger:   logger,
		dial:     sshDialer{opts: opts, logger: logger}.dial,
		sessions: make(map[string]*session),
	}
}

// Open returns the filesystem serving target and the path to walk on it.
func (r *Resolver) Open(ctx context.Context, target string) (scanner.FileSystem, string, error) {
	if !IsRemote(target) {
		return scanner.Local(), target, nil
	}
	ep, err := ParseURL(target)
	if err != nil {
		return nil, "", err
	}
	sess, err := r.session(ctx, ep)
	if err != nil {
		return nil, "", err
	}
	return &sftpFS{client: sess.client, onBroken: func() { r.drop(ep.Key(), sess) }}, ep.Path, nil
}

func (r *Resolver) session(ctx context.Context, ep Endpoint) (*session, error) {
	key := ep.Key()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("remote resolver is closed")
	}
	if sess, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return sess, nil
	}
	r.mu.Unlock()

	sess, err := r.dial(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", key, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = sess.Close()
		return nil, errors.New("remote resolver is closed")
	}
	if existing, ok := r.sessions[key]; ok {
		// Another scan connected first.
		_ = sess.Close()
		return existing, nil
	}
	r.sessions[key] = sess
	return sess, nil
}

// drop removes sess from the pool if it is still the current session for key.
func (r *Resolver) drop(key string, sess *session) {
	r.mu.Lock()
	current, ok := r.sessions[key]
	if ok && current == sess {
		delete(r.sessions, key)
	}
	r.mu.Unlock()
	if ok && current == sess {
		r.logger.Warn("sftp session lost; will reconnect next cycle",
			logging.String(logging.FieldEventType, "sftp_session_dropped"),
			logging.String("endpoint", key),
		)
		go func() { _ = sess.Close() }()
	}
}

// Sessions reports how many endpoints currently hold an open session.
func (r *Resolver) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close closes every session. Open fails afterwards.
func (r *Resolver) Close() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for key, sess := range sessions {
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// sftpFS adapts an sftp client to scanner.FileSystem.
type sftpFS struct {
	client   *sftp.Client
	onBroken func()
}

func (f *sftpFS) ReadDir(dirname string) ([]os.FileInfo, error) {
	infos, err := f.client.ReadDir(dirname)
	return infos, f.check(err)
}

func (f *sftpFS) Lstat(name string) (os.FileInfo, error) {
	info, err := f.client.Lstat(name)
	return info, f.check(err)
}

func (f *sftpFS) Stat(name string) (os.FileInfo, error) {
	info, err := f.client.Stat(name)
	return info, f.check(err)
}

func (f *sftpFS) Join(elem ...string) string {
	return path.Join(elem...)
}

func (f *sftpFS) check(err error) error {
	if err != nil && isConnectionError(err) && f.onBroken != nil {
		f.onBroken()
	}
	return err
}

func isConnectionError(err error) bool {
	if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, sftp.ErrSSHFxNoConnection) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
