package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"fileexporter/internal/logging"
)

// Options controls how SFTP sessions authenticate.
type Options struct {
	KnownHosts            string
	IdentityFiles         []string
	InsecureIgnoreHostKey bool
	Timeout               time.Duration
}

// session is one SSH connection carrying one SFTP subsystem.
type session struct {
	client  *sftp.Client
	closers []io.Closer
}

// Close tears the transport down before the sftp client, whose Close waits
// for its receive loop to see EOF.
func (s *session) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil && !isConnectionError(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type dialFunc func(ctx context.Context, ep Endpoint) (*session, error)

// sshDialer opens sessions over the network.
type sshDialer struct {
	opts   Options
	logger *slog.Logger
}

func (d sshDialer) dial(ctx context.Context, ep Endpoint) (*session, error) {
	hostKeys, err := d.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	auth, agentConn := d.authMethods()
	if len(auth) == 0 {
		return nil, errors.New("no ssh authentication methods available (tried ssh agent and identity files)")
	}
	sess := &session{}
	if agentConn != nil {
		sess.closers = append(sess.closers, agentConn)
	}

	timeout := d.opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	clientConfig := &ssh.ClientConfig{
		User:            ep.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.Address())
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("ssh dial %s: %w", ep.Address(), err)
	}
	// Bound the handshake; the deadline is cleared once the client is up.
	_ = conn.SetDeadline(time.Now().Add(timeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, ep.Address(), clientConfig)
	if err != nil {
		_ = conn.Close()
		_ = sess.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", ep.Address(), err)
	}
	_ = conn.SetDeadline(time.Time{})
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	sess.closers = append(sess.closers, sshClient)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("open sftp subsystem on %s: %w", ep.Address(), err)
	}
	sess.client = client

	d.logger.Info("sftp session established",
		logging.String("endpoint", ep.Key()),
		logging.Int("auth_methods", len(auth)),
	)
	return sess, nil
}

func (d sshDialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.opts.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if d.opts.KnownHosts == "" {
		return nil, errors.New("known_hosts file is required unless host key checking is disabled")
	}
	callback, err := knownhosts.New(d.opts.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", d.opts.KnownHosts, err)
	}
	return callback, nil
}

// authMethods returns the ssh-agent first, then every identity file that
// parses without a passphrase. The agent connection is returned so the
// session can close it.
func (d sshDialer) authMethods() ([]ssh.AuthMethod, net.Conn) {
	var methods []ssh.AuthMethod
	var agentConn net.Conn
	if socket := os.Getenv("SSH_AUTH_SOCK"); socket != "" {
		if conn, err := net.Dial("unix", socket); err == nil {
			agentConn = conn
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		} else {
			d.logger.Debug("ssh agent unavailable", logging.Error(err))
		}
	}

	var signers []ssh.Signer
	for _, path := range d.identityFiles() {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				d.logger.Debug("identity file unreadable", logging.String("path", path), logging.Error(err))
			}
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			d.logger.Debug("identity file skipped", logging.String("path", path), logging.Error(err))
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	return methods, agentConn
}

func (d sshDialer) identityFiles() []string {
	if len(d.opts.IdentityFiles) > 0 {
		return d.opts.IdentityFiles
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	sshDir := filepath.Join(home, ".ssh")
	return []string{
		filepath.Join(sshDir, "id_ed25519"),
		filepath.Join(sshDir, "id_ecdsa"),
		filepath.Join(sshDir, "id_rsa"),
	}
}
