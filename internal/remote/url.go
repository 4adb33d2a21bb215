package remote

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Scheme is the URL scheme that selects the SFTP filesystem.
const Scheme = "sftp"

const defaultPort = 22

// Endpoint is a parsed sftp:// location.
type Endpoint struct {
	User string
	Host string
	Port int
	// Path is the directory to walk on the remote side. "." is the login
	// directory.
	Path string
}

// IsRemote reports whether path names an SFTP location.
func IsRemote(path string) bool {
	return strings.HasPrefix(strings.TrimSpace(path), Scheme+"://")
}

// ParseURL parses sftp://user@host[:port]/path.
//
// The path follows the scp convention: sftp://u@h/data is relative to the
// login directory, sftp://u@h//srv/data is the absolute /srv/data and a bare
// host means the login directory itself.
func ParseURL(raw string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid sftp url: %w", err)
	}
	if u.Scheme != Scheme {
		return Endpoint{}, fmt.Errorf("invalid sftp url: expected %s:// scheme, got %q", Scheme, u.Scheme)
	}
	if u.User == nil || u.User.Username() == "" {
		return Endpoint{}, errors.New("invalid sftp url: username is required (sftp://user@host/path)")
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return Endpoint{}, errors.New("invalid sftp url: passwords in urls are not supported; use an ssh key or agent")
	}
	host := u.Hostname()
	if host == "" {
		return Endpoint{}, errors.New("invalid sftp url: host is required")
	}

	port := defaultPort
	if value := u.Port(); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 1 || parsed > 65535 {
			return Endpoint{}, fmt.Errorf("invalid sftp url: port %q out of range", value)
		}
		port = parsed
	}

	path := u.Path
	switch {
	case path == "" || path == "/":
		path = "."
	case strings.HasPrefix(path, "//"):
		path = path[1:]
	default:
		path = strings.TrimPrefix(path, "/")
	}

	return Endpoint{User: u.User.Username(), Host: host, Port: port, Path: path}, nil
}

// Address is the host:port to dial.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Key identifies the session an endpoint shares with others.
func (e Endpoint) Key() string {
	return e.User + "@" + e.Address()
}
