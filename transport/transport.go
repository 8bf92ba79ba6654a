// Package transport opens remote command sessions on the Gerrit SSH daemon.
//
// Two backends are provided: SSH, which speaks the protocol directly through
// golang.org/x/crypto/ssh, and Exec, which drives the system ssh binary.
// Both satisfy Transport; the runtime never depends on either directly.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
)

// ErrAuth marks authentication failures. Callers match it with errors.Is.
var ErrAuth = errors.New("ssh authentication failed")

// ErrSessionClosed is returned by Session.Wait after Close.
var ErrSessionClosed = errors.New("session closed")

// Transport opens remote command executions.
type Transport interface {
	// Open starts command as a long-lived session. The caller owns the
	// returned Session and must Close it.
	Open(ctx context.Context, command string) (Session, error)

	// Run executes command to completion and returns its standard output.
	// Must respect context cancellation and deadlines.
	Run(ctx context.Context, command string) ([]byte, error)
}

// Session is one live remote command execution.
type Session interface {
	// Stdout returns the remote command's output stream.
	Stdout() io.Reader

	// Wait blocks until the remote process exits and returns its exit error.
	// Returns ErrSessionClosed if the session was closed locally first.
	Wait() error

	// Keepalive checks that the connection is still alive.
	Keepalive(ctx context.Context) error

	// Close releases the session and its connection. Idempotent.
	Close() error
}

// Endpoint identifies the remote SSH daemon and account.
type Endpoint struct {
	Host     string
	Port     int
	Username string
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Validate checks that the endpoint is usable.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return errors.New("host is required")
	}
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("invalid port %d", e.Port)
	}
	if e.Username == "" {
		return errors.New("username is required")
	}
	return nil
}

// IsAuthError returns true if err is an authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}
