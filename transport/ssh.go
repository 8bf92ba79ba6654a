package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultDialTimeout bounds TCP connect plus SSH handshake.
const DefaultDialTimeout = 15 * time.Second

// SSHConfig configures the native SSH backend.
type SSHConfig struct {
	Endpoint Endpoint
	// KeyFiles are private keys to offer. Empty selects ~/.ssh/id_ed25519,
	// ~/.ssh/id_ecdsa and ~/.ssh/id_rsa when present.
	KeyFiles []string
	// KnownHostsFile verifies the server host key. Empty selects
	// ~/.ssh/known_hosts.
	KnownHostsFile string
	// InsecureIgnoreHostKey accepts any host key.
	InsecureIgnoreHostKey bool
	// DisableAgent skips the SSH agent even if SSH_AUTH_SOCK is set.
	DisableAgent bool
	// DialTimeout bounds connection setup (default 15s).
	DialTimeout time.Duration
}

// SSH is a Transport backed by golang.org/x/crypto/ssh.
type SSH struct {
	endpoint     Endpoint
	clientConfig *ssh.ClientConfig
	dialTimeout  time.Duration
}

// NewSSH builds an SSH transport. Credentials and host keys are loaded
// once; each Open dials a fresh connection.
func NewSSH(cfg SSHConfig) (*SSH, error) {
	if err := cfg.Endpoint.Validate(); err != nil {
		return nil, fmt.Errorf("ssh transport: %w", err)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	auth, err := authMethods(cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh transport: %w", err)
	}

	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh transport: %w", err)
	}

	return &SSH{
		endpoint: cfg.Endpoint,
		clientConfig: &ssh.ClientConfig{
			User:            cfg.Endpoint.Username,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         cfg.DialTimeout,
		},
		dialTimeout: cfg.DialTimeout,
	}, nil
}

// Open dials the daemon and starts command with its output piped back.
func (t *SSH) Open(ctx context.Context, command string) (Session, error) {
	client, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Start(command); err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("start %q: %w", command, err)
	}

	return &sshSession{client: client, session: session, stdout: stdout}, nil
}

// Run executes command on a short-lived connection and returns its output.
func (t *SSH) Run(ctx context.Context, command string) ([]byte, error) {
	client, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = session.Close() }()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.Output(command)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		// Closing the connection unblocks Output.
		_ = client.Close()
		return nil, fmt.Errorf("run %q: %w", command, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return r.out, fmt.Errorf("run %q: %w", command, r.err)
		}
		return r.out, nil
	}
}

// dial connects and completes the SSH handshake within the dial timeout.
func (t *SSH) dial(ctx context.Context) (*ssh.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	addr := t.endpoint.Address()
	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	// NewClientConn does not take a context; bound the handshake with a
	// connection deadline instead.
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, t.clientConfig)
	if err != nil {
		_ = conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w for %s@%s: %v", ErrAuth, t.endpoint.Username, addr, err)
		}
		return nil, fmt.Errorf("handshake %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

// sshSession is a Session over one ssh.Client connection.
type sshSession struct {
	client  *ssh.Client
	session *ssh.Session
	stdout  io.Reader

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

func (s *sshSession) Stdout() io.Reader {
	return s.stdout
}

func (s *sshSession) Wait() error {
	err := s.session.Wait()
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return err
}

// Keepalive sends an OpenSSH keepalive global request and waits for the
// reply. Any reply, including a rejection, proves the peer is alive.
func (s *sshSession) Keepalive(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("keepalive: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("keepalive: %w", err)
		}
		return nil
	}
}

func (s *sshSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		sessErr := s.session.Close()
		if errors.Is(sessErr, io.EOF) {
			sessErr = nil
		}
		s.closeErr = errors.Join(sessErr, s.client.Close())
	})
	return s.closeErr
}

// authMethods collects agent and key-file signers.
func authMethods(cfg SSHConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if !cfg.DisableAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err == nil {
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}

	keyFiles := cfg.KeyFiles
	explicit := len(keyFiles) > 0
	if !explicit {
		keyFiles = defaultKeyFiles()
	}

	var signers []ssh.Signer
	for _, path := range keyFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			if !explicit && os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read key %s: %w", path, err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				// Encrypted keys are served by the agent.
				continue
			}
			return nil, fmt.Errorf("parse key %s: %w", path, err)
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no usable SSH agent or private key", ErrAuth)
	}
	return methods, nil
}

// hostKeyCallback verifies the server against known_hosts.
func hostKeyCallback(cfg SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit opt-in
	}

	path := cfg.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
	}
	return callback, nil
}

func defaultKeyFiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	names := []string{"id_ed25519", "id_ecdsa", "id_rsa"}
	files := make([]string, 0, len(names))
	for _, name := range names {
		files = append(files, filepath.Join(home, ".ssh", name))
	}
	return files
}

// Verify SSH implements Transport.
var _ Transport = (*SSH)(nil)
