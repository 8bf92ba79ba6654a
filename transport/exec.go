package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// sshExitAuth is the exit status OpenSSH uses for its own failures
// (connection or authentication), as opposed to the remote command's.
const sshExitAuth = 255

// ExecConfig configures the system ssh backend.
type ExecConfig struct {
	Endpoint Endpoint
	// Binary is the ssh executable (default "ssh").
	Binary string
	// KeyFile is passed as -i when set.
	KeyFile string
	// KnownHostsFile is passed as UserKnownHostsFile when set.
	KnownHostsFile string
	// InsecureIgnoreHostKey disables host key checking.
	InsecureIgnoreHostKey bool
	// ServerAliveInterval lets ssh itself detect dead peers (default 15s).
	ServerAliveInterval time.Duration
	// ExtraArgs are appended before the destination.
	ExtraArgs []string
}

// Exec is a Transport that shells out to the system ssh binary.
type Exec struct {
	config ExecConfig
	// argsHook rewrites the argument vector; tests use it to substitute
	// a shell script for ssh.
	argsHook func([]string) []string
}

// NewExec creates a system ssh transport.
func NewExec(cfg ExecConfig) (*Exec, error) {
	if err := cfg.Endpoint.Validate(); err != nil {
		return nil, fmt.Errorf("exec transport: %w", err)
	}
	if cfg.Binary == "" {
		cfg.Binary = "ssh"
	}
	if cfg.ServerAliveInterval <= 0 {
		cfg.ServerAliveInterval = 15 * time.Second
	}
	return &Exec{config: cfg}, nil
}

// Args returns the ssh argument vector for command.
func (t *Exec) Args(command string) []string {
	cfg := t.config
	args := []string{
		"-p", strconv.Itoa(cfg.Endpoint.Port),
		"-l", cfg.Endpoint.Username,
		"-o", "BatchMode=yes",
		"-o", "ServerAliveInterval=" + strconv.Itoa(int(cfg.ServerAliveInterval/time.Second)),
		"-o", "ServerAliveCountMax=3",
	}
	if cfg.KeyFile != "" {
		args = append(args, "-i", cfg.KeyFile)
	}
	if cfg.KnownHostsFile != "" {
		args = append(args, "-o", "UserKnownHostsFile="+cfg.KnownHostsFile)
	}
	if cfg.InsecureIgnoreHostKey {
		args = append(args, "-o", "StrictHostKeyChecking=no", "-o", "UserKnownHostsFile=/dev/null")
	}
	args = append(args, cfg.ExtraArgs...)
	args = append(args, cfg.Endpoint.Host, command)
	return args
}

// Open starts command under ssh with stdout piped back.
func (t *Exec) Open(ctx context.Context, command string) (Session, error) {
	cmd := t.command(ctx, command)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, n: 64 * 1024}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ssh: %w", err)
	}

	return &execSession{cmd: cmd, stdout: stdout, stderr: &stderr}, nil
}

// Run executes command to completion and returns its stdout.
func (t *Exec) Run(ctx context.Context, command string) ([]byte, error) {
	cmd := t.command(ctx, command)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, fmt.Errorf("run %q: %w", command, ctxErr)
		}
		return out, classifyExit(command, err, stderr.String())
	}
	return out, nil
}

// command builds the ssh child process for a remote command.
func (t *Exec) command(ctx context.Context, command string) *exec.Cmd {
	args := t.Args(command)
	if t.argsHook != nil {
		args = t.argsHook(args)
	}
	cmd := exec.CommandContext(ctx, t.config.Binary, args...)
	// Bound Wait if a grandchild keeps the output pipes open after kill.
	cmd.WaitDelay = waitDelay
	return cmd
}

// waitDelay bounds how long Wait lingers on pipes after the process exits.
const waitDelay = 2 * time.Second

// execSession is a Session over one ssh child process.
type execSession struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer

	waitOnce sync.Once
	waitErr  error
	exited   atomic.Bool
	closed   atomic.Bool
}

func (s *execSession) Stdout() io.Reader {
	return s.stdout
}

func (s *execSession) Wait() error {
	s.waitOnce.Do(func() {
		err := s.cmd.Wait()
		s.exited.Store(true)
		if err != nil {
			err = classifyExit("session", err, s.stderr.String())
		}
		s.waitErr = err
	})
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.waitErr
}

// Keepalive is a no-op: ssh's ServerAliveInterval detects dead peers and
// the process exits, which surfaces through Wait.
func (s *execSession) Keepalive(context.Context) error {
	if s.exited.Load() {
		return errors.New("keepalive: ssh process has exited")
	}
	return nil
}

func (s *execSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.cmd.Process != nil && !s.exited.Load() {
		_ = s.cmd.Process.Kill()
	}
	return nil
}

// classifyExit maps an ssh exit into a wrapped error, tagging
// authentication failures with ErrAuth.
func classifyExit(command string, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == sshExitAuth &&
		strings.Contains(stderr, "Permission denied") {
		return fmt.Errorf("%w: %s", ErrAuth, stderr)
	}
	if stderr != "" {
		return fmt.Errorf("%s: %w: %s", command, err, stderr)
	}
	return fmt.Errorf("%s: %w", command, err)
}

// limitedWriter keeps at most n bytes and silently discards the rest.
type limitedWriter struct {
	mu sync.Mutex
	w  io.Writer
	n  int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n > 0 {
		chunk := p
		if len(chunk) > l.n {
			chunk = chunk[:l.n]
		}
		written, err := l.w.Write(chunk)
		l.n -= written
		if err != nil {
			return written, err
		}
	}
	return len(p), nil
}

// Verify Exec implements Transport.
var _ Transport = (*Exec)(nil)
