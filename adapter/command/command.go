// Package command delivers priority events to a local program, such as a
// desktop notifier script. The event JSON is written to the program's
// stdin and its key fields are exported as GROWLER_* environment variables.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/growler/adapter"
)

// DefaultTimeout bounds one program run.
const DefaultTimeout = 10 * time.Second

// maxStderr caps how much program stderr is kept for error messages.
const maxStderr = 4 << 10

// Config configures the command adapter.
type Config struct {
	// Path is the program to run (required). Resolved via PATH if it has
	// no separator.
	Path string
	// Args are passed to the program.
	Args []string
	// Env adds KEY=VALUE entries to the inherited environment.
	Env []string
	// Timeout bounds each run (default 10s).
	Timeout time.Duration
}

// Adapter runs a program once per priority event.
type Adapter struct {
	config Config
}

// New creates a command adapter from the given config.
func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("command adapter requires a path")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg}, nil
}

// Publish runs the program with the event on stdin. A non-zero exit is an
// error carrying the program's stderr.
func (a *Adapter) Publish(ctx context.Context, event *adapter.PriorityEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("command: marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.config.Path, a.config.Args...)
	cmd.Stdin = bytes.NewReader(body)
	cmd.Env = append(os.Environ(), a.config.Env...)
	cmd.Env = append(cmd.Env, eventEnv(event)...)
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &limitedBuffer{buf: &stderr, max: maxStderr}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("command: %s: %w", a.config.Path, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("command: %s: %w: %s", a.config.Path, err, msg)
		}
		return fmt.Errorf("command: %s: %w", a.config.Path, err)
	}
	return nil
}

// Close implements adapter.Adapter. Runs are not pooled, so there is
// nothing to release.
func (a *Adapter) Close() error {
	return nil
}

func eventEnv(e *adapter.PriorityEvent) []string {
	return []string{
		"GROWLER_EVENT_TYPE=" + e.EventType,
		"GROWLER_CHANGE=" + strconv.Itoa(e.Change),
		"GROWLER_PROJECT=" + e.Project,
		"GROWLER_SUBJECT=" + e.Subject,
		"GROWLER_URL=" + e.URL,
		"GROWLER_ACTOR=" + e.Actor,
	}
}

// limitedBuffer keeps the first max bytes and discards the rest.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}

var _ adapter.Adapter = (*Adapter)(nil)
