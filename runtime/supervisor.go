// Package runtime drives the Gerrit event stream: it owns the stream
// session, frames and decodes its output, dispatches each event in order,
// and reconnects with a fixed backoff after any transport fault.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/growler/clock"
	"github.com/pithecene-io/growler/framing"
	"github.com/pithecene-io/growler/log"
	"github.com/pithecene-io/growler/metrics"
	"github.com/pithecene-io/growler/transport"
	"github.com/pithecene-io/growler/types"
)

// Supervisor defaults.
const (
	// StreamCommand is the remote command producing the event feed.
	StreamCommand = "gerrit stream-events"

	// DefaultIdleTimeout is how long the stream may stay silent before a
	// keepalive is sent.
	DefaultIdleTimeout = 15 * time.Second

	// DefaultBackoff is the delay between a fault and the next connection
	// attempt.
	DefaultBackoff = 5 * time.Second

	// DefaultChunkSize is the read size of the stream pump.
	DefaultChunkSize = 16384

	// exitDrainGrace bounds how long output is drained after the remote
	// process has exited.
	exitDrainGrace = 2 * time.Second
)

// DispatchFunc receives each decoded event, in stream order.
type DispatchFunc func(ctx context.Context, ev *types.Event)

// Config configures a Supervisor.
type Config struct {
	// Transport opens stream sessions (required).
	Transport transport.Transport
	// Dispatch handles each decoded event (required).
	Dispatch DispatchFunc
	// Subscribe limits the stream to these event types. Empty streams all.
	Subscribe []string
	// IdleTimeout before a keepalive is sent (default 15s).
	IdleTimeout time.Duration
	// Backoff between a fault and the next connection attempt (default 5s).
	Backoff time.Duration
	// ChunkSize is the stream read size (default 16384).
	ChunkSize int
	// MaxRecordSize bounds a single record (default framing.MaxRecordSize).
	MaxRecordSize int
	// Clock drives backoff waits, the idle and exit-drain timers and
	// receive timestamps (default real).
	Clock clock.Clock
	// Logger (default no-op).
	Logger *log.Logger
	// Collector may be nil.
	Collector *metrics.Collector
	// OnStateChange, if set, observes every state transition. It runs on
	// the control loop and must not block.
	OnStateChange func(State)
	// OnIdle, if set, runs after each successful idle keepalive.
	OnIdle func(ctx context.Context)
}

// Supervisor owns the stream session lifecycle.
// Run must not be called concurrently.
type Supervisor struct {
	config  Config
	command string
	logger  *log.Logger

	mu    sync.Mutex
	state State
	stats Stats
}

// Stats summarizes a Supervisor's lifetime.
type Stats struct {
	Sessions      int64
	Faults        int64
	Events        int64
	LastFault     string
	LastFaultKind string
	LastFaultAt   time.Time
}

// New creates a Supervisor from cfg.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Transport == nil {
		return nil, errors.New("supervisor requires a transport")
	}
	if cfg.Dispatch == nil {
		return nil, errors.New("supervisor requires a dispatch func")
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxRecordSize <= 0 {
		cfg.MaxRecordSize = framing.MaxRecordSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Supervisor{
		config:  cfg,
		command: BuildStreamCommand(cfg.Subscribe),
		logger:  cfg.Logger.With("supervisor"),
	}, nil
}

// BuildStreamCommand returns the stream command, limited to the given
// event types.
func BuildStreamCommand(subscribe []string) string {
	var b strings.Builder
	b.WriteString(StreamCommand)
	for _, t := range subscribe {
		if t = strings.TrimSpace(t); t != "" {
			b.WriteString(" -s ")
			b.WriteString(t)
		}
	}
	return b.String()
}

// Command returns the remote stream command.
func (s *Supervisor) Command() string {
	return s.command
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of lifetime counters.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev != next {
		s.logger.Debug("state change", map[string]any{
			"from": prev.String(),
			"to":   next.String(),
		})
	}
	if s.config.OnStateChange != nil {
		s.config.OnStateChange(next)
	}
}

// Run streams events until ctx is canceled, reconnecting after every
// transport fault. It returns nil on cancellation; faults never end it.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateStopped)
	s.setState(StateDisconnected)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if !s.wait(ctx) {
				return nil
			}
			s.config.Collector.IncReconnect()
		}
		if ctx.Err() != nil {
			return nil
		}

		err := s.runSession(ctx)
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil
		}
		s.recordFault(err)
	}
}

// wait sleeps for the backoff, returning false if ctx ends first.
func (s *Supervisor) wait(ctx context.Context) bool {
	s.logger.Info("reconnecting after backoff", map[string]any{
		"backoff": s.config.Backoff.String(),
	})
	select {
	case <-ctx.Done():
		return false
	case <-s.config.Clock.After(s.config.Backoff):
		return true
	}
}

func (s *Supervisor) recordFault(err error) {
	s.config.Collector.IncSessionFault()

	kind := "unknown"
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		kind = sessErr.Kind.String()
	}

	s.mu.Lock()
	s.stats.Faults++
	s.stats.LastFault = err.Error()
	s.stats.LastFaultKind = kind
	s.stats.LastFaultAt = s.config.Clock.Now()
	s.mu.Unlock()

	fields := map[string]any{"error": err.Error(), "kind": kind}
	if IsAuthFault(err) {
		fields["hint"] = "check that your SSH public key is registered with the Gerrit account"
	}
	s.logger.Error("stream session fault", fields)
}

// runSession runs one session from open to fault or cancellation. The
// session is closed on every path.
func (s *Supervisor) runSession(ctx context.Context) error {
	s.setState(StateConnecting)

	sess, err := s.config.Transport.Open(ctx, s.command)
	if err != nil {
		if ctx.Err() == nil {
			s.config.Collector.IncOpenFailure()
		}
		return &SessionError{Kind: SessionErrorOpen, Err: err}
	}
	defer func() {
		s.setState(StateClosing)
		if err := sess.Close(); err != nil {
			s.logger.Debug("session close failed", map[string]any{"error": err.Error()})
		}
	}()

	s.config.Collector.IncSessionOpened()
	s.mu.Lock()
	s.stats.Sessions++
	s.mu.Unlock()
	s.logger.Info("stream session opened", map[string]any{"command": s.command})

	s.setState(StateStreaming)
	return s.stream(ctx, sess)
}

// stream is the control loop. It blocks in a single select on stream
// data, remote exit, the idle timer and cancellation.
func (s *Supervisor) stream(ctx context.Context, sess transport.Session) error {
	stop := make(chan struct{})
	defer close(stop)

	chunks := make(chan []byte)
	readDone := make(chan error, 1)
	go pump(sess.Stdout(), s.config.ChunkSize, chunks, readDone, stop)

	exited := make(chan error, 1)
	go func() { exited <- sess.Wait() }()

	reader := framing.NewReaderSize(s.config.MaxRecordSize)
	idle := s.config.Clock.NewTimer(s.config.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk := <-chunks:
			idle.Reset(s.config.IdleTimeout)
			if err := s.consume(ctx, reader, chunk); err != nil {
				return err
			}

		case err := <-readDone:
			return s.readEnded(ctx, err, exited)

		case exitErr := <-exited:
			return s.drainAfterExit(ctx, reader, chunks, readDone, exitErr)

		case <-idle.C:
			if err := sess.Keepalive(ctx); err != nil {
				return &SessionError{Kind: SessionErrorKeepalive, Err: err}
			}
			s.config.Collector.IncKeepalive()
			s.logger.Debug("stream idle, keepalive sent", map[string]any{
				"idle": s.config.IdleTimeout.String(),
			})
			if s.config.OnIdle != nil {
				s.config.OnIdle(ctx)
			}
			idle.Reset(s.config.IdleTimeout)
		}
	}
}

// readEnded turns the end of the output stream into a fault. A clean EOF
// means the remote command is exiting; its exit status is collected
// briefly for the log.
func (s *Supervisor) readEnded(ctx context.Context, err error, exited <-chan error) error {
	if err != nil && !errors.Is(err, io.EOF) {
		return &SessionError{Kind: SessionErrorRead, Err: err}
	}

	grace := s.config.Clock.NewTimer(exitDrainGrace)
	defer grace.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case exitErr := <-exited:
		return exitFault(exitErr)
	case <-grace.C:
		return exitFault(io.EOF)
	}
}

// drainAfterExit consumes output still in flight after the remote
// process exited, so no event written before the exit is lost.
func (s *Supervisor) drainAfterExit(ctx context.Context, reader *framing.Reader, chunks <-chan []byte, readDone <-chan error, exitErr error) error {
	grace := s.config.Clock.NewTimer(exitDrainGrace)
	defer grace.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk := <-chunks:
			if err := s.consume(ctx, reader, chunk); err != nil {
				return err
			}
		case <-readDone:
			return exitFault(exitErr)
		case <-grace.C:
			return exitFault(exitErr)
		}
	}
}

func exitFault(exitErr error) error {
	if exitErr == nil {
		exitErr = errors.New("remote command exited")
	}
	return &SessionError{Kind: SessionErrorExit, Err: exitErr}
}

// consume frames chunk and dispatches every complete record in order.
func (s *Supervisor) consume(ctx context.Context, reader *framing.Reader, chunk []byte) error {
	s.config.Collector.AddBytesReceived(len(chunk))
	reader.Feed(chunk)

	records, err := reader.Drain()
	for _, record := range records {
		s.handleRecord(ctx, record)
	}
	if err != nil {
		return &SessionError{Kind: SessionErrorFrame, Err: err}
	}
	return nil
}

func (s *Supervisor) handleRecord(ctx context.Context, record []byte) {
	ev, err := framing.Decode(record, s.config.Clock.Now())
	if err != nil {
		s.config.Collector.IncDecodeError()
		s.logger.Warn("skipping undecodable record", map[string]any{
			"error":  err.Error(),
			"record": preview(record),
		})
		return
	}

	s.config.Collector.IncEventReceived(string(ev.Type))
	s.mu.Lock()
	s.stats.Events++
	s.mu.Unlock()

	s.dispatch(ctx, ev)
}

// dispatch hands ev to the dispatch func. A panic is contained to this
// event.
func (s *Supervisor) dispatch(ctx context.Context, ev *types.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.config.Collector.IncDispatchFault()
			s.logger.ErrorWithStack("event dispatch panicked", map[string]any{
				"panic":  fmt.Sprint(r),
				"type":   string(ev.Type),
				"change": ev.ChangeNumber(),
			})
		}
	}()
	s.config.Dispatch(ctx, ev)
}

// pump copies stream output to chunks until a read fails or stop closes.
// The final read error (io.EOF on a clean close) goes to done.
func pump(r io.Reader, size int, chunks chan<- []byte, done chan<- error, stop <-chan struct{}) {
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-stop:
				return
			}
		}
		if err != nil {
			done <- err
			return
		}
	}
}

// preview shortens a record for logging.
func preview(record []byte) string {
	const max = 200
	if len(record) <= max {
		return string(record)
	}
	return string(record[:max]) + "..."
}
