package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// Stub is a scripted Transport for tests. Sessions and open failures are
// queued ahead of time and handed out in order; Open blocks until one is
// queued or the context ends.
type Stub struct {
	queue chan stubOpen

	mu    sync.Mutex
	opens []string
	runs  []string

	// RunFunc serves Run calls. If nil, Run returns an error.
	RunFunc func(ctx context.Context, command string) ([]byte, error)
}

type stubOpen struct {
	session *StubSession
	err     error
}

// NewStub creates an empty Stub.
func NewStub() *Stub {
	return &Stub{queue: make(chan stubOpen, 64)}
}

// QueueSession makes the next Open return sess.
func (s *Stub) QueueSession(sess *StubSession) {
	s.queue <- stubOpen{session: sess}
}

// QueueOpenError makes the next Open fail with err.
func (s *Stub) QueueOpenError(err error) {
	s.queue <- stubOpen{err: err}
}

// Open implements Transport.
func (s *Stub) Open(ctx context.Context, command string) (Session, error) {
	s.mu.Lock()
	s.opens = append(s.opens, command)
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case next := <-s.queue:
		if next.err != nil {
			return nil, next.err
		}
		return next.session, nil
	}
}

// Run implements Transport.
func (s *Stub) Run(ctx context.Context, command string) ([]byte, error) {
	s.mu.Lock()
	s.runs = append(s.runs, command)
	fn := s.RunFunc
	s.mu.Unlock()

	if fn == nil {
		return nil, errors.New("stub: no RunFunc configured")
	}
	return fn(ctx, command)
}

// Opens returns the commands passed to Open, in order.
func (s *Stub) Opens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opens...)
}

// Runs returns the commands passed to Run, in order.
func (s *Stub) Runs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.runs...)
}

// StubSession is an in-memory Session driven by the test.
type StubSession struct {
	reader *io.PipeReader
	writer *io.PipeWriter

	exitOnce sync.Once
	exited   chan struct{}
	exitErr  error

	closeOnce sync.Once
	closedCh  chan struct{}
	closed    atomic.Bool

	keepaliveErr atomic.Value // error
	keepalives   atomic.Int64
}

// NewStubSession creates a live StubSession.
func NewStubSession() *StubSession {
	r, w := io.Pipe()
	return &StubSession{
		reader:   r,
		writer:   w,
		exited:   make(chan struct{}),
		closedCh: make(chan struct{}),
	}
}

// Send writes data to the session output. It blocks until the reader has
// consumed it, and fails once the session is closed.
func (s *StubSession) Send(data string) error {
	_, err := s.writer.Write([]byte(data))
	return err
}

// Exit simulates the remote process exiting with err after its output
// has been fully written.
func (s *StubSession) Exit(err error) {
	_ = s.writer.Close()
	s.finish(err)
}

// CloseOutput ends the output stream without the remote process
// exiting.
func (s *StubSession) CloseOutput() {
	_ = s.writer.Close()
}

// FailRead makes subsequent reads return err, simulating a broken
// connection.
func (s *StubSession) FailRead(err error) {
	_ = s.writer.CloseWithError(err)
}

// SetKeepaliveError makes Keepalive return err.
func (s *StubSession) SetKeepaliveError(err error) {
	s.keepaliveErr.Store(&err)
}

// Keepalives returns the number of Keepalive calls.
func (s *StubSession) Keepalives() int64 {
	return s.keepalives.Load()
}

// Closed reports whether Close has been called.
func (s *StubSession) Closed() bool {
	return s.closed.Load()
}

// Done is closed when Close is called.
func (s *StubSession) Done() <-chan struct{} {
	return s.closedCh
}

// Stdout implements Session.
func (s *StubSession) Stdout() io.Reader {
	return s.reader
}

// Wait implements Session.
func (s *StubSession) Wait() error {
	<-s.exited
	return s.exitErr
}

// Keepalive implements Session.
func (s *StubSession) Keepalive(context.Context) error {
	s.keepalives.Add(1)
	if v, ok := s.keepaliveErr.Load().(*error); ok && v != nil {
		return *v
	}
	return nil
}

// Close implements Session.
func (s *StubSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.reader.CloseWithError(ErrSessionClosed)
		s.finish(ErrSessionClosed)
		close(s.closedCh)
	})
	return nil
}

func (s *StubSession) finish(err error) {
	s.exitOnce.Do(func() {
		s.exitErr = err
		close(s.exited)
	})
}

// Verify stubs implement the interfaces.
var (
	_ Transport = (*Stub)(nil)
	_ Session   = (*StubSession)(nil)
)
