package iox

import (
	"errors"
	"io"
	"testing"
)

type spyCloser struct {
	closed bool
	err    error
}

func (s *spyCloser) Close() error { s.closed = true; return s.err }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{err: errors.New("ignored")}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseAll(t *testing.T) {
	errA := errors.New("a failed")
	errC := errors.New("c failed")
	a := &spyCloser{err: errA}
	b := &spyCloser{}
	c := &spyCloser{err: errC}

	err := CloseAll(a, nil, b, c)
	if !a.closed || !b.closed || !c.closed {
		t.Fatal("every closer should be closed")
	}
	if !errors.Is(err, errA) || !errors.Is(err, errC) {
		t.Errorf("CloseAll() error = %v, want both failures joined", err)
	}
}

func TestCloseAll_Empty(t *testing.T) {
	if err := CloseAll(); err != nil {
		t.Errorf("CloseAll() = %v, want nil", err)
	}
}

func TestCloserFunc(t *testing.T) {
	called := false
	var c io.Closer = CloserFunc(func() error {
		called = true
		return nil
	})
	if err := c.Close(); err != nil || !called {
		t.Errorf("Close() = %v, called = %v", err, called)
	}
}
