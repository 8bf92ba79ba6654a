package clock

import (
	"testing"
	"time"
)

func TestFake_AfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	ch := c.After(5 * time.Second)
	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}
	if c.Waiters() != 1 {
		t.Fatalf("Waiters() = %d, want 1", c.Waiters())
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(5 * time.Second)) {
			t.Errorf("fired at %v", got)
		}
	default:
		t.Fatal("did not fire at deadline")
	}
	if c.Waiters() != 0 {
		t.Errorf("Waiters() = %d, want 0", c.Waiters())
	}
}

func TestFake_AfterNonPositive(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
	if c.Waiters() != 0 {
		t.Errorf("Waiters() = %d, want 0", c.Waiters())
	}
}

func TestFake_BlockUntil(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	done := make(chan struct{})
	go func() {
		c.BlockUntil(1)
		close(done)
	}()

	c.After(time.Minute)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("BlockUntil did not return")
	}
}

func TestFake_TimerStopRemovesWaiter(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	timer := c.NewTimer(time.Second)
	if c.Waiters() != 1 {
		t.Fatalf("Waiters() = %d, want 1", c.Waiters())
	}
	if !timer.Stop() {
		t.Error("Stop on an active timer = false")
	}
	if c.Waiters() != 0 {
		t.Errorf("Waiters() = %d, want 0", c.Waiters())
	}
	if timer.Stop() {
		t.Error("second Stop = true")
	}

	c.Advance(time.Minute)
	select {
	case <-timer.C:
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestFake_TimerResetMovesDeadline(t *testing.T) {
	start := time.Unix(0, 0)
	c := Fake(start)
	timer := c.NewTimer(10 * time.Second)

	c.Advance(8 * time.Second)
	if !timer.Reset(10 * time.Second) {
		t.Error("Reset on an active timer = false")
	}
	c.Advance(8 * time.Second)
	select {
	case <-timer.C:
		t.Fatal("fired before the reset deadline")
	default:
	}

	c.Advance(2 * time.Second)
	select {
	case got := <-timer.C:
		if !got.Equal(start.Add(18 * time.Second)) {
			t.Errorf("fired at %v", got)
		}
	default:
		t.Fatal("did not fire at the reset deadline")
	}

	// A fired timer can be rearmed.
	if timer.Reset(time.Second) {
		t.Error("Reset on a fired timer = true")
	}
	if c.Waiters() != 1 {
		t.Errorf("Waiters() = %d, want 1", c.Waiters())
	}
}

func TestReal_TimerFires(t *testing.T) {
	timer := Real().NewTimer(time.Millisecond)
	select {
	case <-timer.C:
	case <-time.After(5 * time.Second):
		t.Fatal("real timer did not fire")
	}
	if timer.Stop() {
		t.Error("Stop after fire = true")
	}
}
