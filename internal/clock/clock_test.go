package clock

import (
	"testing"
	"time"
)

func TestFakeNowAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", c.Now(), start)
	}
	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() after advance = %v", got)
	}
}

func TestFakeAfterFiresAtDeadline(t *testing.T) {
	c := NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ch := c.After(time.Minute)

	c.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired before deadline")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("timer did not fire at deadline")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestFakeAfterImmediate(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("zero-duration timer should fire immediately")
	}
}

func TestFakeMultipleWaiters(t *testing.T) {
	c := NewFake(time.Unix(1000, 0))
	early := c.After(10 * time.Second)
	late := c.After(20 * time.Second)

	c.Advance(15 * time.Second)
	select {
	case <-early:
	default:
		t.Fatal("early timer should have fired")
	}
	select {
	case <-late:
		t.Fatal("late timer fired too soon")
	default:
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}
}
