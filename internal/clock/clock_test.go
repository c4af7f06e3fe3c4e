package clock

import (
	"testing"
	"time"
)

func TestMockAdvanceFiresExpiredTimers(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMock(start)

	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "two") })
	c.AfterFunc(5*time.Second, func() { fired = append(fired, "five") })

	c.Advance(1 * time.Second)
	if len(fired) != 0 {
		t.Fatalf("fired = %v, want none after 1s", fired)
	}

	c.Advance(1 * time.Second)
	if len(fired) != 1 || fired[0] != "two" {
		t.Fatalf("fired = %v, want [two]", fired)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}

	c.Advance(10 * time.Second)
	if len(fired) != 2 {
		t.Errorf("fired = %v, want [two five]", fired)
	}
	if got := c.Since(start); got != 12*time.Second {
		t.Errorf("Since(start) = %v, want 12s", got)
	}
}

func TestMockStoppedTimerDoesNotFire(t *testing.T) {
	c := NewMock(time.Unix(0, 0))

	called := false
	timer := c.AfterFunc(time.Second, func() { called = true })

	if !timer.Stop() {
		t.Error("Stop() = false, want true for active timer")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}

	c.Advance(time.Minute)
	if called {
		t.Error("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", c.Pending())
	}
}

func TestMockTimerScheduledDuringFire(t *testing.T) {
	c := NewMock(time.Unix(0, 0))

	count := 0
	var reschedule func()
	reschedule = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, reschedule)
		}
	}
	c.AfterFunc(time.Second, reschedule)

	for i := 0; i < 5; i++ {
		c.Advance(time.Second)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
