package heartbeat

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestMonitorExpiresWithinBounds(t *testing.T) {
	const timeout = 100 * time.Millisecond

	var fired atomic.Bool
	start := time.Now()
	var firedAt atomic.Int64

	m := NewMonitor(timeout, func(since time.Duration) {
		firedAt.Store(int64(time.Since(start)))
		fired.Store(true)
	})
	m.Start()
	defer m.Stop()

	// Expiry must land at or after T and before 2T (plus scheduling slack).
	time.Sleep(2*timeout + 50*time.Millisecond)

	if !fired.Load() {
		t.Fatal("expiry never fired")
	}
	elapsed := time.Duration(firedAt.Load())
	if elapsed < timeout {
		t.Errorf("fired at %v, want >= %v", elapsed, timeout)
	}
	if elapsed >= 2*timeout+50*time.Millisecond {
		t.Errorf("fired at %v, want < 2T", elapsed)
	}
	if m.State() != StateStopped && m.State() != StateExpired {
		t.Errorf("state = %v after expiry", m.State())
	}
}

func TestMonitorKeepAliveDelaysExpiry(t *testing.T) {
	const timeout = 120 * time.Millisecond

	start := time.Now()
	var firedAt atomic.Int64

	m := NewMonitor(timeout, func(time.Duration) {
		firedAt.Store(int64(time.Since(start)))
	})
	m.Start()
	defer m.Stop()

	// KeepAlive at T/2 pushes expiry to at least 3T/2 from start.
	time.Sleep(timeout / 2)
	m.KeepAlive()

	time.Sleep(2*timeout + 60*time.Millisecond)

	elapsed := time.Duration(firedAt.Load())
	if elapsed == 0 {
		t.Fatal("expiry never fired")
	}
	if elapsed < 3*timeout/2 {
		t.Errorf("fired at %v, want >= %v", elapsed, 3*timeout/2)
	}
}

func TestMonitorStopPreventsExpiry(t *testing.T) {
	var fired atomic.Bool

	m := NewMonitor(60*time.Millisecond, func(time.Duration) {
		fired.Store(true)
	})
	m.Start()
	m.Stop()

	time.Sleep(200 * time.Millisecond)

	if fired.Load() {
		t.Error("expiry fired after Stop")
	}
	if m.State() != StateStopped {
		t.Errorf("state = %v, want STOPPED", m.State())
	}
}

func TestMonitorStopIdempotent(t *testing.T) {
	m := NewMonitor(time.Second, nil)
	m.Start()
	m.Stop()
	m.Stop()
	m.KeepAlive() // no-op after stop, must not panic

	if m.State() != StateStopped {
		t.Errorf("state = %v, want STOPPED", m.State())
	}
}

func TestMonitorZeroTimeoutNeverArms(t *testing.T) {
	var fired atomic.Bool

	m := NewMonitor(0, func(time.Duration) {
		fired.Store(true)
	})
	if m.State() != StateDisabled {
		t.Fatalf("state = %v, want DISABLED", m.State())
	}

	m.Start()
	m.KeepAlive()
	time.Sleep(50 * time.Millisecond)

	if m.State() != StateDisabled {
		t.Errorf("state = %v, want DISABLED", m.State())
	}
	if fired.Load() {
		t.Error("disabled monitor fired expiry")
	}
	m.Stop()
}

func TestMonitorExpiryFiresExactlyOnce(t *testing.T) {
	var count atomic.Int32

	m := NewMonitor(30*time.Millisecond, func(time.Duration) {
		count.Add(1)
	})
	m.Start()
	defer m.Stop()

	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expiry fired %d times, want 1", got)
	}
}

func TestMonitorStopFromExpiryCallback(t *testing.T) {
	// The close path stops the monitor from inside the expiry callback.
	// That re-entrant Stop must not deadlock.
	done := make(chan struct{})

	var m *Monitor
	m = NewMonitor(30*time.Millisecond, func(time.Duration) {
		m.Stop()
		close(done)
	})
	m.Start()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-entrant Stop deadlocked")
	}
	if m.State() != StateStopped {
		t.Errorf("state = %v, want STOPPED", m.State())
	}
}

func TestMonitorRepeatedKeepAliveHoldsOff(t *testing.T) {
	var fired atomic.Bool

	m := NewMonitor(80*time.Millisecond, func(time.Duration) {
		fired.Store(true)
	})
	m.Start()
	defer m.Stop()

	// Keep the connection alive for a while, then verify no expiry fired.
	for i := 0; i < 10; i++ {
		time.Sleep(20 * time.Millisecond)
		m.KeepAlive()
	}
	if fired.Load() {
		t.Error("expiry fired despite keep-alives")
	}
}
