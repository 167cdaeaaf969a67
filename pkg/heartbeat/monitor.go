package heartbeat

import (
	"sync"
	"time"
)

// DefaultTimeout is the default heartbeat timeout.
const DefaultTimeout = 5 * time.Second

// State represents the monitor state.
type State uint8

const (
	// StateDisabled - zero timeout, the monitor never arms. Used for
	// transports with their own liveness mechanism.
	StateDisabled State = iota

	// StateIdle - monitor created but not started.
	StateIdle

	// StateArmed - monitor is watching for activity.
	StateArmed

	// StateExpired - timeout elapsed with no activity; the expiry
	// callback has been (or is being) invoked.
	StateExpired

	// StateStopped - monitor stopped; no further expiry fires.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisabled:
		return "DISABLED"
	case StateIdle:
		return "IDLE"
	case StateArmed:
		return "ARMED"
	case StateExpired:
		return "EXPIRED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Monitor watches one connection for inactivity.
//
// The expiry callback fires at most once, from the monitor's own goroutine.
// The decision to fire is taken under the monitor's lock: once Stop has
// returned, no new expiry starts. A callback already in flight when Stop is
// called may still complete; callers handle that by making their close path
// idempotent.
type Monitor struct {
	timeout  time.Duration
	onExpire func(sinceActivity time.Duration)

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	stopCh       chan struct{}
}

// NewMonitor creates a monitor with the given timeout. A zero or negative
// timeout disables monitoring entirely. The callback is invoked exactly
// once if the timeout elapses with no KeepAlive.
func NewMonitor(timeout time.Duration, onExpire func(sinceActivity time.Duration)) *Monitor {
	m := &Monitor{
		timeout:  timeout,
		onExpire: onExpire,
		state:    StateIdle,
		stopCh:   make(chan struct{}),
	}
	if timeout <= 0 {
		m.state = StateDisabled
	}
	return m
}

// Start arms the monitor and begins the watch loop.
// No-op if already started, stopped or disabled.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	m.state = StateArmed
	m.lastActivity = time.Now()
	m.mu.Unlock()

	go m.loop()
}

// KeepAlive records the current time as the last-seen-activity instant.
// No-op unless the monitor is armed.
func (m *Monitor) KeepAlive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateArmed {
		return
	}
	m.lastActivity = time.Now()
}

// Stop moves the monitor to Stopped from any state and cancels the pending
// timer. Idempotent. After Stop returns, no new expiry callback starts.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateStopped, StateDisabled:
		return
	case StateIdle, StateArmed, StateExpired:
		if m.state == StateArmed {
			close(m.stopCh)
		}
		m.state = StateStopped
	}
}

// State returns the current monitor state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Timeout returns the configured timeout.
func (m *Monitor) Timeout() time.Duration {
	return m.timeout
}

// LastActivity returns the last-seen-activity instant.
func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// loop is the watch loop. It checks elapsed time at a quarter of the
// timeout so expiry lands well inside the [timeout, 2*timeout) bound.
func (m *Monitor) loop() {
	interval := m.timeout / 4
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.checkExpiry() {
				return
			}
		}
	}
}

// checkExpiry fires the expiry callback if the timeout has elapsed.
// Returns true when the loop should exit.
func (m *Monitor) checkExpiry() bool {
	m.mu.Lock()
	if m.state != StateArmed {
		m.mu.Unlock()
		return true
	}
	elapsed := time.Since(m.lastActivity)
	if elapsed < m.timeout {
		m.mu.Unlock()
		return false
	}
	m.state = StateExpired
	cb := m.onExpire
	m.mu.Unlock()

	if cb != nil {
		cb(elapsed)
	}
	return true
}
