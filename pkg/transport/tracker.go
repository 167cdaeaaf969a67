package transport

import (
	"net"
	"sync"
)

// connTracker tracks the open network connections of one adapter so Stop can
// tear them all down and unblock their read goroutines.
type connTracker struct {
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func newConnTracker() *connTracker {
	return &connTracker{conns: make(map[net.Conn]struct{})}
}

// Add registers a connection. Returns false if the tracker is already
// drained, in which case the caller must close the connection itself.
func (t *connTracker) Add(c net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns == nil {
		return false
	}
	t.conns[c] = struct{}{}
	return true
}

// Remove forgets a connection after its read loop exits.
func (t *connTracker) Remove(c net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, c)
}

// Count returns the number of tracked connections.
func (t *connTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// CloseAll closes every tracked connection and marks the tracker drained.
// Further Add calls fail.
func (t *connTracker) CloseAll() {
	t.mu.Lock()
	conns := t.conns
	t.conns = nil
	t.mu.Unlock()

	for c := range conns {
		_ = c.Close()
	}
}
