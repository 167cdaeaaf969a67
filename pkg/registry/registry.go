package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/carlink-protocol/carlink-go/pkg/connection"
	"github.com/carlink-protocol/carlink-go/pkg/log"
	"github.com/carlink-protocol/carlink-go/pkg/security"
)

// Registry errors.
var (
	// ErrNotFound indicates the handle does not reference a live
	// connection. The connection is already gone, not a failure.
	ErrNotFound = errors.New("connection not found")

	// ErrResourceExhausted indicates the handle space is exhausted.
	ErrResourceExhausted = errors.New("connection handles exhausted")
)

// Reason describes why a connection was destroyed.
type Reason uint8

const (
	// ReasonDisconnect - the transport reported a physical disconnect.
	ReasonDisconnect Reason = iota

	// ReasonHeartbeat - the heartbeat monitor declared the link dead.
	ReasonHeartbeat

	// ReasonShutdown - the registry is shutting down.
	ReasonShutdown
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonDisconnect:
		return "transport disconnect"
	case ReasonHeartbeat:
		return "heartbeat timeout"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Observer is notified once when a connection is destroyed.
// Observers must not call back into the registry synchronously.
type Observer func(handle connection.Handle, device connection.DeviceHandle, reason Reason)

// Config configures a Registry.
type Config struct {
	// Dispose receives security bindings released during connection
	// teardown, for disposal by the security collaborator. Nil drops them.
	Dispose func([]security.Context)

	// Logger is the diagnostics sink. Nil disables logging.
	Logger log.Logger
}

// Registry is the sole owner of the set of live connections.
type Registry struct {
	logger  log.Logger
	dispose func([]security.Context)

	mu         sync.RWMutex
	conns      map[connection.Handle]*connection.Connection
	connIDs    map[connection.Handle]string
	nextHandle int32
	observers  []Observer
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Registry{
		logger:     logger,
		dispose:    cfg.Dispose,
		conns:      make(map[connection.Handle]*connection.Connection),
		connIDs:    make(map[connection.Handle]string),
		nextHandle: 1,
	}
}

// AddObserver registers a closure observer. Register before traffic starts.
func (r *Registry) AddObserver(obs Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, obs)
}

// CreateConnection allocates a fresh handle, constructs a Connection with
// an armed heartbeat monitor, and registers it. connectionID is the
// transport-assigned correlation ID for log events (may be empty).
func (r *Registry) CreateConnection(device connection.DeviceHandle, heartbeatTimeout time.Duration, connectionID string) (connection.Handle, error) {
	r.mu.Lock()

	if r.nextHandle <= 0 {
		r.mu.Unlock()
		return 0, ErrResourceExhausted
	}
	handle := connection.Handle(r.nextHandle)
	r.nextHandle++

	conn := connection.New(handle, device, connection.Config{
		HeartbeatTimeout: heartbeatTimeout,
		ConnectionID:     connectionID,
		Logger:           r.logger,
		OnExpired: func(time.Duration) {
			r.expire(handle)
		},
	})
	r.conns[handle] = conn
	r.connIDs[handle] = connectionID
	r.mu.Unlock()

	r.logConnection(handle, connectionID, device, "OPEN", "")
	return handle, nil
}

// GetConnection looks up a live connection for routing inbound traffic.
// A false return means the connection is already gone; callers treat that
// as a stale handle, not an error.
func (r *Registry) GetConnection(handle connection.Handle) (*connection.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[handle]
	return conn, ok
}

// KeepAlive records inbound activity for the connection. Stale handles are
// dropped silently.
func (r *Registry) KeepAlive(handle connection.Handle) {
	conn, ok := r.GetConnection(handle)
	if !ok {
		return
	}
	conn.KeepAlive()
}

// DestroyConnection closes the connection and removes it from the registry.
// Returns ErrNotFound if the handle is already absent. Once started,
// teardown always completes: the connection is closed, released security
// bindings go to the disposer, and observers are notified exactly once.
func (r *Registry) DestroyConnection(handle connection.Handle) error {
	return r.destroy(handle, ReasonDisconnect)
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Handles returns the handles of all live connections.
func (r *Registry) Handles() []connection.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]connection.Handle, 0, len(r.conns))
	for h := range r.conns {
		handles = append(handles, h)
	}
	return handles
}

// CloseAll destroys every live connection. Used at shutdown.
func (r *Registry) CloseAll() {
	for _, h := range r.Handles() {
		_ = r.destroy(h, ReasonShutdown)
	}
}

// expire is the heartbeat expiry path. A connection already destroyed by a
// racing disconnect is a benign no-op.
func (r *Registry) expire(handle connection.Handle) {
	_ = r.destroy(handle, ReasonHeartbeat)
}

// destroy removes the connection from the live set, closes it, hands
// released bindings to the disposer and notifies observers.
func (r *Registry) destroy(handle connection.Handle, reason Reason) error {
	r.mu.Lock()
	conn, ok := r.conns[handle]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.conns, handle)
	connID := r.connIDs[handle]
	delete(r.connIDs, handle)
	observers := make([]Observer, len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	// Connection lock is taken after the registry lock is released;
	// the registry-then-connection order is never reversed.
	released := conn.Close()
	if len(released) > 0 && r.dispose != nil {
		r.dispose(released)
	}

	r.logConnection(handle, connID, conn.Device(), "CLOSED", reason.String())
	for _, obs := range observers {
		obs(handle, conn.Device(), reason)
	}
	return nil
}

func (r *Registry) logConnection(handle connection.Handle, connID string, device connection.DeviceHandle, state, reason string) {
	r.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Handle:       int32(handle),
		Category:     log.CategoryConnection,
		Connection: &log.ConnectionEvent{
			State:        state,
			DeviceHandle: int32(device),
			Reason:       reason,
		},
	})
}
