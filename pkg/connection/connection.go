package connection

import (
	"sync"
	"time"

	"github.com/carlink-protocol/carlink-go/pkg/heartbeat"
	"github.com/carlink-protocol/carlink-go/pkg/log"
	"github.com/carlink-protocol/carlink-go/pkg/security"
	"github.com/carlink-protocol/carlink-go/pkg/wire"
)

// Handle identifies one physical transport connection. Assigned by the
// registry at creation; unique among live connections.
type Handle int32

// DeviceHandle identifies the physical device backing a connection.
// Supplied by the transport adapter; immutable for the connection's lifetime.
type DeviceHandle int32

// SessionID identifies one logical session multiplexed over a connection.
// Unique within the connection only. Alias of the wire-level 8-bit session
// identifier so collaborator interfaces can be satisfied without importing
// this package.
type SessionID = uint8

// MaxSessions is the size of the per-connection session identifier space.
const MaxSessions = 256

// ServiceInfo describes one service in a session snapshot.
type ServiceInfo struct {
	// Type is the service's channel type.
	Type wire.ServiceType

	// Protected reports whether a security context is bound.
	Protected bool
}

// service is one entry in a session's service list. The control service is
// always first.
type service struct {
	serviceType wire.ServiceType
	security    security.Context
}

// Config configures a Connection.
type Config struct {
	// HeartbeatTimeout is the inactivity timeout. Zero disables heartbeat
	// monitoring (for transports with their own liveness mechanism).
	HeartbeatTimeout time.Duration

	// OnExpired is invoked once if the heartbeat expires. The registry
	// uses it to route the closure through DestroyConnection. If nil, the
	// connection closes itself.
	OnExpired func(sinceActivity time.Duration)

	// ConnectionID is the transport-assigned correlation ID for log events.
	ConnectionID string

	// Logger is the diagnostics sink. Nil disables logging.
	Logger log.Logger
}

// Connection owns the session/service state for one physical transport
// link. All mutation is serialized by a single exclusive lock; snapshot
// reads are copy-out. A Connection is created by the registry and reaches
// its terminal state through Close, which is idempotent.
type Connection struct {
	handle       Handle
	deviceHandle DeviceHandle
	connID       string
	logger       log.Logger
	monitor      *heartbeat.Monitor

	mu       sync.Mutex
	closed   bool
	sessions map[SessionID][]service
}

// New creates a Connection and arms its heartbeat monitor.
func New(handle Handle, deviceHandle DeviceHandle, cfg Config) *Connection {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	c := &Connection{
		handle:       handle,
		deviceHandle: deviceHandle,
		connID:       cfg.ConnectionID,
		logger:       logger,
		sessions:     make(map[SessionID][]service),
	}

	onExpired := cfg.OnExpired
	c.monitor = heartbeat.NewMonitor(cfg.HeartbeatTimeout, func(since time.Duration) {
		c.logHeartbeat("expired", &since)
		if onExpired != nil {
			onExpired(since)
			return
		}
		c.Close()
	})
	c.monitor.Start()

	return c
}

// Handle returns the connection handle.
func (c *Connection) Handle() Handle {
	return c.handle
}

// Device returns the backing device handle.
func (c *Connection) Device() DeviceHandle {
	return c.deviceHandle
}

// Closed reports whether the connection reached its terminal state.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// AddNewSession allocates the lowest unused session ID, creates the session
// with its control service, and inserts it into the session table.
// Returns ErrResourceExhausted when all identifiers are in use.
func (c *Connection) AddNewSession() (SessionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	if len(c.sessions) >= MaxSessions {
		return 0, ErrResourceExhausted
	}

	var id SessionID
	for {
		if _, used := c.sessions[id]; !used {
			break
		}
		id++
	}

	c.sessions[id] = []service{{serviceType: wire.ServiceTypeControl}}
	c.logSession(id, nil, "started")
	return id, nil
}

// RemoveSession removes the entire session: all services and the session
// entry. Released security bindings are handed back to the caller for
// disposal by the security collaborator.
func (c *Connection) RemoveSession(id SessionID) ([]security.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	return c.removeSessionLocked(id)
}

// removeSessionLocked removes a session and collects its bindings.
// Caller holds c.mu.
func (c *Connection) removeSessionLocked(id SessionID) ([]security.Context, error) {
	services, ok := c.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	var released []security.Context
	for _, svc := range services {
		if svc.security != nil {
			released = append(released, svc.security)
		}
	}
	delete(c.sessions, id)
	c.logSession(id, nil, "ended")
	return released, nil
}

// AddNewService inserts a service of the given type into an existing
// session, with no security binding. Returns ErrNotFound if the session is
// absent and ErrAlreadyExists if the type is already present.
func (c *Connection) AddNewService(id SessionID, serviceType wire.ServiceType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	services, ok := c.sessions[id]
	if !ok {
		return ErrNotFound
	}
	for _, svc := range services {
		if svc.serviceType == serviceType {
			return ErrAlreadyExists
		}
	}

	c.sessions[id] = append(services, service{serviceType: serviceType})
	st := uint8(serviceType)
	c.logSession(id, &st, "service started")
	return nil
}

// RemoveService removes one service from a session. Removing the control
// service is equivalent to RemoveSession: the session and all its services
// go with it. Released bindings are handed back for disposal.
func (c *Connection) RemoveService(id SessionID, serviceType wire.ServiceType) ([]security.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if serviceType.IsPrimary() {
		if _, ok := c.sessions[id]; !ok {
			return nil, ErrNotFound
		}
		return c.removeSessionLocked(id)
	}

	services, ok := c.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	for i, svc := range services {
		if svc.serviceType != serviceType {
			continue
		}
		var released []security.Context
		if svc.security != nil {
			released = append(released, svc.security)
		}
		c.sessions[id] = append(services[:i:i], services[i+1:]...)
		st := uint8(serviceType)
		c.logSession(id, &st, "service ended")
		return released, nil
	}
	return nil, ErrNotFound
}

// SetSecurityContext binds a security context to an existing service.
// Any previously bound context is returned to the caller — never silently
// dropped — so the security collaborator can tear it down.
func (c *Connection) SetSecurityContext(id SessionID, serviceType wire.ServiceType, ctx security.Context) (security.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	services, ok := c.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	for i := range services {
		if services[i].serviceType != serviceType {
			continue
		}
		old := services[i].security
		services[i].security = ctx
		action := "bound"
		if old != nil {
			action = "replaced"
		}
		c.logSecurity(id, serviceType, action)
		return old, nil
	}
	return nil, ErrNotFound
}

// GetSecurityContext returns the security context bound to a service.
// Returns false if the pair is absent or the service is unprotected —
// an unprotected service is a valid state, not an error.
func (c *Connection) GetSecurityContext(id SessionID, serviceType wire.ServiceType) (security.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}
	services, ok := c.sessions[id]
	if !ok {
		return nil, false
	}
	for _, svc := range services {
		if svc.serviceType == serviceType {
			return svc.security, svc.security != nil
		}
	}
	return nil, false
}

// SessionMapSnapshot returns a read-consistent copy of the session/service
// table for diagnostic and routing use outside the lock. The control
// service is always first in each list.
func (c *Connection) SessionMapSnapshot() map[SessionID][]ServiceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[SessionID][]ServiceInfo, len(c.sessions))
	for id, services := range c.sessions {
		infos := make([]ServiceInfo, len(services))
		for i, svc := range services {
			infos[i] = ServiceInfo{Type: svc.serviceType, Protected: svc.security != nil}
		}
		snapshot[id] = infos
	}
	return snapshot
}

// SessionCount returns the number of open sessions.
func (c *Connection) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Close transitions the connection to its terminal state: all sessions are
// torn down, the heartbeat monitor is stopped, and every security binding
// is handed back for disposal. Idempotent — a second Close is a no-op and
// returns nil.
func (c *Connection) Close() []security.Context {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	var released []security.Context
	for id, services := range c.sessions {
		for _, svc := range services {
			if svc.security != nil {
				released = append(released, svc.security)
			}
		}
		delete(c.sessions, id)
	}
	c.mu.Unlock()

	c.monitor.Stop()
	c.logHeartbeat("stopped", nil)
	return released
}

// KeepAlive records current activity on the heartbeat monitor without
// touching the session table. A keep-alive racing Close is dropped.
func (c *Connection) KeepAlive() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.monitor.KeepAlive()
}

// HeartbeatState returns the state of the connection's heartbeat monitor.
func (c *Connection) HeartbeatState() heartbeat.State {
	return c.monitor.State()
}

func (c *Connection) logSession(id SessionID, serviceType *uint8, action string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Handle:       int32(c.handle),
		Category:     log.CategorySession,
		Session: &log.SessionEvent{
			SessionID:   uint8(id),
			ServiceType: serviceType,
			Action:      action,
		},
	})
}

func (c *Connection) logSecurity(id SessionID, serviceType wire.ServiceType, action string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Handle:       int32(c.handle),
		Category:     log.CategorySecurity,
		Security: &log.SecurityEvent{
			SessionID:   uint8(id),
			ServiceType: uint8(serviceType),
			Action:      action,
		},
	})
}

func (c *Connection) logHeartbeat(kind string, since *time.Duration) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Handle:       int32(c.handle),
		Category:     log.CategoryHeartbeat,
		Heartbeat: &log.HeartbeatEvent{
			Kind:          kind,
			SinceActivity: since,
		},
	})
}
