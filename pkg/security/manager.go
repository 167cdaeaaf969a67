package security

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/carlink-protocol/carlink-go/pkg/wire"
)

// ServiceBinder is the connection-side contract the Manager binds contexts
// through. Satisfied by *connection.Connection.
type ServiceBinder interface {
	// SetSecurityContext binds a context to an existing service and
	// returns any previously bound context for disposal.
	SetSecurityContext(session uint8, serviceType wire.ServiceType, ctx Context) (Context, error)

	// GetSecurityContext returns the bound context, or false if the
	// service is absent or unprotected.
	GetSecurityContext(session uint8, serviceType wire.ServiceType) (Context, bool)
}

// Manager is the security collaborator. It turns completed handshakes into
// payload protectors, binds them to services, and owns context lifetime:
// every context it creates is eventually closed here, whether replaced,
// removed with its service, or released at connection teardown.
type Manager struct {
	logger *slog.Logger

	mu   sync.Mutex
	live map[Context]struct{}
}

// NewManager creates a Manager. logger may be nil to disable logging.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger,
		live:   make(map[Context]struct{}),
	}
}

// OnHandshakeComplete binds a fresh protector, derived from the handshake's
// shared secret, to the (session, serviceType) pair on conn. A previously
// bound context handed back by the connection is disposed here. Fails
// without side effect if the pair does not exist.
func (m *Manager) OnHandshakeComplete(conn ServiceBinder, session uint8, serviceType wire.ServiceType, sharedSecret []byte) error {
	ctx, err := NewPayloadProtector(sharedSecret, session, uint8(serviceType))
	if err != nil {
		return fmt.Errorf("failed to create payload protector: %w", err)
	}

	old, err := conn.SetSecurityContext(session, serviceType, ctx)
	if err != nil {
		_ = ctx.Close()
		return fmt.Errorf("failed to bind security context: %w", err)
	}

	m.mu.Lock()
	m.live[ctx] = struct{}{}
	m.mu.Unlock()

	if old != nil {
		m.Dispose([]Context{old})
	}

	if m.logger != nil {
		m.logger.Debug("security context bound",
			"session", session,
			"service", serviceType.String(),
			"replaced", old != nil)
	}
	return nil
}

// Dispose tears down contexts handed back by the connection core (on
// replace, service removal, or connection close). Unknown contexts are
// closed anyway; double disposal is harmless.
func (m *Manager) Dispose(ctxs []Context) {
	for _, ctx := range ctxs {
		if ctx == nil {
			continue
		}
		m.mu.Lock()
		delete(m.live, ctx)
		m.mu.Unlock()

		if err := ctx.Close(); err != nil && m.logger != nil {
			m.logger.Debug("security context close failed", "error", err)
		}
	}
}

// ActiveContexts returns the number of contexts currently owned.
func (m *Manager) ActiveContexts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}
