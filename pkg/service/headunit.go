package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/carlink-protocol/carlink-go/pkg/connection"
	"github.com/carlink-protocol/carlink-go/pkg/log"
	"github.com/carlink-protocol/carlink-go/pkg/registry"
	"github.com/carlink-protocol/carlink-go/pkg/security"
	"github.com/carlink-protocol/carlink-go/pkg/transport"
	"github.com/carlink-protocol/carlink-go/pkg/wire"
)

// Callbacks notify the application layer of lifecycle transitions. All
// fields are optional. Callbacks run on transport read goroutines and must
// not block.
type Callbacks struct {
	OnDeviceConnected    func(device connection.DeviceHandle, handle connection.Handle)
	OnDeviceDisconnected func(device connection.DeviceHandle, handle connection.Handle, reason registry.Reason)
	OnSessionStarted     func(handle connection.Handle, session connection.SessionID)
	OnSessionEnded       func(handle connection.Handle, session connection.SessionID)
	OnServiceStarted     func(handle connection.Handle, session connection.SessionID, serviceType wire.ServiceType)
	OnServiceEnded       func(handle connection.Handle, session connection.SessionID, serviceType wire.ServiceType)
}

// Config configures a HeadUnit.
type Config struct {
	// HeartbeatTimeout applies to every accepted connection. Zero disables
	// heartbeat monitoring.
	HeartbeatTimeout time.Duration

	// Callbacks is the application notification surface.
	Callbacks Callbacks

	// EventLogger is the protocol event sink. Nil disables capture.
	EventLogger log.Logger

	// Logger is the operational log. Nil discards.
	Logger *slog.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.HeartbeatTimeout < 0 {
		return fmt.Errorf("heartbeat timeout must not be negative")
	}
	return nil
}

// link is the transport-side state of one accepted connection.
type link struct {
	sender transport.Sender
	device connection.DeviceHandle
	connID string
	remote string
}

// HeadUnit is the session-control layer of the middleware. It implements
// transport.Events, owns the connection registry and the security manager,
// and answers control frames.
type HeadUnit struct {
	config   Config
	logger   *slog.Logger
	events   log.Logger
	registry *registry.Registry
	security *security.Manager
	adapters []transport.Adapter

	mu    sync.Mutex
	links map[connection.Handle]*link
}

// New creates a HeadUnit.
func New(cfg Config) (*HeadUnit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid head unit config: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	events := cfg.EventLogger
	if events == nil {
		events = log.NoopLogger{}
	}

	hu := &HeadUnit{
		config:   cfg,
		logger:   logger,
		events:   events,
		security: security.NewManager(logger),
		links:    make(map[connection.Handle]*link),
	}
	hu.registry = registry.New(registry.Config{
		Dispose: hu.security.Dispose,
		Logger:  events,
	})
	// The observer covers every destruction path, heartbeat expiry
	// included: the transport link dies with the connection.
	hu.registry.AddObserver(hu.onDestroyed)
	return hu, nil
}

// Registry exposes the connection registry for diagnostics and tooling.
func (h *HeadUnit) Registry() *registry.Registry {
	return h.registry
}

// Security exposes the security manager so handshake drivers can bind
// contexts through it.
func (h *HeadUnit) Security() *security.Manager {
	return h.security
}

// AddAdapter attaches a transport adapter for Start and Stop to manage.
// Adapters are constructed with the HeadUnit as their events sink, then
// attached here. Call before Start.
func (h *HeadUnit) AddAdapter(a transport.Adapter) {
	h.adapters = append(h.adapters, a)
}

// Start launches the attached transport adapters.
func (h *HeadUnit) Start(ctx context.Context) error {
	for _, a := range h.adapters {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s adapter: %w", a.Name(), err)
		}
		h.logger.Info("adapter started", "adapter", a.Name())
	}
	return nil
}

// Stop shuts the adapters down and destroys every live connection.
func (h *HeadUnit) Stop() error {
	var firstErr error
	for _, a := range h.adapters {
		if err := a.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	h.registry.CloseAll()
	return firstErr
}

// OnPhysicalConnect registers a new physical link with the connection core.
func (h *HeadUnit) OnPhysicalConnect(device connection.DeviceHandle, connID, remoteAddr string, sender transport.Sender) (connection.Handle, error) {
	handle, err := h.registry.CreateConnection(device, h.config.HeartbeatTimeout, connID)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	h.links[handle] = &link{sender: sender, device: device, connID: connID, remote: remoteAddr}
	h.mu.Unlock()

	h.logger.Info("device connected",
		"handle", int32(handle), "device", int32(device), "remote", remoteAddr)
	if cb := h.config.Callbacks.OnDeviceConnected; cb != nil {
		cb(device, handle)
	}
	return handle, nil
}

// OnPhysicalDisconnect destroys the connection behind a dead link. A handle
// already destroyed by heartbeat expiry is a benign no-op.
func (h *HeadUnit) OnPhysicalDisconnect(handle connection.Handle) {
	_ = h.registry.DestroyConnection(handle)
}

// OnInboundFrame decodes and dispatches one control frame. Any inbound
// frame counts as heartbeat activity, malformed ones included.
func (h *HeadUnit) OnInboundFrame(handle connection.Handle, frame []byte) {
	h.registry.KeepAlive(handle)

	msg, err := wire.DecodeControlMessage(frame)
	if err != nil {
		h.logError(handle, err, "decode control frame")
		return
	}
	h.dispatch(handle, msg)
}

func (h *HeadUnit) dispatch(handle connection.Handle, msg *wire.ControlMessage) {
	conn, ok := h.registry.GetConnection(handle)
	if !ok {
		// Frame raced connection teardown; nothing to answer on.
		return
	}

	switch msg.Type {
	case wire.ControlStartSession:
		h.startSession(handle, conn)

	case wire.ControlEndSession:
		h.endSession(handle, conn, msg.SessionID)

	case wire.ControlStartService:
		h.startService(handle, conn, msg.SessionID, msg.ServiceType)

	case wire.ControlEndService:
		h.endService(handle, conn, msg.SessionID, msg.ServiceType)

	case wire.ControlPing:
		h.send(handle, &wire.ControlMessage{Type: wire.ControlPong, Sequence: msg.Sequence})

	case wire.ControlPong:
		// Activity already recorded; nothing else to do.

	case wire.ControlClose:
		_ = h.registry.DestroyConnection(handle)

	default:
		h.logError(handle, fmt.Errorf("unexpected control type %s", msg.Type), "dispatch")
	}
}

func (h *HeadUnit) startSession(handle connection.Handle, conn *connection.Connection) {
	id, err := conn.AddNewSession()
	if err != nil {
		h.send(handle, &wire.ControlMessage{
			Type:   wire.ControlStartSessionNack,
			Status: statusFromError(err),
		})
		return
	}
	h.send(handle, &wire.ControlMessage{
		Type:      wire.ControlStartSessionAck,
		SessionID: id,
		Status:    wire.StatusSuccess,
	})
	if cb := h.config.Callbacks.OnSessionStarted; cb != nil {
		cb(handle, id)
	}
}

func (h *HeadUnit) endSession(handle connection.Handle, conn *connection.Connection, id connection.SessionID) {
	released, err := conn.RemoveSession(id)
	if err != nil {
		h.logError(handle, err, "end session")
		return
	}
	h.security.Dispose(released)
	if cb := h.config.Callbacks.OnSessionEnded; cb != nil {
		cb(handle, id)
	}
}

func (h *HeadUnit) startService(handle connection.Handle, conn *connection.Connection, id connection.SessionID, st wire.ServiceType) {
	if err := conn.AddNewService(id, st); err != nil {
		h.send(handle, &wire.ControlMessage{
			Type:        wire.ControlStartServiceNack,
			SessionID:   id,
			ServiceType: st,
			Status:      statusFromError(err),
		})
		return
	}
	h.send(handle, &wire.ControlMessage{
		Type:        wire.ControlStartServiceAck,
		SessionID:   id,
		ServiceType: st,
		Status:      wire.StatusSuccess,
	})
	if cb := h.config.Callbacks.OnServiceStarted; cb != nil {
		cb(handle, id, st)
	}
}

func (h *HeadUnit) endService(handle connection.Handle, conn *connection.Connection, id connection.SessionID, st wire.ServiceType) {
	released, err := conn.RemoveService(id, st)
	if err != nil {
		h.logError(handle, err, "end service")
		return
	}
	h.security.Dispose(released)
	if cb := h.config.Callbacks.OnServiceEnded; cb != nil {
		cb(handle, id, st)
	}
	// Ending the control service ends the session with it.
	if st.IsPrimary() {
		if cb := h.config.Callbacks.OnSessionEnded; cb != nil {
			cb(handle, id)
		}
	}
}

// send encodes and transmits a control frame on the connection's link.
func (h *HeadUnit) send(handle connection.Handle, msg *wire.ControlMessage) {
	h.mu.Lock()
	l := h.links[handle]
	h.mu.Unlock()
	if l == nil {
		return
	}

	data, err := wire.EncodeControlMessage(msg)
	if err != nil {
		h.logError(handle, err, "encode control frame")
		return
	}
	if err := l.sender.Send(data); err != nil {
		h.logger.Debug("send failed",
			"handle", int32(handle), "type", msg.Type.String(), "error", err)
	}
}

// onDestroyed is the registry observer: release the transport link and
// notify the application.
func (h *HeadUnit) onDestroyed(handle connection.Handle, device connection.DeviceHandle, reason registry.Reason) {
	h.mu.Lock()
	l := h.links[handle]
	delete(h.links, handle)
	h.mu.Unlock()

	if l != nil {
		_ = l.sender.Close()
	}
	h.logger.Info("device disconnected",
		"handle", int32(handle), "device", int32(device), "reason", reason.String())
	if cb := h.config.Callbacks.OnDeviceDisconnected; cb != nil {
		cb(device, handle, reason)
	}
}

func (h *HeadUnit) logError(handle connection.Handle, err error, context string) {
	h.logger.Debug(context+" failed", "handle", int32(handle), "error", err)

	h.mu.Lock()
	l := h.links[handle]
	h.mu.Unlock()
	connID := ""
	if l != nil {
		connID = l.connID
	}
	h.events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Handle:       int32(handle),
		Category:     log.CategoryError,
		Error: &log.ErrorEvent{
			Message: err.Error(),
			Context: context,
		},
	})
}

// Compile-time interface satisfaction check.
var _ transport.Events = (*HeadUnit)(nil)
