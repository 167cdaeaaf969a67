package transport

import (
	"context"

	"github.com/carlink-protocol/carlink-go/pkg/connection"
)

// Sender transmits frames back to one peer. Implementations are safe for
// concurrent use; the session-control layer holds one per live connection.
type Sender interface {
	// Send writes one frame to the peer.
	Send(frame []byte) error

	// Close tears down the underlying link. Idempotent.
	Close() error
}

// Events is the upward contract of a transport adapter. The session-control
// layer implements it; adapters call it from their read goroutines.
//
// The adapter reports raw physical facts only. Session and service state,
// heartbeat accounting and security bindings all live above this boundary.
type Events interface {
	// OnPhysicalConnect reports a new physical link. The returned handle
	// identifies the connection in subsequent calls. An error rejects the
	// link; the adapter closes it without further events.
	OnPhysicalConnect(device connection.DeviceHandle, connID, remoteAddr string, sender Sender) (connection.Handle, error)

	// OnPhysicalDisconnect reports that the link is gone. Called exactly
	// once per accepted link, after the last OnInboundFrame for it.
	OnPhysicalDisconnect(handle connection.Handle)

	// OnInboundFrame delivers one frame read from the link. The buffer is
	// owned by the callee.
	OnInboundFrame(handle connection.Handle, frame []byte)
}

// Adapter is one physical transport driver (TCP/TLS for Wi-Fi links; other
// bearers plug in behind the same contract).
type Adapter interface {
	// Name identifies the adapter in logs.
	Name() string

	// Start begins accepting links and delivering events until ctx is
	// cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop closes the listener and all open links, then waits for the
	// read goroutines to drain. Idempotent.
	Stop() error
}
