package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/carlink-protocol/carlink-go/pkg/connection"
)

// TCPConfig configures a TCPAdapter.
type TCPConfig struct {
	// Address is the listen address, e.g. ":12345".
	Address string

	// TLSConfig secures accepted links. Nil accepts plaintext TCP, which
	// is only acceptable for tests and closed bench setups.
	TLSConfig *tls.Config

	// MaxMessageSize bounds inbound frames. Zero uses DefaultMaxMessageSize.
	MaxMessageSize uint32

	// ResolveDevice maps a peer address to a device handle. Nil uses a
	// stable hash of the peer host, so reconnects from the same head of a
	// device land on the same handle.
	ResolveDevice func(remoteAddr string) connection.DeviceHandle

	// Logger is the operational log. Nil discards.
	Logger *slog.Logger
}

// Validate checks the configuration.
func (c *TCPConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	return nil
}

// TCPAdapter accepts TCP or TLS links and pumps their frames into an Events
// sink. One read goroutine is spawned per accepted link; a failure in one
// link never affects the others or the accept loop.
type TCPAdapter struct {
	config  TCPConfig
	events  Events
	logger  *slog.Logger
	tracker *connTracker

	mu       sync.Mutex
	listener net.Listener
	running  bool

	wg sync.WaitGroup
}

// NewTCPAdapter creates a TCP adapter delivering into events.
func NewTCPAdapter(cfg TCPConfig, events Events) (*TCPAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid TCP config: %w", err)
	}
	if events == nil {
		return nil, fmt.Errorf("events sink is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	return &TCPAdapter{
		config:  cfg,
		events:  events,
		logger:  logger,
		tracker: newConnTracker(),
	}, nil
}

// Name identifies the adapter in logs.
func (a *TCPAdapter) Name() string {
	if a.config.TLSConfig != nil {
		return "tcp+tls"
	}
	return "tcp"
}

// Start opens the listener and begins accepting links.
func (a *TCPAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("adapter already running")
	}

	var (
		ln  net.Listener
		err error
	)
	if a.config.TLSConfig != nil {
		ln, err = tls.Listen("tcp", a.config.Address, a.config.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", a.config.Address)
	}
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", a.config.Address, err)
	}
	a.listener = ln
	a.running = true
	a.mu.Unlock()

	a.logger.Info("transport listening",
		"adapter", a.Name(),
		"address", ln.Addr().String())

	a.wg.Add(1)
	go a.acceptLoop(ctx, ln)

	if ctx != nil {
		go func() {
			<-ctx.Done()
			_ = a.Stop()
		}()
	}
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (a *TCPAdapter) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Stop closes the listener and every open link, then waits for the read
// goroutines to drain. Idempotent.
func (a *TCPAdapter) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	ln := a.listener
	a.listener = nil
	a.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	a.tracker.CloseAll()
	a.wg.Wait()

	a.logger.Info("transport stopped", "adapter", a.Name())
	return nil
}

func (a *TCPAdapter) acceptLoop(ctx context.Context, ln net.Listener) {
	defer a.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if ctx != nil && ctx.Err() != nil {
				return
			}
			a.logger.Warn("accept failed", "error", err)
			continue
		}

		if !a.tracker.Add(conn) {
			_ = conn.Close()
			return
		}

		// One goroutine per link, spawned fresh per accept. A panic or
		// slow peer on one link cannot stall the accept loop.
		a.wg.Add(1)
		go a.handleConn(conn)
	}
}

func (a *TCPAdapter) handleConn(conn net.Conn) {
	defer a.wg.Done()
	defer a.tracker.Remove(conn)
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	connID := uuid.New().String()

	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			a.logger.Warn("TLS handshake failed",
				"conn_id", connID, "remote", remoteAddr, "error", err)
			return
		}
		if err := VerifyConnection(tlsConn.ConnectionState()); err != nil {
			a.logger.Warn("TLS verification failed",
				"conn_id", connID, "remote", remoteAddr, "error", err)
			return
		}
	}

	device := a.deviceForAddr(remoteAddr)
	framer := NewFramerWithMaxSize(conn, a.config.MaxMessageSize)
	sender := &tcpSender{framer: framer, conn: conn}

	handle, err := a.events.OnPhysicalConnect(device, connID, remoteAddr, sender)
	if err != nil {
		a.logger.Warn("link rejected",
			"conn_id", connID, "remote", remoteAddr, "error", err)
		return
	}
	a.logger.Debug("link accepted",
		"conn_id", connID, "remote", remoteAddr, "handle", int32(handle))

	for {
		frame, err := framer.ReadFrame()
		if err != nil {
			if !isClosedErr(err) {
				a.logger.Debug("read failed",
					"conn_id", connID, "handle", int32(handle), "error", err)
			}
			break
		}
		a.events.OnInboundFrame(handle, frame)
	}

	a.events.OnPhysicalDisconnect(handle)
}

// deviceForAddr derives a stable device handle from the peer host.
func (a *TCPAdapter) deviceForAddr(remoteAddr string) connection.DeviceHandle {
	if a.config.ResolveDevice != nil {
		return a.config.ResolveDevice(remoteAddr)
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	// Keep the handle positive and nonzero.
	return connection.DeviceHandle(h.Sum32()&0x7fffffff | 1)
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, ErrFrameTruncated)
}

// tcpSender sends frames on one accepted link.
type tcpSender struct {
	framer *Framer
	conn   net.Conn
}

func (s *tcpSender) Send(frame []byte) error {
	return s.framer.WriteFrame(frame)
}

func (s *tcpSender) Close() error {
	return s.conn.Close()
}

// Compile-time interface satisfaction checks.
var (
	_ Adapter = (*TCPAdapter)(nil)
	_ Sender  = (*tcpSender)(nil)
)
