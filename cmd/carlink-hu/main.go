// Command carlink-hu runs the head-unit middleware daemon.
//
// It listens for device links over TCP/TLS, multiplexes sessions and
// services per connection, enforces heartbeat liveness, and advertises the
// head unit on the local network over mDNS.
//
// Usage:
//
//	carlink-hu [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-name string       Head-unit name, overrides the config file
//	-addr string       Listen address, overrides the config file
//	-log-level string  Log level: debug, info, warn, error
//
// Examples:
//
//	# Start with a config file
//	carlink-hu -config /etc/carlink/hu.yaml
//
//	# Start a plaintext bench instance
//	carlink-hu -name Bench-HU -addr :9300 -log-level debug
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlink-protocol/carlink-go/pkg/config"
	"github.com/carlink-protocol/carlink-go/pkg/discovery"
	"github.com/carlink-protocol/carlink-go/pkg/log"
	"github.com/carlink-protocol/carlink-go/pkg/service"
	"github.com/carlink-protocol/carlink-go/pkg/transport"
)

var (
	configFile = flag.String("config", "", "Configuration file path (YAML)")
	name       = flag.String("name", "", "Head-unit name, overrides the config file")
	addr       = flag.String("addr", "", "Listen address, overrides the config file")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "carlink-hu: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging.Level)
	if err := run(cfg, logger); err != nil {
		logger.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if *configFile != "" {
		loaded, err := config.LoadAndValidate(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default("CarLink-HU")
	}

	// Flags override the file.
	if *name != "" {
		cfg.HeadUnit.Name = *name
	}
	if *addr != "" {
		cfg.Transport.Address = *addr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventLogger, closeEvents, err := newEventLogger(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	tlsConfig, err := newTLSConfig(&cfg.Transport.TLS)
	if err != nil {
		return err
	}
	if tlsConfig == nil {
		logger.Warn("TLS not configured, accepting plaintext links")
	}

	hu, err := service.New(service.Config{
		HeartbeatTimeout: cfg.Sessions.HeartbeatTimeout,
		EventLogger:      eventLogger,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	adapter, err := transport.NewTCPAdapter(transport.TCPConfig{
		Address:        cfg.Transport.Address,
		TLSConfig:      tlsConfig,
		MaxMessageSize: cfg.Transport.MaxMessageSize,
		Logger:         logger,
	}, hu)
	if err != nil {
		return err
	}
	hu.AddAdapter(adapter)
	if err := hu.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := hu.Stop(); err != nil {
			logger.Warn("head unit stop failed", "error", err)
		}
	}()

	if cfg.Discovery.Enabled {
		advertiser := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
			Interface: cfg.Discovery.Interface,
			TTL:       cfg.Discovery.TTL,
		})
		port := uint16(transport.DefaultPort)
		if tcpAddr, ok := adapter.Addr().(*net.TCPAddr); ok {
			port = uint16(tcpAddr.Port)
		}
		err := advertiser.Advertise(&discovery.HeadUnitInfo{
			Name:            cfg.HeadUnit.Name,
			Make:            cfg.HeadUnit.Make,
			Model:           cfg.HeadUnit.Model,
			ProtocolVersion: cfg.HeadUnit.ProtocolVersion,
			Secure:          tlsConfig != nil,
			Port:            port,
		})
		if err != nil {
			return fmt.Errorf("failed to start discovery: %w", err)
		}
		defer advertiser.Stop()
		logger.Info("advertising head unit", "name", cfg.HeadUnit.Name)
	}

	logger.Info("head unit running",
		"name", cfg.HeadUnit.Name,
		"address", adapter.Addr().String(),
		"heartbeat_timeout", cfg.Sessions.HeartbeatTimeout)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// newEventLogger builds the protocol event sink: CBOR file capture when
// configured, plus slog mirroring at debug level.
func newEventLogger(cfg *config.Config, logger *slog.Logger) (log.Logger, func(), error) {
	sinks := []log.Logger{log.NewSlogAdapter(logger)}
	closeFn := func() {}

	if cfg.Logging.EventFile != "" {
		fl, err := log.NewFileLogger(cfg.Logging.EventFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open event log: %w", err)
		}
		sinks = append(sinks, fl)
		closeFn = func() {
			if err := fl.Close(); err != nil {
				logger.Warn("event log close failed", "error", err)
			}
		}
	}
	return log.NewMultiLogger(sinks...), closeFn, nil
}

// newTLSConfig builds the server TLS config, or nil when TLS is disabled.
func newTLSConfig(tc *config.TLSConfig) (*tls.Config, error) {
	if !tc.Enabled() {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(tc.CertFile, tc.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	cfg := &transport.TLSConfig{
		Certificate:       cert,
		RequireClientCert: tc.RequireClientCert,
	}
	if tc.ClientCAFile != "" {
		pem, err := os.ReadFile(tc.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", tc.ClientCAFile)
		}
		cfg.ClientCAs = pool
	}
	return transport.NewServerTLSConfig(cfg)
}
