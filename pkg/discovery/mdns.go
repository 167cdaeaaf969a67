package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL. Zero uses DefaultTTL.
	TTL time.Duration
}

// MDNSAdvertiser advertises the head unit via zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	if config.TTL == 0 {
		config.TTL = DefaultTTL
	}
	return &MDNSAdvertiser{config: config}
}

// getInterfaces returns the network interfaces to use for advertising.
// Returns nil to use all interfaces.
func (a *MDNSAdvertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise starts advertising the head unit. A previous advertisement is
// replaced.
func (a *MDNSAdvertiser) Advertise(info *HeadUnitInfo) error {
	if err := info.Validate(); err != nil {
		return fmt.Errorf("invalid head unit info: %w", err)
	}

	txtStrings := TXTRecordsToStrings(EncodeHeadUnitTXT(info))
	if err := ValidateTXTSize(txtStrings); err != nil {
		return err
	}

	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(
		info.Name,
		ServiceTypeHeadUnit,
		Domain,
		port,
		txtStrings,
		a.getInterfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register head unit service: %w", err)
	}

	a.server = server
	return nil
}

// Update replaces the TXT records of the running advertisement.
func (a *MDNSAdvertiser) Update(info *HeadUnitInfo) error {
	if err := info.Validate(); err != nil {
		return fmt.Errorf("invalid head unit info: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotAdvertising
	}
	a.server.SetText(TXTRecordsToStrings(EncodeHeadUnitTXT(info)))
	return nil
}

// Stop stops advertising. Idempotent.
func (a *MDNSAdvertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// MDNSBrowser searches the local network for head units.
type MDNSBrowser struct {
	config BrowserConfig
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	return &MDNSBrowser{config: config}
}

// Browse searches for head units until ctx is cancelled. Services are
// aggregated by instance name; addresses seen on multiple interfaces are
// merged into one entry, which is emitted once.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *HeadUnitService, error) {
	out := make(chan *HeadUnitService)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)

		services := make(map[string]*HeadUnitService)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToHeadUnit(entry)
				if svc == nil {
					continue
				}
				if existing, found := services[svc.InstanceName]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.InstanceName] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				delete(services, entry.Instance)

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceTypeHeadUnit, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// FindFirst returns the first head unit discovered, or an error on timeout.
func (b *MDNSBrowser) FindFirst(ctx context.Context, timeout time.Duration) (*HeadUnitService, error) {
	if timeout == 0 {
		timeout = BrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	select {
	case svc, ok := <-found:
		if !ok {
			return nil, ctx.Err()
		}
		return svc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		if iface, err := net.InterfaceByName(b.config.Interface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// entryToHeadUnit converts a service entry, dropping entries whose TXT
// records do not decode.
func entryToHeadUnit(entry *zeroconf.ServiceEntry) *HeadUnitService {
	info, err := DecodeHeadUnitTXT(ParseTXTStrings(entry.Text))
	if err != nil {
		return nil
	}

	svc := &HeadUnitService{
		InstanceName:    entry.Instance,
		Host:            entry.HostName,
		Port:            uint16(entry.Port),
		Name:            info.Name,
		Make:            info.Make,
		Model:           info.Model,
		ProtocolVersion: info.ProtocolVersion,
		Secure:          info.Secure,
	}
	for _, ip := range entry.AddrIPv4 {
		svc.Addresses = append(svc.Addresses, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		svc.Addresses = append(svc.Addresses, ip.String())
	}
	return svc
}

// mergeAddresses combines address lists without duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		seen[a] = struct{}{}
	}
	for _, a := range added {
		if _, ok := seen[a]; !ok {
			existing = append(existing, a)
		}
	}
	return existing
}
