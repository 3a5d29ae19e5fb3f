package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// MDNSAdvertiser implements the Advertiser interface using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu      sync.Mutex
	servers map[Network]*zeroconf.Server
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) (*MDNSAdvertiser, error) {
	return &MDNSAdvertiser{
		config:  config,
		servers: make(map[Network]*zeroconf.Server),
	}, nil
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

// Advertise starts advertising an SMP transport.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, network Network, info *ServiceInfo) error {
	serviceType, err := network.ServiceType()
	if err != nil {
		return err
	}
	if err := ValidateInstanceName(info.Instance); err != nil {
		return err
	}
	if info.Port == 0 {
		return fmt.Errorf("%w: port", ErrMissingRequired)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if server, exists := a.servers[network]; exists {
		server.Shutdown()
		delete(a.servers, network)
	}

	txtStrings := TXTRecordsToStrings(EncodeServiceTXT(info))

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.Instance,
		serviceType,
		Domain,
		int(info.Port),
		txtStrings,
		a.getInterfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s service: %w", serviceType, err)
	}

	a.servers[network] = server
	return nil
}

// Update updates TXT records for a running advertisement.
func (a *MDNSAdvertiser) Update(network Network, info *ServiceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[network]
	if !exists {
		return ErrNotFound
	}

	server.SetText(TXTRecordsToStrings(EncodeServiceTXT(info)))
	return nil
}

// Stop stops advertising one transport.
func (a *MDNSAdvertiser) Stop(network Network) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[network]
	if !exists {
		return ErrNotFound
	}

	server.Shutdown()
	delete(a.servers, network)
	return nil
}

// StopAll stops all advertisements.
func (a *MDNSAdvertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for network, server := range a.servers {
		server.Shutdown()
		delete(a.servers, network)
	}
}

// MDNSBrowser implements the Browser interface using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) (*MDNSBrowser, error) {
	return &MDNSBrowser{
		config: config,
	}, nil
}

// Browse searches for SMP servers on one transport.
// Services are aggregated by instance name - addresses from multiple interfaces
// are combined into a single entry. Removals are handled when interfaces disappear.
func (b *MDNSBrowser) Browse(ctx context.Context, network Network) (<-chan *Service, error) {
	serviceType, err := network.ServiceType()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		aggregate(ctx, network, entries, removed, out)
	}()

	go func() {
		_ = zeroconf.Browse(ctx, serviceType, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// Find returns the first server advertising the given instance name.
func (b *MDNSBrowser) Find(ctx context.Context, network Network, instance string) (*Service, error) {
	if _, ok := ctx.Deadline(); !ok && b.config.BrowseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found, err := b.Browse(ctx, network)
	if err != nil {
		return nil, err
	}
	for svc := range found {
		if svc.InstanceName == instance {
			return svc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, instance)
}

// Stop stops all active browsing operations.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

// aggregate merges zeroconf entries per instance and emits each instance
// once on out.
func aggregate(ctx context.Context, network Network, entries, removed <-chan *zeroconf.ServiceEntry, out chan<- *Service) {
	services := make(map[string]*Service)

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			svc, err := newService(network, entry.Instance, entry.HostName, entry.Port,
				entryAddresses(entry), entry.Text)
			if err != nil {
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
				removed = nil
				continue
			}
			if existing, found := services[entry.Instance]; found {
				existing.Addresses = removeAddresses(existing.Addresses, entryAddresses(entry))
				if len(existing.Addresses) == 0 {
					delete(services, entry.Instance)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

// newService builds a Service from the parts of a DNS-SD entry.
func newService(network Network, instance, host string, port int, addrs, text []string) (*Service, error) {
	info, err := DecodeServiceTXT(StringsToTXTRecords(text))
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 0xffff {
		return nil, fmt.Errorf("%w: port %d", ErrInvalidTXTRecord, port)
	}
	info.Instance = instance
	info.Port = uint16(port)

	return &Service{
		Network:      network,
		InstanceName: instance,
		Host:         host,
		Port:         uint16(port),
		Addresses:    addrs,
		Info:         *info,
	}, nil
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops every address in gone from addresses.
func removeAddresses(addresses, gone []string) []string {
	toRemove := make(map[string]bool, len(gone))
	for _, addr := range gone {
		toRemove[addr] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}

// Ensure MDNSAdvertiser implements Advertiser interface.
var _ Advertiser = (*MDNSAdvertiser)(nil)

// Ensure MDNSBrowser implements Browser interface.
var _ Browser = (*MDNSBrowser)(nil)
