package discovery

import (
	"context"
	"time"
)

// Advertiser provides mDNS service advertising capabilities.
type Advertiser interface {
	// Advertise starts advertising info for one transport. An existing
	// advertisement for the same network is replaced.
	Advertise(ctx context.Context, network Network, info *ServiceInfo) error

	// Update replaces the TXT records of a running advertisement.
	Update(network Network, info *ServiceInfo) error

	// Stop withdraws the advertisement for one transport.
	Stop(network Network) error

	// StopAll stops all advertisements.
	StopAll()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       120 * time.Second,
	}
}

// Browser provides mDNS service browsing capabilities.
type Browser interface {
	// Browse searches for SMP servers on one transport. The channel is
	// closed when ctx is done. Each instance is emitted once; addresses
	// learned later are merged into the already emitted value.
	Browse(ctx context.Context, network Network) (<-chan *Service, error)

	// Find returns the first server with the given instance name.
	Find(ctx context.Context, network Network, instance string) (*Service, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Find when ctx carries no deadline.
	// Default: 5 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: 5 * time.Second,
	}
}
