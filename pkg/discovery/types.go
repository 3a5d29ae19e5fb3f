package discovery

import (
	"errors"
	"fmt"
)

// Service type constants for mDNS.
const (
	// ServiceTypeUDP is advertised by servers speaking SMP over UDP.
	ServiceTypeUDP = "_mcumgr._udp"

	// ServiceTypeTCP is advertised by servers speaking SMP over TCP.
	ServiceTypeTCP = "_mcumgr._tcp"

	// Domain is the mDNS domain.
	Domain = "local"
)

// TXT record key constants.
const (
	TXTKeyVersion  = "ver"
	TXTKeyBufSize  = "bs"
	TXTKeyBufCount = "bc"
	TXTKeyMTU      = "mtu"
)

// MaxInstanceNameLen is the DNS label limit for instance names.
const MaxInstanceNameLen = 63

// Errors returned by discovery operations.
var (
	ErrInvalidNetwork      = errors.New("network must be udp or tcp")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
)

// Network selects which of the two SMP service types is meant.
type Network string

const (
	NetworkUDP Network = "udp"
	NetworkTCP Network = "tcp"
)

// ServiceType returns the DNS-SD service type for n.
func (n Network) ServiceType() (string, error) {
	switch n {
	case NetworkUDP:
		return ServiceTypeUDP, nil
	case NetworkTCP:
		return ServiceTypeTCP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidNetwork, string(n))
	}
}

// ServiceInfo is what a server publishes about one transport.
type ServiceInfo struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Port the transport listens on.
	Port uint16

	// Version is the SMP header version the server speaks.
	Version uint8

	// BufSize and BufCount describe the server's packet pool.
	BufSize  int
	BufCount int

	// MTU is the largest datagram the server accepts. Zero for stream
	// services.
	MTU int
}

// Service is an SMP server found by a Browser.
type Service struct {
	Network      Network
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	Info         ServiceInfo
}
