package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/smp-protocol/smp-go/pkg/client"
	"github.com/smp-protocol/smp-go/pkg/discovery"
	smplog "github.com/smp-protocol/smp-go/pkg/log"
	"github.com/smp-protocol/smp-go/pkg/transport"
)

// networkLoopback serves requests from an in-process engine.
const networkLoopback = "loopback"

var errNoAddress = errors.New("discovered service has no address")

// dialer connects the session's client on first use.
type dialer struct {
	network string
	addr    string
	find    string
	mtu     int

	browser discovery.Browser
	capture *smplog.FileLogger
	log     *slog.Logger
}

func (d *dialer) logger() smplog.Logger {
	if d.capture == nil {
		return smplog.NoopLogger{}
	}
	return d.capture
}

func (d *dialer) dial(ctx context.Context, opts ...client.Option) (*client.Client, error) {
	if d.network == networkLoopback {
		conn, err := newLoopback(d.mtu, d.logger())
		if err != nil {
			return nil, err
		}
		return client.New(conn, opts...), nil
	}

	addr := d.addr
	if d.find != "" {
		resolved, err := d.resolve(ctx)
		if err != nil {
			return nil, err
		}
		addr = resolved
	}

	d.log.Debug("dialing", "network", d.network, "address", addr)
	conn, err := transport.Dial(ctx, d.network, addr, transport.ClientConfig{Logger: d.logger()})
	if err != nil {
		return nil, err
	}
	return client.New(conn, opts...), nil
}

// resolve finds d.find over mDNS and returns its first address.
func (d *dialer) resolve(ctx context.Context) (string, error) {
	network := discovery.Network(d.network)
	svc, err := d.browser.Find(ctx, network, d.find)
	if err != nil {
		return "", err
	}
	if len(svc.Addresses) == 0 {
		return "", fmt.Errorf("%w: %s", errNoAddress, svc.InstanceName)
	}
	d.log.Debug("resolved service", "instance", svc.InstanceName, "host", svc.Host, "addresses", svc.Addresses)
	return net.JoinHostPort(svc.Addresses[0], strconv.Itoa(int(svc.Port))), nil
}
