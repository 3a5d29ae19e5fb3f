package main

import (
	"context"

	smplog "github.com/smp-protocol/smp-go/pkg/log"
	"github.com/smp-protocol/smp-go/pkg/mgmt"
	"github.com/smp-protocol/smp-go/pkg/mgmt/osmgmt"
	"github.com/smp-protocol/smp-go/pkg/netbuf"
	"github.com/smp-protocol/smp-go/pkg/smp"
	"github.com/smp-protocol/smp-go/pkg/transport"
)

// loopbackBufCount is the buffer pool size of the in-process server.
const loopbackBufCount = 8

// loopbackConn is a Dummy transport that owns its scheduler.
type loopbackConn struct {
	*transport.Dummy
	sched *smp.Scheduler
}

// newLoopback starts an in-process engine serving the OS group and returns
// a connection to it. Requests are split into mtu-sized fragments.
func newLoopback(mtu int, logger smplog.Logger) (*loopbackConn, error) {
	pool, err := netbuf.NewPool(loopbackBufCount, netbuf.DefaultSize, netbuf.DefaultUserDataSize)
	if err != nil {
		return nil, err
	}
	reg := mgmt.NewRegistry()
	if err := reg.Register(osmgmt.New(pool)); err != nil {
		return nil, err
	}

	engine, err := smp.NewEngine(pool, reg,
		smp.WithVerboseErrors(true),
		smp.WithProtocolLogger(logger))
	if err != nil {
		return nil, err
	}
	sched := smp.NewScheduler(engine)
	if err := sched.Start(context.Background()); err != nil {
		return nil, err
	}

	d, err := transport.NewDummy(sched, transport.DummyConfig{MTU: mtu, Logger: logger})
	if err != nil {
		sched.Stop()
		return nil, err
	}
	return &loopbackConn{Dummy: d, sched: sched}, nil
}

// Close closes the transport and stops the engine.
func (c *loopbackConn) Close() error {
	err := c.Dummy.Close()
	c.sched.Stop()
	return err
}
