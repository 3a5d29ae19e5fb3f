package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smp-protocol/smp-go/pkg/config"
	"github.com/smp-protocol/smp-go/pkg/discovery"
	smplog "github.com/smp-protocol/smp-go/pkg/log"
	"github.com/smp-protocol/smp-go/pkg/mgmt"
	"github.com/smp-protocol/smp-go/pkg/mgmt/osmgmt"
	"github.com/smp-protocol/smp-go/pkg/netbuf"
	"github.com/smp-protocol/smp-go/pkg/smp"
	"github.com/smp-protocol/smp-go/pkg/transport"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// daemon owns every component smpd runs.
type daemon struct {
	cfg *config.Config
	log *slog.Logger

	pool    *netbuf.Pool
	sched   *smp.Scheduler
	capture *smplog.FileLogger
	proto   smplog.Logger

	udp        *transport.UDPServer
	tcp        *transport.StreamServer
	advertiser *discovery.MDNSAdvertiser

	registry    *prometheus.Registry
	metrics     *http.Server
	metricsAddr net.Addr
}

func newDaemon(cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, log: logger}

	pool, err := netbuf.NewPool(cfg.Buffers.Count, cfg.Buffers.Size, cfg.Buffers.UserDataSize)
	if err != nil {
		return nil, err
	}
	d.pool = pool

	reg := mgmt.NewRegistry()
	if err := reg.Register(osmgmt.New(pool)); err != nil {
		return nil, err
	}

	loggers := []smplog.Logger{}
	if cfg.Log.ProtocolLog != "" {
		d.capture, err = smplog.NewFileLogger(cfg.Log.ProtocolLog)
		if err != nil {
			return nil, fmt.Errorf("protocol log: %w", err)
		}
		loggers = append(loggers, d.capture)
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, smplog.NewSlogAdapter(logger))
	}
	d.proto = smplog.NewMultiLogger(loggers...)

	opts := []smp.Option{
		smp.WithVerboseErrors(cfg.SMP.VerboseErrors),
		smp.WithMaxEntries(cfg.SMP.MaxMapEntries),
		smp.WithLogger(logger),
		smp.WithProtocolLogger(d.proto),
		smp.WithCallbacks(d.callbacks()),
	}
	if cfg.Metrics.Enabled {
		d.registry = prometheus.NewRegistry()
		opts = append(opts, smp.WithMetrics(smp.NewMetrics(d.registry)))
	}

	engine, err := smp.NewEngine(pool, reg, opts...)
	if err != nil {
		d.closeCapture()
		return nil, err
	}
	d.sched = smp.NewScheduler(engine, smp.WithSchedulerLogger(logger))
	return d, nil
}

// callbacks logs every finished command at debug level.
func (d *daemon) callbacks() *mgmt.Callbacks {
	cb := mgmt.NewCallbacks()
	cb.Register(&mgmt.Callback{
		Events: mgmt.EventCmdDone,
		Fn: func(_ mgmt.Event, arg mgmt.CmdArg) mgmt.CallbackResult {
			d.log.Debug("command done",
				"group", arg.Group.String(),
				"id", arg.ID,
				"op", arg.Op.String(),
				"rc", arg.Err.String())
			return mgmt.CallbackOK
		},
	})
	return cb
}

// Start brings up the scheduler, transports, discovery and metrics.
func (d *daemon) Start(ctx context.Context) error {
	if err := d.sched.Start(ctx); err != nil {
		return err
	}

	if d.cfg.UDP.Enabled {
		srv, err := transport.NewUDPServer(d.sched, transport.UDPConfig{
			Address: d.cfg.UDP.Address,
			MTU:     d.cfg.UDP.MTU,
			Logger:  d.proto,
			Log:     d.log,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("udp: %w", err)
		}
		d.udp = srv
		d.log.Info("udp transport listening", "address", srv.Addr().String(), "mtu", d.cfg.UDP.MTU)
	}

	if d.cfg.TCP.Enabled {
		srv, err := transport.NewStreamServer(d.sched, transport.StreamConfig{
			Address:   d.cfg.TCP.Address,
			ReadChunk: d.cfg.TCP.ReadChunk,
			Logger:    d.proto,
			Log:       d.log,
			OnConnect: func(c *transport.ServerConn) {
				d.log.Info("client connected", "conn", c.ConnID().String(), "remote", c.RemoteAddr().String())
			},
			OnDisconnect: func(c *transport.ServerConn) {
				d.log.Info("client disconnected", "conn", c.ConnID().String())
			},
		})
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("tcp: %w", err)
		}
		d.tcp = srv
		d.log.Info("tcp transport listening", "address", srv.Addr().String())
	}

	if d.cfg.Discovery.Enabled {
		if err := d.advertise(ctx); err != nil {
			return err
		}
	}

	if d.cfg.Metrics.Enabled {
		if err := d.serveMetrics(); err != nil {
			return err
		}
	}

	d.log.Info("smpd started",
		"buf_size", d.pool.BufSize(),
		"buf_count", d.pool.Count(),
		"verbose_errors", d.cfg.SMP.VerboseErrors)
	return nil
}

// advertise publishes an mDNS record for each running transport.
func (d *daemon) advertise(ctx context.Context) error {
	adv, err := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
		Interface: d.cfg.Discovery.Interface,
		TTL:       d.cfg.Discovery.TTL,
	})
	if err != nil {
		return err
	}
	d.advertiser = adv

	info := discovery.ServiceInfo{
		Instance: d.cfg.Discovery.Instance,
		Version:  wire.Version2,
		BufSize:  d.pool.BufSize(),
		BufCount: d.pool.Count(),
	}

	if d.udp != nil {
		udpInfo := info
		udpInfo.Port = portOf(d.udp.Addr())
		udpInfo.MTU = d.cfg.UDP.MTU
		if err := adv.Advertise(ctx, discovery.NetworkUDP, &udpInfo); err != nil {
			return err
		}
	}
	if d.tcp != nil {
		tcpInfo := info
		tcpInfo.Port = portOf(d.tcp.Addr())
		if err := adv.Advertise(ctx, discovery.NetworkTCP, &tcpInfo); err != nil {
			return err
		}
	}
	d.log.Info("mdns advertisement active", "instance", info.Instance)
	return nil
}

func (d *daemon) serveMetrics() error {
	ln, err := net.Listen("tcp", d.cfg.Metrics.Address)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	d.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	d.metricsAddr = ln.Addr()

	go func() {
		if err := d.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("metrics server failed", "error", err)
		}
	}()
	d.log.Info("metrics listening", "address", ln.Addr().String())
	return nil
}

// Stop tears everything down in reverse order. It is safe after a
// partial Start.
func (d *daemon) Stop() {
	if d.advertiser != nil {
		d.advertiser.StopAll()
	}
	if d.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = d.metrics.Shutdown(ctx)
		cancel()
	}
	if d.tcp != nil {
		if err := d.tcp.Stop(); err != nil {
			d.log.Warn("tcp stop", "error", err)
		}
	}
	if d.udp != nil {
		if err := d.udp.Stop(); err != nil {
			d.log.Warn("udp stop", "error", err)
		}
	}
	d.sched.Stop()
	d.closeCapture()
}

func (d *daemon) closeCapture() {
	if d.capture == nil {
		return
	}
	written, dropped := d.capture.Counts()
	if err := d.capture.Close(); err != nil {
		d.log.Warn("protocol log close", "error", err)
	}
	d.log.Info("protocol log closed", "events", written, "dropped", dropped)
	d.capture = nil
}

func portOf(addr net.Addr) uint16 {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return uint16(a.Port)
	case *net.TCPAddr:
		return uint16(a.Port)
	default:
		return 0
	}
}
