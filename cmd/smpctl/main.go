// Command smpctl sends Simple Management Protocol requests to a server.
//
// Usage:
//
//	smpctl [flags] <command> [args]
//
// Flags:
//
//	-addr string          Server address (default "127.0.0.1:1337")
//	-net string           Transport: udp, tcp or loopback (default "udp")
//	-find string          Resolve the server by mDNS instance name instead of -addr
//	-timeout duration     Request timeout (default 5s)
//	-mtu int              Fragment size for the loopback transport (default 0, whole packets)
//	-log-level string     Log level: debug, info, warn, error (default "warn")
//	-protocol-log string  Capture file for protocol events (.smplog)
//
// Commands:
//
//	echo <text>   Ask the server to echo text
//	params        Show the server's buffer parameters
//	raw <hex>     Send a raw SMP packet and print the response
//	discover      List servers advertised over mDNS
//	shell         Start an interactive shell
//
// Examples:
//
//	# Echo over UDP
//	smpctl echo hello
//
//	# Find a server by instance name and read its parameters over TCP
//	smpctl -net tcp -find smpd params
//
//	# Exercise the engine in-process with 16 byte fragments
//	smpctl -net loopback -mtu 16 echo hello
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/smp-protocol/smp-go/pkg/client"
	"github.com/smp-protocol/smp-go/pkg/discovery"
	smplog "github.com/smp-protocol/smp-go/pkg/log"
)

// options holds the command line flags.
type options struct {
	Addr        string
	Network     string
	Find        string
	Timeout     time.Duration
	MTU         int
	LogLevel    string
	ProtocolLog string
}

var opts options

func init() {
	flag.StringVar(&opts.Addr, "addr", "127.0.0.1:1337", "Server address")
	flag.StringVar(&opts.Network, "net", "udp", "Transport: udp, tcp or loopback")
	flag.StringVar(&opts.Find, "find", "", "Resolve the server by mDNS instance name instead of -addr")
	flag.DurationVar(&opts.Timeout, "timeout", client.DefaultTimeout, "Request timeout")
	flag.IntVar(&opts.MTU, "mtu", 0, "Fragment size for the loopback transport (0 sends whole packets)")
	flag.StringVar(&opts.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flag.StringVar(&opts.ProtocolLog, "protocol-log", "", "Capture file for protocol events (.smplog)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `smpctl - SMP client

Usage:
  smpctl [flags] <command> [args]

Commands:
  echo <text>   Ask the server to echo text
  params        Show the server's buffer parameters
  raw <hex>     Send a raw SMP packet and print the response
  discover      List servers advertised over mDNS
  shell         Start an interactive shell

Flags:
`)
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := setupLogging(opts.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smpctl: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := newSessionFromOptions(opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smpctl: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	if strings.ToLower(flag.Arg(0)) == "shell" {
		if err := runShell(ctx, s); err != nil {
			fmt.Fprintf(os.Stderr, "smpctl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := s.exec(ctx, flag.Args()); err != nil {
		s.Close()
		fmt.Fprintf(os.Stderr, "smpctl: %v\n", err)
		os.Exit(1)
	}
}

// newSessionFromOptions wires the browser, the protocol capture and the
// dialer selected by o.
func newSessionFromOptions(o options, logger *slog.Logger) (*session, error) {
	browser, err := discovery.NewMDNSBrowser(discovery.BrowserConfig{
		BrowseTimeout: o.Timeout,
	})
	if err != nil {
		return nil, err
	}

	var capture *smplog.FileLogger
	if o.ProtocolLog != "" {
		capture, err = smplog.NewFileLogger(o.ProtocolLog)
		if err != nil {
			return nil, fmt.Errorf("protocol log: %w", err)
		}
	}

	d := &dialer{
		network: o.Network,
		addr:    o.Addr,
		find:    o.Find,
		mtu:     o.MTU,
		browser: browser,
		capture: capture,
		log:     logger,
	}

	s := newSession(os.Stdout, d.dial, browser, o.Timeout)
	s.onClose = func() {
		if capture != nil {
			_ = capture.Close()
		}
	}
	return s, nil
}

func setupLogging(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger, nil
}
