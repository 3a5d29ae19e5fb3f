// Command smpd serves the Simple Management Protocol over UDP and TCP.
//
// Usage:
//
//	smpd [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-udp string           UDP listen address; "off" disables UDP
//	-tcp string           TCP listen address; "off" disables TCP
//	-protocol-log string  Capture file for protocol events (.smplog)
//
// Examples:
//
//	# Serve UDP on the default port
//	smpd
//
//	# Serve both transports and capture traffic
//	smpd -tcp :1338 -protocol-log /tmp/smpd.smplog -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/smp-protocol/smp-go/pkg/config"
)

// flags holds command line overrides. Empty strings leave the
// configuration file value alone.
type flags struct {
	ConfigFile  string
	LogLevel    string
	UDP         string
	TCP         string
	ProtocolLog string
}

var opts flags

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&opts.UDP, "udp", "", `UDP listen address; "off" disables UDP`)
	flag.StringVar(&opts.TCP, "tcp", "", `TCP listen address; "off" disables TCP`)
	flag.StringVar(&opts.ProtocolLog, "protocol-log", "", "Capture file for protocol events (.smplog)")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smpd: %v\n", err)
		os.Exit(2)
	}

	logger, err := setupLogging(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smpd: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := newDaemon(cfg, logger)
	if err != nil {
		logger.Error("failed to create daemon", "error", err)
		os.Exit(1)
	}
	if err := d.Start(ctx); err != nil {
		logger.Error("failed to start daemon", "error", err)
		d.Stop()
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	d.Stop()
	logger.Info("goodbye")
}

// loadConfig reads the configuration file, if any, and applies flag
// overrides.
func loadConfig(f flags) (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		var err error
		cfg, err = config.Load(f.ConfigFile)
		if err != nil {
			return nil, err
		}
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.ProtocolLog != "" {
		cfg.Log.ProtocolLog = f.ProtocolLog
	}
	switch f.UDP {
	case "":
	case "off":
		cfg.UDP.Enabled = false
	default:
		cfg.UDP.Enabled = true
		cfg.UDP.Address = f.UDP
	}
	switch f.TCP {
	case "":
	case "off":
		cfg.TCP.Enabled = false
	default:
		cfg.TCP.Enabled = true
		cfg.TCP.Address = f.TCP
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if lvl == slog.LevelDebug {
		handlerOpts.AddSource = true
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
	slog.SetDefault(logger)
	return logger, nil
}
