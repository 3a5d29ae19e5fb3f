// Package config loads the smpd daemon configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Config is the daemon configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Buffers   BufferConfig    `yaml:"buffers"`
	SMP       SMPConfig       `yaml:"smp"`
	UDP       UDPConfig       `yaml:"udp"`
	TCP       TCPConfig       `yaml:"tcp"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LogConfig selects operational and protocol logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// ProtocolLog is a capture file path; empty disables capture.
	ProtocolLog string `yaml:"protocol_log"`
}

// BufferConfig sizes the packet buffer pool.
type BufferConfig struct {
	Count        int `yaml:"count"`
	Size         int `yaml:"size"`
	UserDataSize int `yaml:"user_data_size"`
}

// SMPConfig tunes the engine.
type SMPConfig struct {
	// VerboseErrors adds "rsn" text to error responses.
	VerboseErrors bool `yaml:"verbose_errors"`

	// MaxMapEntries bounds response maps.
	MaxMapEntries int `yaml:"max_map_entries"`
}

// UDPConfig configures the UDP transport.
type UDPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	MTU     int    `yaml:"mtu"`
}

// TCPConfig configures the stream transport.
type TCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	ReadChunk int    `yaml:"read_chunk"`
}

// DiscoveryConfig configures mDNS advertisement.
type DiscoveryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Instance  string        `yaml:"instance"`
	Interface string        `yaml:"interface"`
	TTL       time.Duration `yaml:"ttl"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Buffers: BufferConfig{
			Count:        4,
			Size:         384,
			UserDataSize: 24,
		},
		SMP: SMPConfig{
			VerboseErrors: true,
			MaxMapEntries: 15,
		},
		UDP: UDPConfig{
			Enabled: true,
			Address: ":1337",
			MTU:     1024,
		},
		TCP: TCPConfig{
			Address:   ":1338",
			ReadChunk: 128,
		},
		Discovery: DiscoveryConfig{
			Instance: "smpd",
			TTL:      120 * time.Second,
		},
		Metrics: MetricsConfig{Address: ":9108"},
	}
}

// LoadError reports a configuration file that could not be used.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.File == "" {
		return msg
	}
	return e.File + ": " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Message: "invalid configuration", Cause: err}
	}
	return cfg, nil
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Buffers.Count <= 0 {
		errs = append(errs, fmt.Errorf("buffers.count must be positive, got %d", c.Buffers.Count))
	}
	if c.Buffers.Size < wire.HeaderSize {
		errs = append(errs, fmt.Errorf("buffers.size must hold an 8-byte header, got %d", c.Buffers.Size))
	}
	if c.Buffers.Size > wire.MaxUnitSize {
		errs = append(errs, fmt.Errorf("buffers.size must not exceed %d, got %d", wire.MaxUnitSize, c.Buffers.Size))
	}
	if c.Buffers.UserDataSize < 0 {
		errs = append(errs, fmt.Errorf("buffers.user_data_size must not be negative, got %d", c.Buffers.UserDataSize))
	}
	if c.SMP.MaxMapEntries <= 0 {
		errs = append(errs, fmt.Errorf("smp.max_map_entries must be positive, got %d", c.SMP.MaxMapEntries))
	}
	if c.UDP.Enabled {
		if c.UDP.Address == "" {
			errs = append(errs, errors.New("udp.address is required"))
		}
		if c.UDP.MTU <= 0 {
			errs = append(errs, fmt.Errorf("udp.mtu must be positive, got %d", c.UDP.MTU))
		}
		// netip.AddrPort: length byte, 16-byte address, 2-byte port.
		if c.Buffers.UserDataSize < 19 {
			errs = append(errs, fmt.Errorf("udp needs buffers.user_data_size >= 19, got %d", c.Buffers.UserDataSize))
		}
	}
	if c.TCP.Enabled {
		if c.TCP.Address == "" {
			errs = append(errs, errors.New("tcp.address is required"))
		}
		if c.TCP.ReadChunk <= 0 {
			errs = append(errs, fmt.Errorf("tcp.read_chunk must be positive, got %d", c.TCP.ReadChunk))
		}
		if c.Buffers.UserDataSize < 16 {
			errs = append(errs, fmt.Errorf("tcp needs buffers.user_data_size >= 16, got %d", c.Buffers.UserDataSize))
		}
	}
	if !c.UDP.Enabled && !c.TCP.Enabled {
		errs = append(errs, errors.New("at least one of udp and tcp must be enabled"))
	}
	if c.Discovery.Enabled && c.Discovery.Instance == "" {
		errs = append(errs, errors.New("discovery.instance is required"))
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, errors.New("metrics.address is required"))
	}
	return errors.Join(errs...)
}

// ParseLevel converts a level name to an slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
