// Package log captures SMP protocol events.
//
// It is separate from operational logging (slog): protocol capture is a
// machine-readable trace of what crossed each layer, for debugging device
// interactions after the fact.
//
// # Basic Usage
//
//	// Development: print events via slog
//	engine := smp.NewEngine(reg, smp.WithProtocolLogger(log.NewSlogAdapter(slog.Default())))
//
//	// Production: write a capture file
//	fl, _ := log.NewFileLogger("/var/log/smpd/device.smplog")
//
//	// Both
//	logger := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
//   - Transport: raw datagrams or stream chunks (FrameEvent)
//   - SMP: decoded request and response headers (MessageEvent)
//   - State: connection and reassembly changes (StateChangeEvent)
//   - Error: failures at any layer (ErrorEventData)
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with the .smplog
// extension. The smp-log tool views, exports and summarises them.
package log
