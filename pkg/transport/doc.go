// Package transport carries SMP packets between peers and the engine.
//
// Server side, each transport owns one smp.Transport and implements
// smp.Backend for it:
//
//   - UDPServer: one datagram is one packet. The sender's address lives in
//     the buffer user data and routes the response.
//   - StreamServer: TCP. Each connection gets a UUID and its own
//     reassembler; a Feeder splits the byte stream into SMP units using
//     the length in each header.
//   - Dummy: in-memory loopback for tests and local tooling.
//
// Client side, Dial returns a ClientConn speaking either flavour.
//
// # Stream Framing
//
// SMP needs no framing of its own on a byte stream: every unit starts with
// an 8-byte header whose length field gives the payload size.
//
//	┌─────────────┬──────────────────────┬─────────────┬─────
//	│ header (8B) │ CBOR payload (len B) │ header (8B) │ ...
//	└─────────────┴──────────────────────┴─────────────┴─────
package transport
