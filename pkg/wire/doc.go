// Package wire defines the on-the-wire format of the Simple Management
// Protocol (SMP).
//
// Every SMP unit is an 8-byte header followed by a CBOR map payload:
//
//	 0        1        2        3        4        5        6        7
//	+--------+--------+--------+--------+--------+--------+--------+--------+
//	| op/ver | flags  |     length      |      group      |  seq   |   id   |
//	+--------+--------+--------+--------+--------+--------+--------+--------+
//
// Multi-byte fields are big-endian. The length excludes the header. The low
// three bits of the first byte carry the operation, bits 3-4 the protocol
// version.
//
// # Operations
//
// Requests are Read (0) and Write (2). A response carries the request
// operation plus one (ReadRsp, WriteRsp).
//
// # Payloads
//
// Payloads are CBOR (RFC 8949) maps with text keys. Responses are written as
// indefinite-length maps. A failed request is answered with
//
//	{"rc": <status>}            or
//	{"rc": <status>, "rsn": <text>}
//
// when verbose error reporting is enabled.
package wire
