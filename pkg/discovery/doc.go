// Package discovery advertises and browses SMP servers over mDNS/DNS-SD.
//
// Two service types are used, one per transport:
//
// # Datagram (_mcumgr._udp)
//
// Advertised by servers listening for SMP over UDP. Every datagram carries
// exactly one packet, so clients should keep requests within the advertised
// "mtu" TXT value.
//
// # Stream (_mcumgr._tcp)
//
// Advertised by servers accepting SMP over TCP. Packets may span any number
// of segments and are reassembled on the server.
//
// TXT records carry the SMP header version (ver), the packet buffer size
// (bs), the buffer count (bc) and, for datagram services, the MTU (mtu).
// Clients use bs to size requests that must fit a single receive buffer.
package discovery
