// Package smp implements the Simple Management Protocol engine used by
// mcumgr.
//
// A Transport owns the per-channel state: fragment reassembly, an inbound
// FIFO of complete packets, and the Backend that sends responses. One
// Scheduler runs a single worker goroutine that drains the FIFOs of every
// Transport and feeds each packet to the Engine, so management handlers
// never run concurrently.
//
// The Engine walks the header+payload units of a packet left to right,
// dispatches each to the handler registered for its group and command ID,
// and sends one response per unit. The first failure stops the packet and
// produces a single error response of the form {"rc": status, "rsn": text}.
//
// Buffer ownership moves explicitly between stages:
//
//	reassembly -> Transport FIFO (RxReq)
//	FIFO -> worker (pop)
//	worker -> Engine (ProcessRequestPacket)
//	Engine -> Backend (Send, freed when Send returns)
//
// Every buffer taken from the netbuf.Pool is freed exactly once.
package smp
