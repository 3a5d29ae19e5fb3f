// Package netbuf provides a fixed-size packet buffer pool.
//
// A Pool owns a fixed number of equally sized buffers. Each Buf carries a
// small user-data region that transports use to remember where a packet came
// from (a peer address, a connection ID). Alloc never blocks: an empty pool
// returns ErrNoBuffers immediately.
//
// A Buf has exactly one owner at a time. Whoever holds it either hands it on
// (and forgets it) or calls Free. Freeing a buffer twice panics.
package netbuf
