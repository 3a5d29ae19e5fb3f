// Package client implements an SMP client over any transport.Conn.
//
// Requests get consecutive sequence numbers; a background read loop hands
// each response to the request with the same sequence number, so several
// goroutines may share one Client.
//
//	conn, err := transport.Dial(ctx, "udp", "127.0.0.1:1337", transport.ClientConfig{})
//	c := client.New(conn)
//	defer c.Close()
//
//	text, err := c.Echo(ctx, "hello")
//
// Failures reported by the server are returned as *StatusError.
package client
