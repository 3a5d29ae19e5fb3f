// Package mgmt holds the management-side collaborators of the SMP engine:
// the handler registry, the event callbacks, and the per-request Streamer
// that handlers use to decode the request and build the response map.
//
// # Handlers
//
// Command handlers are grouped by management group and addressed by command
// ID. Each command may have a read and a write function:
//
//	reg := mgmt.NewRegistry()
//	_ = reg.Register(&mgmt.Group{
//	    ID:   wire.GroupOS,
//	    Name: "os",
//	    Handlers: map[uint8]mgmt.Handler{
//	        0: {Write: echo},
//	    },
//	})
//
// A handler decodes the request with Streamer.Decode and writes response
// entries with Streamer.Encode. Returning a *mgmt.Error sets the "rc" (and
// "rsn") of the error response; any other error is reported as
// wire.StatusUnknown.
package mgmt
