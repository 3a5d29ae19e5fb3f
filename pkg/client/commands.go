package client

import (
	"context"

	"github.com/smp-protocol/smp-go/pkg/mgmt/osmgmt"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

// Params describes the server's packet buffers.
type Params struct {
	BufSize  int `cbor:"buf_size"`
	BufCount int `cbor:"buf_count"`
}

// Echo sends text to the server and returns what it echoed.
func (c *Client) Echo(ctx context.Context, text string) (string, error) {
	req := struct {
		D string `cbor:"d"`
	}{D: text}

	resp, err := c.Do(ctx, wire.OpWrite, wire.GroupOS, osmgmt.IDEcho, req)
	if err != nil {
		return "", err
	}

	var out struct {
		R string `cbor:"r"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	return out.R, nil
}

// Params reads the server's buffer parameters.
func (c *Client) Params(ctx context.Context) (*Params, error) {
	resp, err := c.Do(ctx, wire.OpRead, wire.GroupOS, osmgmt.IDParams, nil)
	if err != nil {
		return nil, err
	}

	var p Params
	if err := resp.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}
