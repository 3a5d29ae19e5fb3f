package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smp-protocol/smp-go/pkg/client"
	"github.com/smp-protocol/smp-go/pkg/discovery"
	"github.com/smp-protocol/smp-go/pkg/wire"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errUsage          = errors.New("usage")
)

// dialFunc connects a client on demand.
type dialFunc func(ctx context.Context, opts ...client.Option) (*client.Client, error)

// session runs smpctl commands against one lazily dialed server.
type session struct {
	out     io.Writer
	dial    dialFunc
	browser discovery.Browser
	timeout time.Duration

	client  *client.Client
	onClose func()
}

func newSession(out io.Writer, dial dialFunc, browser discovery.Browser, timeout time.Duration) *session {
	return &session{
		out:     out,
		dial:    dial,
		browser: browser,
		timeout: timeout,
	}
}

// Close releases the client and the browser.
func (s *session) Close() error {
	var err error
	if s.client != nil {
		err = s.client.Close()
		s.client = nil
	}
	if s.browser != nil {
		s.browser.Stop()
	}
	if s.onClose != nil {
		s.onClose()
		s.onClose = nil
	}
	return err
}

// conn returns the connected client, dialing on first use.
func (s *session) conn(ctx context.Context) (*client.Client, error) {
	if s.client != nil {
		return s.client, nil
	}
	c, err := s.dial(ctx,
		client.WithTimeout(s.timeout),
		client.WithUnmatchedHandler(func(r *client.Response) {
			fmt.Fprintf(s.out, "late response: %s\n", r.Header)
		}))
	if err != nil {
		return nil, err
	}
	s.client = c
	return c, nil
}

// exec runs one command. args[0] is the command name.
func (s *session) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}

	cmd := strings.ToLower(args[0])
	args = args[1:]

	switch cmd {
	case "echo":
		return s.cmdEcho(ctx, args)
	case "params":
		return s.cmdParams(ctx)
	case "raw":
		return s.cmdRaw(ctx, args)
	case "discover":
		return s.cmdDiscover(ctx)
	case "help", "?":
		s.printHelp()
		return nil
	default:
		return fmt.Errorf("%w: %s", errUnknownCommand, cmd)
	}
}

func (s *session) cmdEcho(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: echo <text>", errUsage)
	}
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	text, err := c.Echo(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, text)
	return nil
}

func (s *session) cmdParams(ctx context.Context) error {
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	p, err := c.Params(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "buf_size:  %d\n", p.BufSize)
	fmt.Fprintf(s.out, "buf_count: %d\n", p.BufCount)
	return nil
}

// cmdRaw sends a hex-encoded packet. Whitespace between hex groups is
// allowed. The sequence number is assigned by the client.
func (s *session) cmdRaw(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: raw <hex>", errUsage)
	}
	pkt, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	c, err := s.conn(ctx)
	if err != nil {
		return err
	}
	rsp, err := c.Raw(ctx, pkt)
	if err != nil {
		return err
	}

	hdr, err := wire.ReadHeader(rsp)
	if err != nil {
		return err
	}
	payload := rsp[wire.HeaderSize:]
	fmt.Fprintf(s.out, "header:  %s\n", hdr)
	fmt.Fprintf(s.out, "payload: %s\n", hex.EncodeToString(payload))
	if len(payload) > 0 {
		if m, err := wire.DecodeMap(payload); err == nil {
			fmt.Fprintf(s.out, "decoded: %v\n", m)
		}
	}
	return nil
}

// cmdDiscover browses both transports until the timeout and prints every
// server found.
func (s *session) cmdDiscover(ctx context.Context) error {
	if s.browser == nil {
		return errors.New("discovery unavailable")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		found []*discovery.Service
		wg    sync.WaitGroup
	)
	for _, network := range []discovery.Network{discovery.NetworkUDP, discovery.NetworkTCP} {
		services, err := s.browser.Browse(ctx, network)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		// Browse streams until ctx ends.
		wg.Add(1)
		go func() {
			defer wg.Done()
			for svc := range services {
				mu.Lock()
				found = append(found, svc)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(found) == 0 {
		fmt.Fprintln(s.out, "no servers found")
		return nil
	}
	sortServices(found)
	for _, svc := range found {
		fmt.Fprintf(s.out, "%-4s %-24s %s:%d  ver=%d bs=%d bc=%d",
			svc.Network, svc.InstanceName, svc.Host, svc.Port,
			svc.Info.Version, svc.Info.BufSize, svc.Info.BufCount)
		if svc.Info.MTU > 0 {
			fmt.Fprintf(s.out, " mtu=%d", svc.Info.MTU)
		}
		if len(svc.Addresses) > 0 {
			fmt.Fprintf(s.out, "  [%s]", strings.Join(svc.Addresses, " "))
		}
		fmt.Fprintln(s.out)
	}
	return nil
}

func (s *session) printHelp() {
	fmt.Fprintln(s.out, `Commands:
  echo <text>   Ask the server to echo text
  params        Show the server's buffer parameters
  raw <hex>     Send a raw SMP packet and print the response
  discover      List servers advertised over mDNS
  help          Show this help
  quit          Exit the shell`)
}

// sortServices orders services by network, then instance name.
func sortServices(services []*discovery.Service) {
	sort.Slice(services, func(i, j int) bool {
		if services[i].Network != services[j].Network {
			return services[i].Network < services[j].Network
		}
		return services[i].InstanceName < services[j].InstanceName
	})
}
