package mac

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/mchp/mdfu-host/internal/logging"
)

// mdfuServiceType is the mDNS service type advertised by network-tunnel
// MDFU clients, mirrored from the CAN gateway's own "_can-server._tcp".
const mdfuServiceType = "_mdfu-tunnel._tcp"

const tunnelHello = "MDFUTUNNELv1"

// NetworkMAC is a TCP-tunnel MAC: one connection carries already-framed
// bytes to/from a network-attached MDFU client.
type NetworkMAC struct {
	addr    string
	dialer  net.Dialer
	conn    net.Conn
	timeout time.Duration
}

// NewNetwork constructs a NetworkMAC that dials addr (host:port) on Open.
func NewNetwork(addr string, handshakeTimeout time.Duration) *NetworkMAC {
	return &NetworkMAC{addr: addr, timeout: handshakeTimeout}
}

func (n *NetworkMAC) Open() error {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	conn, err := n.dialer.DialContext(ctx, "tcp", n.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", n.addr, err)
	}
	if err := tunnelHandshake(ctx, conn, n.timeout); err != nil {
		_ = conn.Close()
		return err
	}
	n.conn = conn
	return nil
}

func (n *NetworkMAC) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

func (n *NetworkMAC) Read(buf []byte) (int, error)  { return n.conn.Read(buf) }
func (n *NetworkMAC) Write(buf []byte) (int, error) { return n.conn.Write(buf) }

// tunnelHandshake exchanges a fixed hello string in both directions before
// the tunnel carries MDFU frames, the same concurrent write/read-with-
// deadline shape as the CAN gateway's cannelloni handshake.
func tunnelHandshake(ctx context.Context, c net.Conn, timeout time.Duration) error {
	if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer c.SetDeadline(time.Time{})

	errCh := make(chan error, 2)

	go func() {
		_, err := io.WriteString(c, tunnelHello)
		errCh <- err
	}()
	go func() {
		buf := make([]byte, len(tunnelHello))
		_, err := io.ReadFull(c, buf)
		if err == nil && string(buf) != tunnelHello {
			err = errors.New("bad tunnel hello")
		}
		errCh <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("tunnel handshake: %w", err)
			}
		}
	}
	return nil
}

// DiscoveredTool is one MDFU network-tunnel endpoint found via mDNS browse.
type DiscoveredTool struct {
	Instance string
	Addr     string
}

// Discover browses for MDFU tunnel endpoints for up to timeout, the reverse
// of the CAN gateway's zeroconf.Register advertisement path.
func Discover(ctx context.Context, timeout time.Duration) ([]DiscoveredTool, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 8)
	var found []DiscoveredTool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if len(e.AddrIPv4) == 0 {
				continue
			}
			found = append(found, DiscoveredTool{
				Instance: e.Instance,
				Addr:     fmt.Sprintf("%s:%d", e.AddrIPv4[0], e.Port),
			})
		}
	}()

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := resolver.Browse(browseCtx, mdfuServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	<-browseCtx.Done()
	<-done

	logging.L().Debug("mdns_discover", "found", len(found))
	return found, nil
}
