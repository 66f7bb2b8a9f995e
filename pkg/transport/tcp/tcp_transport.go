package tcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/federicojvarela/node-challenge/pkg/logger"
	"github.com/federicojvarela/node-challenge/pkg/monitor"
	"github.com/federicojvarela/node-challenge/pkg/protocol"
	"github.com/federicojvarela/node-challenge/pkg/transport"
)

// DefaultConnectTimeout bounds how long Connect waits for the TCP handshake.
const DefaultConnectTimeout = 500 * time.Millisecond

// TCPNode implements transport.Node
type TCPNode struct {
	conn    net.Conn
	codec   protocol.Codec
	remote  netip.AddrPort
	local   netip.AddrPort
	metrics *monitor.Metrics

	lock   sync.Mutex
	reader *frameReader
}

// NewTCPNode wraps conn with codec. remote is the address the connection
// was established with.
func NewTCPNode(conn net.Conn, remote netip.AddrPort, codec protocol.Codec) *TCPNode {
	n := &TCPNode{
		conn:    conn,
		codec:   codec,
		remote:  remote,
		metrics: monitor.NewMetrics(),
	}
	if local, err := netip.ParseAddrPort(conn.LocalAddr().String()); err == nil {
		n.local = local
	}
	n.reader = newFrameReader(conn, codec, n.metrics.RecordReceived)
	return n
}

func (n *TCPNode) Send(msg protocol.Message) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	var buf bytes.Buffer
	if err := n.codec.Encode(msg, &buf); err != nil {
		return err
	}
	size := buf.Len()

	if _, err := n.conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", msg.Command(), err)
	}
	n.metrics.RecordSent(size)
	logger.Sugar.Debugf("[TCPNode] sent %s (%d bytes) to %s", msg.Command(), size, n.remote)
	return nil
}

// Receive must only be called from one goroutine at a time.
func (n *TCPNode) Receive() (protocol.Message, error) {
	msg, err := n.reader.next()
	if err != nil {
		return nil, err
	}
	n.metrics.RecordMessage()
	logger.Sugar.Debugf("[TCPNode] received %s from %s", msg.Command(), n.remote)
	return msg, nil
}

func (n *TCPNode) Close() error {
	return n.conn.Close()
}

func (n *TCPNode) RemoteAddr() netip.AddrPort {
	return n.remote
}

func (n *TCPNode) LocalAddr() netip.AddrPort {
	return n.local
}

func (n *TCPNode) Metrics() *monitor.Metrics {
	return n.metrics
}

// ValidateAddress parses an "ip:port" endpoint. Host names are not
// resolved and IPv6 endpoints are rejected.
func ValidateAddress(s string) (netip.AddrPort, error) {
	addr, err := netip.ParseAddrPort(s)
	if err != nil {
		// "::1:8333" is not an ip:port pair but it is an IPv6 literal.
		if ip, ipErr := netip.ParseAddr(s); ipErr == nil && ip.Is6() && !ip.Is4In6() {
			return netip.AddrPort{}, fmt.Errorf("%w: %w: %q", transport.ErrInvalidAddress, transport.ErrUnsupportedAddressFamily, s)
		}
		return netip.AddrPort{}, fmt.Errorf("%w: %w: %q: %w", transport.ErrInvalidAddress, transport.ErrUnparseableAddress, s, err)
	}

	if addr.Addr().Is6() && !addr.Addr().Is4In6() {
		return netip.AddrPort{}, fmt.Errorf("%w: %w: %q", transport.ErrInvalidAddress, transport.ErrUnsupportedAddressFamily, s)
	}
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()), nil
}

// Dialer opens transport connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Connector opens codec-wrapped connections to remote peers.
type Connector struct {
	Net     protocol.BitcoinNet
	Timeout time.Duration
	Dialer  Dialer
}

func NewConnector(btcNet protocol.BitcoinNet, timeout time.Duration) *Connector {
	return &Connector{
		Net:     btcNet,
		Timeout: timeout,
		Dialer:  &net.Dialer{},
	}
}

// Connect validates remote, then dials it racing against the connect
// timeout. No I/O happens for an invalid address.
func (c *Connector) Connect(ctx context.Context, remote string) (*TCPNode, error) {
	addr, err := ValidateAddress(remote)
	if err != nil {
		return nil, err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Sugar.Infof("[Connector] dialing %s (timeout %s)", addr, timeout)
	conn, err := c.Dialer.DialContext(dialCtx, "tcp", addr.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %s after %s", transport.ErrConnectionTimedOut, addr, timeout)
		}
		return nil, fmt.Errorf("%w: %s: %w", transport.ErrConnectionFailed, addr, err)
	}

	logger.Sugar.Infof("[Connector] connected to %s from %s", addr, conn.LocalAddr())
	return NewTCPNode(conn, addr, protocol.NewCodec(c.Net)), nil
}
