package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/federicojvarela/node-challenge/pkg/logger"
	"github.com/federicojvarela/node-challenge/pkg/protocol"
	"github.com/federicojvarela/node-challenge/pkg/transport/tcp"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type bitcoin nodes are announced under
	ServiceType = "_bitcoin._tcp"
	// Domain is the local domain for mDNS
	Domain = "local."

	txtNetwork   = "network"
	txtUserAgent = "ua"
)

// ErrNoNode is returned by First when browsing ends without a usable node.
var ErrNoNode = errors.New("no bitcoin node found on the local network")

// Node is an announced bitcoin node with the endpoints a Connector can dial.
type Node struct {
	Instance  string
	Network   protocol.BitcoinNet
	UserAgent string
	Addrs     []netip.AddrPort
}

func (n Node) String() string {
	addrs := make([]string, 0, len(n.Addrs))
	for _, a := range n.Addrs {
		addrs = append(addrs, a.String())
	}
	return fmt.Sprintf("%s %s", n.Instance, strings.Join(addrs, ", "))
}

// Announcer publishes one node under ServiceType until Shutdown.
type Announcer struct {
	server *zeroconf.Server
	addr   netip.AddrPort
}

// Announce publishes addr as a node of btcNet. An unspecified IP announces
// this host's own interfaces; any other IP is announced by proxy, which is
// how a bitcoind that knows nothing about mDNS becomes discoverable.
func Announce(instance string, addr netip.AddrPort, btcNet protocol.BitcoinNet, userAgent string) (*Announcer, error) {
	if addr.Port() == 0 {
		return nil, fmt.Errorf("announce %s: port must be set", addr)
	}
	if instance == "" {
		instance = defaultInstance(addr)
	}
	text := txtRecords(btcNet, userAgent)

	var (
		server *zeroconf.Server
		err    error
	)
	if addr.Addr().IsUnspecified() {
		server, err = zeroconf.Register(instance, ServiceType, Domain, int(addr.Port()), text, nil)
	} else {
		host := "btc-" + strings.ReplaceAll(addr.Addr().String(), ".", "-")
		server, err = zeroconf.RegisterProxy(instance, ServiceType, Domain, int(addr.Port()), host,
			[]string{addr.Addr().String()}, text, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("register mDNS service %q: %w", instance, err)
	}

	logger.Sugar.Infof("[Discovery] announcing %s as %q on %s", addr, instance, btcNet)
	return &Announcer{server: server, addr: addr}, nil
}

// Shutdown withdraws the announcement.
func (a *Announcer) Shutdown() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		logger.Sugar.Infof("[Discovery] stopped announcing %s", a.addr)
	}
}

func defaultInstance(addr netip.AddrPort) string {
	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Sprintf("bitcoin-node-%d", addr.Port())
	}
	return fmt.Sprintf("bitcoin-node-%s-%d", hostname, addr.Port())
}

func txtRecords(btcNet protocol.BitcoinNet, userAgent string) []string {
	text := []string{txtNetwork + "=" + btcNet.String()}
	if userAgent != "" {
		text = append(text, txtUserAgent+"="+userAgent)
	}
	return text
}

func parseTXT(records []string) map[string]string {
	meta := make(map[string]string, len(records))
	for _, record := range records {
		if k, v, ok := strings.Cut(record, "="); ok {
			meta[k] = v
		}
	}
	return meta
}

// nodeFromEntry keeps the entry only if it belongs to btcNet and has at
// least one address that passes ValidateAddress. Entries without a network
// record are assumed to be on btcNet.
func nodeFromEntry(entry *zeroconf.ServiceEntry, btcNet protocol.BitcoinNet) (Node, bool) {
	meta := parseTXT(entry.Text)
	if name, ok := meta[txtNetwork]; ok {
		if n, err := protocol.ParseNet(name); err != nil || n != btcNet {
			logger.Sugar.Debugf("[Discovery] skipping %q: network %q, want %s", entry.Instance, name, btcNet)
			return Node{}, false
		}
	}

	node := Node{
		Instance:  entry.Instance,
		Network:   btcNet,
		UserAgent: meta[txtUserAgent],
	}
	ips := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)
	for _, ip := range ips {
		addr, err := tcp.ValidateAddress(net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)))
		if err != nil {
			logger.Sugar.Debugf("[Discovery] skipping address of %q: %v", entry.Instance, err)
			continue
		}
		node.Addrs = append(node.Addrs, addr)
	}
	sort.Slice(node.Addrs, func(i, j int) bool { return node.Addrs[i].Compare(node.Addrs[j]) < 0 })
	return node, len(node.Addrs) > 0
}

// Resolver finds nodes on the local network
type Resolver struct {
	resolver *zeroconf.Resolver
}

func NewResolver() (*Resolver, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	return &Resolver{resolver: resolver}, nil
}

// Browse delivers nodes of btcNet until ctx ends. Nodes with no usable
// address are dropped.
func (r *Resolver) Browse(ctx context.Context, btcNet protocol.BitcoinNet) (<-chan Node, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	results := make(chan Node, 10)

	if err := r.resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse services: %w", err)
	}

	go func() {
		defer close(results)

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				node, ok := nodeFromEntry(entry, btcNet)
				if !ok {
					continue
				}
				logger.Sugar.Infof("[Discovery] discovered node: %s", node)
				select {
				case results <- node:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return results, nil
}

// First browses until a node of btcNet is found or ctx ends and returns its
// first address.
func (r *Resolver) First(ctx context.Context, btcNet protocol.BitcoinNet) (netip.AddrPort, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := r.Browse(ctx, btcNet)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if node, ok := <-ch; ok {
		return node.Addrs[0], nil
	}
	if err := ctx.Err(); err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %s on %s: %w", ErrNoNode, ServiceType, btcNet, err)
	}
	return netip.AddrPort{}, fmt.Errorf("%w: %s on %s", ErrNoNode, ServiceType, btcNet)
}
