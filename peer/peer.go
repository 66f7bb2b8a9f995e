package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/federicojvarela/node-challenge/pkg/config"
	"github.com/federicojvarela/node-challenge/pkg/logger"
	"github.com/federicojvarela/node-challenge/pkg/monitor"
	"github.com/federicojvarela/node-challenge/pkg/transport/tcp"
)

// Peer connects to one remote node at a time and handshakes with it.
type Peer struct {
	cfg       *config.Config
	Connector *tcp.Connector

	statusLock sync.Mutex
	lastRemote string
	lastState  State
	lastResult *Result
	lastErr    error
	lastStats  monitor.Snapshot
	runs       int
}

func NewPeer(cfg *config.Config) *Peer {
	p := &Peer{
		cfg:       cfg,
		Connector: tcp.NewConnector(cfg.Network, cfg.ConnectTimeout),
	}
	logger.Sugar.Infof("[Peer] Initialized for %s, local address %s", cfg.Network, cfg.LocalAddress)
	return p
}

// Handshake connects to remote and runs a single handshake. The connection
// is closed before returning, whatever the outcome.
func (p *Peer) Handshake(ctx context.Context, remote string) (res *Result, err error) {
	state := StateStart
	var stats monitor.Snapshot
	defer func() {
		p.record(remote, state, res, err, stats)
	}()

	local, err := tcp.ValidateAddress(p.cfg.LocalAddress)
	if err != nil {
		state = StateFailed
		return nil, fmt.Errorf("local address: %w", err)
	}

	node, err := p.Connector.Connect(ctx, remote)
	if err != nil {
		state = StateFailed
		return nil, err
	}
	defer func() {
		if closeErr := node.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			// A completed handshake stays completed.
			if err == nil {
				logger.Sugar.Warnf("[Peer] close %s: %v", remote, closeErr)
			} else {
				err = multierr.Append(err, fmt.Errorf("close %s: %w", remote, closeErr))
			}
		}
		stats = node.Metrics().Snapshot()
		node.Metrics().LogSummary(remote)
	}()

	hs := NewHandshake(node, local, p.cfg.Handshake)
	res, err = hs.Run(ctx)
	state = hs.State()
	return res, err
}

func (p *Peer) record(remote string, state State, res *Result, err error, stats monitor.Snapshot) {
	p.statusLock.Lock()
	defer p.statusLock.Unlock()
	p.runs++
	p.lastRemote = remote
	p.lastState = state
	p.lastResult = res
	p.lastErr = err
	p.lastStats = stats
}

// GetStatus summarizes the most recent handshake.
func (p *Peer) GetStatus() string {
	p.statusLock.Lock()
	defer p.statusLock.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Network:        %s\n", p.cfg.Network)
	fmt.Fprintf(&b, "Local address:  %s\n", p.cfg.LocalAddress)
	fmt.Fprintf(&b, "Handshakes run: %d\n", p.runs)
	if p.runs == 0 {
		return b.String()
	}

	fmt.Fprintf(&b, "Last remote:    %s\n", p.lastRemote)
	fmt.Fprintf(&b, "Last state:     %s\n", p.lastState)
	if p.lastErr != nil {
		fmt.Fprintf(&b, "Last error:     %v\n", p.lastErr)
	}
	if p.lastResult != nil {
		fmt.Fprintf(&b, "Peer agent:     %q\n", p.lastResult.Remote.UserAgent)
		fmt.Fprintf(&b, "Peer protocol:  %d\n", p.lastResult.Remote.ProtocolVersion)
		fmt.Fprintf(&b, "Peer height:    %d\n", p.lastResult.Remote.StartHeight)
		fmt.Fprintf(&b, "Peer services:  %s\n", p.lastResult.Remote.Services)
	}
	fmt.Fprintf(&b, "Traffic:        sent %dB/%dmsg, received %dB/%dmsg\n",
		p.lastStats.BytesSent, p.lastStats.MessagesSent, p.lastStats.BytesReceived, p.lastStats.MessagesReceived)
	return b.String()
}
