package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/netip"
	"time"

	"github.com/federicojvarela/node-challenge/pkg/config"
	"github.com/federicojvarela/node-challenge/pkg/logger"
	"github.com/federicojvarela/node-challenge/pkg/protocol"
	"github.com/federicojvarela/node-challenge/pkg/transport"
)

// State of a handshake.
type State int

const (
	StateStart State = iota
	StateVersionSent
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateVersionSent:
		return "VersionSent"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result describes a completed handshake.
type Result struct {
	// Remote is the version message the peer sent.
	Remote *protocol.MsgVersion
	// Nonce is the nonce of our own version message.
	Nonce     uint64
	Discarded int
	Elapsed   time.Duration
}

// Handshake drives the version/verack exchange over one node. It sends at
// most one version and one verack and is not reusable.
type Handshake struct {
	node  transport.Node
	local netip.AddrPort
	cfg   config.Handshake
	state State
}

func NewHandshake(node transport.Node, local netip.AddrPort, cfg config.Handshake) *Handshake {
	return &Handshake{
		node:  node,
		local: local,
		cfg:   cfg,
		state: StateStart,
	}
}

func (h *Handshake) State() State {
	return h.state
}

// NewVersionMessage builds our version message with a fresh random nonce.
func NewVersionMessage(cfg config.Handshake, remote, local netip.AddrPort) *protocol.MsgVersion {
	msg := protocol.NewMsgVersion(
		protocol.NewNetAddress(remote, cfg.Services),
		protocol.NewNetAddress(local, cfg.Services),
		cfg.Services,
		rand.Uint64(),
		cfg.UserAgent,
		cfg.StartHeight,
	)
	if cfg.ProtocolVersion != 0 {
		msg.ProtocolVersion = cfg.ProtocolVersion
	}
	msg.Relay = cfg.Relay
	return msg
}

// Run sends our version, waits for the peer's version while discarding
// anything else, and answers it with a verack. The wait has no deadline of
// its own; cancelling ctx closes the node and ends the run.
func (h *Handshake) Run(ctx context.Context) (*Result, error) {
	if h.state != StateStart {
		return nil, fmt.Errorf("handshake already in state %s", h.state)
	}

	start := time.Now()
	stop := context.AfterFunc(ctx, func() {
		_ = h.node.Close()
	})
	defer stop()

	remote := h.node.RemoteAddr()
	version := NewVersionMessage(h.cfg, remote, h.local)
	if err := h.node.Send(version); err != nil {
		return nil, h.fail(fmt.Errorf("%w: version: %w", transport.ErrSendingFailed, err))
	}
	h.state = StateVersionSent
	logger.Sugar.Infof("[Handshake] version sent to %s: nonce=%d user_agent=%q start_height=%d",
		remote, version.Nonce, version.UserAgent, version.StartHeight)

	discarded := 0
	for {
		msg, err := h.node.Receive()
		if err != nil {
			return nil, h.fail(h.receiveError(ctx, err))
		}

		switch m := msg.(type) {
		case *protocol.MsgVersion:
			logger.Sugar.Infof("[Handshake] version received from %s: protocol=%d services=%s user_agent=%q start_height=%d relay=%t",
				remote, m.ProtocolVersion, m.Services, m.UserAgent, m.StartHeight, m.Relay)
			if m.Nonce == version.Nonce {
				logger.Sugar.Warnf("[Handshake] %s echoed our nonce %d, possible self connection", remote, m.Nonce)
			}

			if err := h.node.Send(&protocol.MsgVerAck{}); err != nil {
				return nil, h.fail(fmt.Errorf("%w: verack: %w", transport.ErrSendingFailed, err))
			}
			h.state = StateDone
			logger.Sugar.Infof("[Handshake] verack sent, handshake with %s complete", remote)

			return &Result{
				Remote:    m,
				Nonce:     version.Nonce,
				Discarded: discarded,
				Elapsed:   time.Since(start),
			}, nil

		default:
			discarded++
			logger.Sugar.Debugf("[Handshake] discarding %s from %s while waiting for version", msg.Command(), remote)
		}
	}
}

func (h *Handshake) receiveError(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", transport.ErrConnectionLost, ctx.Err())
	case errors.Is(err, protocol.ErrDecode):
		return fmt.Errorf("%w: %w", transport.ErrConnectionLost, err)
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: peer closed the stream before sending version", transport.ErrConnectionLost)
	default:
		return fmt.Errorf("%w: %w", transport.ErrConnectionLost, err)
	}
}

func (h *Handshake) fail(err error) error {
	h.state = StateFailed
	logger.Sugar.Errorf("[Handshake] failed with %s: %v", h.node.RemoteAddr(), err)
	return err
}
