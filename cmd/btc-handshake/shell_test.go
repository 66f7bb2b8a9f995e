package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/federicojvarela/node-challenge/peer"
	"github.com/federicojvarela/node-challenge/pkg/config"
	"github.com/federicojvarela/node-challenge/pkg/protocol"
)

func shellPeer(t *testing.T) *peer.Peer {
	t.Helper()
	prev := cfg
	cfg = &config.Config{
		RemoteAddress:  config.DefaultRemoteAddress,
		LocalAddress:   config.DefaultLocalAddress,
		Network:        protocol.Regtest,
		ConnectTimeout: time.Second,
		Handshake:      config.DefaultHandshake(),
	}
	t.Cleanup(func() { cfg = prev })
	return peer.NewPeer(cfg)
}

func runShell(p *peer.Peer, line string) (string, bool) {
	var out bytes.Buffer
	exit := shellExecutor(context.Background(), &out, line, p)
	return out.String(), exit
}

func TestShellStatus(t *testing.T) {
	p := shellPeer(t)

	out, exit := runShell(p, "status")
	assert.False(t, exit)
	assert.Contains(t, out, "Network:        regtest")
	assert.Contains(t, out, "Handshakes run: 0")
}

func TestShellHelpAndUnknown(t *testing.T) {
	p := shellPeer(t)

	out, _ := runShell(p, "help")
	for _, cmd := range []string{"handshake [ip:port]", "discover", "status", "exit"} {
		assert.Contains(t, out, cmd)
	}

	out, exit := runShell(p, "  frobnicate now ")
	assert.False(t, exit)
	assert.Equal(t, "Unknown command: frobnicate\n", out)

	out, exit = runShell(p, "   ")
	assert.False(t, exit)
	assert.Empty(t, out)
}

func TestShellExit(t *testing.T) {
	p := shellPeer(t)

	for _, line := range []string{"exit", "quit"} {
		out, exit := runShell(p, line)
		assert.True(t, exit, line)
		assert.Equal(t, "Bye.\n", out)
	}
}

func TestShellHandshakeInvalidAddress(t *testing.T) {
	p := shellPeer(t)

	out, exit := runShell(p, "handshake ::1:8333")
	assert.False(t, exit)
	assert.Contains(t, out, "[error]")
	assert.Contains(t, out, "unsupported")

	out, _ = runShell(p, "status")
	assert.Contains(t, out, "Handshakes run: 1")
	assert.Contains(t, out, "Last state:     Failed")
}
