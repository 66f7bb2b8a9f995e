package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/federicojvarela/node-challenge/pkg/protocol"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, DefaultRemoteAddress, cfg.RemoteAddress)
	assert.Equal(t, DefaultLocalAddress, cfg.LocalAddress)
	assert.Equal(t, protocol.MainNet, cfg.Network)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, DefaultHandshake(), cfg.Handshake)
	assert.Zero(t, cfg.Handshake.StartHeight)
	assert.Empty(t, cfg.Handshake.UserAgent)
	assert.False(t, cfg.Handshake.Relay)
}

func TestLoadEnvFile(t *testing.T) {
	path := writeEnvFile(t, "START_HEIGHT=812345\nUSER_AGENT=/Satoshi:25.0.0/\nNETWORK=testnet3\n")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.EqualValues(t, 812345, cfg.Handshake.StartHeight)
	assert.Equal(t, "/Satoshi:25.0.0/", cfg.Handshake.UserAgent)
	assert.Equal(t, protocol.TestNet3, cfg.Network)
}

func TestLoadProcessEnvWinsOverEnvFile(t *testing.T) {
	path := writeEnvFile(t, "START_HEIGHT=1\nUSER_AGENT=/file/\n")
	t.Setenv("START_HEIGHT", "2")
	t.Setenv("BTC_NETWORK", "regtest")
	t.Setenv("CONNECT_TIMEOUT", "2s")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cfg.Handshake.StartHeight)
	assert.Equal(t, "/file/", cfg.Handshake.UserAgent)
	assert.Equal(t, protocol.Regtest, cfg.Network)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
}

func TestLoadFlagsWin(t *testing.T) {
	t.Setenv("REMOTE_ADDRESS", "1.2.3.4:8333")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("remote-address", DefaultRemoteAddress, "")
	flags.Duration("timeout", DefaultConnectTimeout, "")
	require.NoError(t, flags.Parse([]string{"--remote-address", "5.6.7.8:18333", "--timeout", "750ms"}))

	v := viper.New()
	require.NoError(t, v.BindPFlag(KeyRemoteAddress, flags.Lookup("remote-address")))
	require.NoError(t, v.BindPFlag(KeyConnectTimeout, flags.Lookup("timeout")))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "5.6.7.8:18333", cfg.RemoteAddress)
	assert.Equal(t, 750*time.Millisecond, cfg.ConnectTimeout)
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"start height not an integer", map[string]string{"START_HEIGHT": "tall"}},
		{"start height overflows", map[string]string{"START_HEIGHT": "4294967296"}},
		{"unknown network", map[string]string{"BTC_NETWORK": "dogecoin"}},
		{"bad timeout", map[string]string{"CONNECT_TIMEOUT": "soon"}},
		{"negative timeout", map[string]string{"CONNECT_TIMEOUT": "-1s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, val := range tt.env {
				t.Setenv(k, val)
			}
			_, err := Load(viper.New(), "")
			assert.Error(t, err)
		})
	}
}
