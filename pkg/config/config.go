package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/federicojvarela/node-challenge/pkg/protocol"
)

// Keys understood by Load. Each is also read from the upper-cased
// environment variable of the same name.
const (
	KeyRemoteAddress  = "remote_address"
	KeyLocalAddress   = "local_address"
	KeyNetwork        = "network"
	KeyConnectTimeout = "connect_timeout"
	KeyStartHeight    = "start_height"
	KeyUserAgent      = "user_agent"
	KeyLogLevel       = "log_level"
	KeyLogFile        = "log_file"
)

// Defaults
const (
	// DefaultRemoteAddress is a public mainnet node. `dig seed.bitcoin.sipa.be +short`
	// lists fresh ones.
	DefaultRemoteAddress  = "165.22.213.4:8333"
	DefaultLocalAddress   = "0.0.0.0:0"
	DefaultNetwork        = "mainnet"
	DefaultConnectTimeout = 500 * time.Millisecond
	DefaultEnvFile        = ".env"
)

// Handshake is everything the handshake driver needs to build its
// version message.
type Handshake struct {
	ProtocolVersion int32
	Services        protocol.ServiceFlag
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

// DefaultHandshake advertises no services, an empty user agent and height 0,
// and asks the peer not to relay transactions to us.
func DefaultHandshake() Handshake {
	return Handshake{
		ProtocolVersion: protocol.ProtocolVersion,
		Services:        protocol.SFNone,
	}
}

// Config is the resolved configuration of one run.
type Config struct {
	RemoteAddress  string
	LocalAddress   string
	Network        protocol.BitcoinNet
	ConnectTimeout time.Duration
	LogLevel       string
	LogFile        string
	Handshake      Handshake
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyRemoteAddress, DefaultRemoteAddress)
	v.SetDefault(KeyLocalAddress, DefaultLocalAddress)
	v.SetDefault(KeyNetwork, DefaultNetwork)
	v.SetDefault(KeyConnectTimeout, DefaultConnectTimeout.String())
	v.SetDefault(KeyStartHeight, "0")
	v.SetDefault(KeyUserAgent, "")

	v.AutomaticEnv()
	_ = v.BindEnv(KeyNetwork, "BTC_NETWORK", "NETWORK")
	_ = v.BindEnv(KeyLogLevel, "P2P_LOG_LEVEL", "LOG_LEVEL")
}

// Load resolves the configuration from v. Flags bound to v take precedence,
// then process environment, then envFile (dotenv syntax, optional), then
// defaults.
func Load(v *viper.Viper, envFile string) (*Config, error) {
	SetDefaults(v)

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	network, err := protocol.ParseNet(v.GetString(KeyNetwork))
	if err != nil {
		return nil, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(v.GetString(KeyConnectTimeout)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyConnectTimeout, err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %s", KeyConnectTimeout, timeout)
	}

	height, err := parseStartHeight(v.GetString(KeyStartHeight))
	if err != nil {
		return nil, err
	}

	hs := DefaultHandshake()
	hs.StartHeight = height
	hs.UserAgent = v.GetString(KeyUserAgent)
	if len(hs.UserAgent) > protocol.MaxUserAgentLen {
		return nil, fmt.Errorf("%s longer than %d bytes", KeyUserAgent, protocol.MaxUserAgentLen)
	}

	return &Config{
		RemoteAddress:  v.GetString(KeyRemoteAddress),
		LocalAddress:   v.GetString(KeyLocalAddress),
		Network:        network,
		ConnectTimeout: timeout,
		LogLevel:       v.GetString(KeyLogLevel),
		LogFile:        v.GetString(KeyLogFile),
		Handshake:      hs,
	}, nil
}

func parseStartHeight(s string) (int32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	h, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", KeyStartHeight, err)
	}
	return int32(h), nil
}
