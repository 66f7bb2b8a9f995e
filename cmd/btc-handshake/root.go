package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/federicojvarela/node-challenge/peer"
	"github.com/federicojvarela/node-challenge/pkg/config"
	"github.com/federicojvarela/node-challenge/pkg/discovery"
	"github.com/federicojvarela/node-challenge/pkg/logger"
	"github.com/federicojvarela/node-challenge/pkg/transport"
)

// Process exit codes, one per error kind.
const (
	exitOK = iota
	exitUsage
	exitInvalidAddress
	exitConnectionFailed
	exitConnectionTimedOut
	exitConnectionLost
	exitSendingFailed
)

// exitInterrupted follows the shell convention of 128+SIGINT.
const exitInterrupted = 130

const defaultMDNSWait = 3 * time.Second

var (
	v        = viper.New()
	cfg      *config.Config
	envFile  string
	useMDNS  bool
	mdnsWait time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "btc-handshake",
	Short: "Bitcoin P2P handshake client",
	Long: `Connects to a single Bitcoin node, performs the version/verack handshake
and exits. The exit code tells which step failed.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runHandshake,
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(v, envFile)
	if err != nil {
		return err
	}
	return logger.Init(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
}

func runHandshake(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	remote := cfg.RemoteAddress
	if useMDNS {
		var err error
		if remote, err = discoverFirst(ctx, mdnsWait); err != nil {
			return err
		}
	}

	logger.Sugar.Infof("Starting handshake with %s on %s", remote, cfg.Network)
	p := peer.NewPeer(cfg)
	res, err := p.Handshake(ctx, remote)
	if err != nil {
		return err
	}
	printResult(color.Output, remote, res)
	return nil
}

func discoverFirst(ctx context.Context, wait time.Duration) (string, error) {
	resolver, err := discovery.NewResolver()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	remote, err := resolver.First(ctx, cfg.Network)
	if err != nil {
		return "", err
	}
	logger.Sugar.Infof("Using discovered node %s", remote)
	return remote.String(), nil
}

func printResult(w io.Writer, remote string, res *peer.Result) {
	fmt.Fprintf(w, "%s handshake with %s completed in %s\n",
		color.GreenString("[ok]"), color.CyanString(remote), res.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "%s protocol=%d services=%s user_agent=%q start_height=%d\n",
		color.GreenString("[peer]"), res.Remote.ProtocolVersion, res.Remote.Services, res.Remote.UserAgent, res.Remote.StartHeight)
	if res.Discarded > 0 {
		fmt.Fprintf(w, "%s %d unrelated message(s) discarded\n", color.YellowString("[info]"), res.Discarded)
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, transport.ErrInvalidAddress):
		return exitInvalidAddress
	case errors.Is(err, transport.ErrConnectionTimedOut):
		return exitConnectionTimedOut
	case errors.Is(err, transport.ErrConnectionFailed), errors.Is(err, discovery.ErrNoNode):
		return exitConnectionFailed
	case errors.Is(err, transport.ErrSendingFailed):
		return exitSendingFailed
	case errors.Is(err, transport.ErrConnectionLost):
		return exitConnectionLost
	default:
		return exitUsage
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Sugar.Error(err)
		fmt.Fprintf(color.Error, "%s %v\n", color.RedString("[error]"), err)
		logger.Sync()
		os.Exit(exitCode(err))
	}
	logger.Sync()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&envFile, "env-file", "e", config.DefaultEnvFile, "Optional dotenv file with START_HEIGHT / USER_AGENT overrides")
	flags.StringP("remote-address", "r", config.DefaultRemoteAddress, "Address of the node to reach, ip:port")
	flags.StringP("local-address", "l", config.DefaultLocalAddress, "Address of this node advertised in the version message")
	flags.StringP("network", "n", config.DefaultNetwork, "Network magic: mainnet, testnet3, signet or regtest")
	flags.Duration("timeout", config.DefaultConnectTimeout, "Connection establishment timeout")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Also append logs to this file")

	_ = v.BindPFlag(config.KeyRemoteAddress, flags.Lookup("remote-address"))
	_ = v.BindPFlag(config.KeyLocalAddress, flags.Lookup("local-address"))
	_ = v.BindPFlag(config.KeyNetwork, flags.Lookup("network"))
	_ = v.BindPFlag(config.KeyConnectTimeout, flags.Lookup("timeout"))
	_ = v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = v.BindPFlag(config.KeyLogFile, flags.Lookup("log-file"))

	rootCmd.Flags().BoolVar(&useMDNS, "mdns", false, "Discover the remote node on the local network instead of using --remote-address")
	rootCmd.Flags().DurationVar(&mdnsWait, "mdns-wait", defaultMDNSWait, "How long to browse for nodes with --mdns")
}
