package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/federicojvarela/node-challenge/pkg/discovery"
	"github.com/federicojvarela/node-challenge/pkg/transport/tcp"
)

var announceName string

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List bitcoin nodes announced on the local network via mDNS",
	Run: func(cmd *cobra.Command, args []string) {
		printDiscovered(cmd.Context(), color.Output, mdnsWait)
	},
}

var announceCmd = &cobra.Command{
	Use:   "announce <ip:port>",
	Short: "Announce a reachable node on the local network via mDNS",
	Long: `Publishes ip:port as a _bitcoin._tcp service for the selected network so
that "discover" and "--mdns" on other machines can find it. Use 0.0.0.0:<port>
to announce this host, or the address of a node such as a local bitcoind.
Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := tcp.ValidateAddress(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		announcer, err := discovery.Announce(announceName, addr, cfg.Network, cfg.Handshake.UserAgent)
		if err != nil {
			return err
		}
		defer announcer.Shutdown()

		fmt.Fprintf(color.Output, "%s %s on %s, Ctrl-C to stop\n",
			color.GreenString("[announce]"), color.CyanString(addr.String()), cfg.Network)
		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().DurationVarP(&mdnsWait, "wait", "w", defaultMDNSWait, "How long to browse")

	rootCmd.AddCommand(announceCmd)
	announceCmd.Flags().StringVar(&announceName, "name", "", "mDNS instance name (default bitcoin-node-<hostname>-<port>)")
}
