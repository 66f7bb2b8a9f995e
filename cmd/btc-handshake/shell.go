package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/federicojvarela/node-challenge/peer"
	"github.com/federicojvarela/node-challenge/pkg/discovery"

	"github.com/c-bata/go-prompt"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive handshake shell",
	Run: func(cmd *cobra.Command, args []string) {
		p := peer.NewPeer(cfg)

		fmt.Println("Bitcoin Handshake Interactive Shell")
		fmt.Println("Type 'help' for commands.")

		prompt.New(
			func(in string) {
				if shellExecutor(cmd.Context(), color.Output, in, p) {
					os.Exit(exitOK)
				}
			},
			shellCompleter,
			prompt.OptionPrefix("btc> "),
			prompt.OptionTitle("Bitcoin Handshake"),
		).Run()
	},
}

// shellExecutor runs one shell line, writing to out. It reports whether
// the shell should exit.
func shellExecutor(ctx context.Context, out io.Writer, in string, p *peer.Peer) bool {
	blocks := strings.Fields(in)
	if len(blocks) == 0 {
		return false
	}

	switch blocks[0] {
	case "exit", "quit":
		fmt.Fprintln(out, "Bye.")
		return true
	case "status":
		fmt.Fprint(out, p.GetStatus())
	case "handshake":
		remote := cfg.RemoteAddress
		if len(blocks) > 1 {
			remote = blocks[1]
		}
		res, err := p.Handshake(ctx, remote)
		if err != nil {
			fmt.Fprintf(out, "%s %v\n", color.RedString("[error]"), err)
			return false
		}
		printResult(out, remote, res)
	case "discover":
		printDiscovered(ctx, out, mdnsWait)
	case "help":
		fmt.Fprintln(out, "Available commands:")
		fmt.Fprintln(out, "  handshake [ip:port]    - Handshake with a node (default: --remote-address)")
		fmt.Fprintln(out, "  discover               - Browse the local network for nodes")
		fmt.Fprintln(out, "  status                 - Show the last handshake")
		fmt.Fprintln(out, "  exit                   - Leave the shell")
	default:
		fmt.Fprintln(out, "Unknown command: "+blocks[0])
	}
	return false
}

func shellCompleter(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "handshake", Description: "Handshake with a node"},
		{Text: "discover", Description: "Browse the local network for nodes"},
		{Text: "status", Description: "Show the last handshake"},
		{Text: "exit", Description: "Leave the shell"},
		{Text: "help", Description: "Show help"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

func printDiscovered(ctx context.Context, out io.Writer, wait time.Duration) {
	resolver, err := discovery.NewResolver()
	if err != nil {
		fmt.Fprintf(out, "%s %v\n", color.RedString("[error]"), err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ch, err := resolver.Browse(ctx, cfg.Network)
	if err != nil {
		fmt.Fprintf(out, "%s %v\n", color.RedString("[error]"), err)
		return
	}

	found := 0
	for node := range ch {
		found++
		addrs := make([]string, 0, len(node.Addrs))
		for _, a := range node.Addrs {
			addrs = append(addrs, a.String())
		}
		fmt.Fprintf(out, "%s %s %s", color.GreenString("[node]"), node.Instance, color.CyanString(strings.Join(addrs, ", ")))
		if node.UserAgent != "" {
			fmt.Fprintf(out, " %s", node.UserAgent)
		}
		fmt.Fprintln(out)
	}
	if found == 0 {
		fmt.Fprintf(out, "No %s nodes found.\n", cfg.Network)
	}
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
