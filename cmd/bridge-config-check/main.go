// Command bridge-config-check validates a bridge configuration file without
// opening any socket.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/kstaniek/can-udp-bridge/internal/config"
)

func main() { os.Exit(run(os.Args[1:], os.Stdout, os.Stderr)) }

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("bridge-config-check", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.BoolP("verbose", "v", false, "Print every port and channel")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: bridge-config-check [flags] <config.json>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	path := fs.Arg(0)
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(stderr, "Config invalid: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Config OK: %s\n", cfg.Summary())
	if *verbose {
		for i, p := range cfg.Ports {
			fmt.Fprintf(stdout, "  port[%d] listen=%d send=%d\n", i, p.ListenPort, p.SendPort)
			for _, ch := range p.Channels {
				fmt.Fprintf(stdout, "    %s tx=%d range=%s bitrate=%d\n", ch.Interface, ch.TxChannelID, ch.IDRange, ch.Bitrate)
			}
		}
	}
	return 0
}
