// Command slot-shell is an interactive client for a slotd daemon.
//
// Usage:
//
//	slot-shell [flags] [addr]
//
// addr is host:port (default "localhost:7380"), or "mdns" to use the
// first daemon advertised on the local network. Type "help" at the
// prompt for the list of commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/msgslot/msgslot-go/cmd/slot-shell/interactive"
	"github.com/msgslot/msgslot-go/internal/cli"
	"github.com/msgslot/msgslot-go/pkg/transport"
)

func main() {
	var conn cli.ConnFlags
	fs := flag.NewFlagSet("slot-shell", flag.ExitOnError)
	conn.Register(fs)
	keepAlive := fs.Duration("keepalive", 30*time.Second, "Ping interval (0 disables)")
	_ = fs.Parse(os.Args[1:])

	addr := fmt.Sprintf("localhost:%d", transport.DefaultPort)
	if fs.NArg() > 0 {
		addr = fs.Arg(0)
	}

	if err := run(&conn, addr, *keepAlive); err != nil {
		fmt.Fprintf(os.Stderr, "slot-shell: %v\n", err)
		os.Exit(1)
	}
}

func run(flags *cli.ConnFlags, addr string, keepAlive time.Duration) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts, err := flags.Options()
	if err != nil {
		return err
	}
	if keepAlive > 0 {
		ka := transport.DefaultKeepAliveConfig()
		ka.PingInterval = keepAlive
		opts.KeepAlive = &ka
	}

	conn, err := flags.DialWith(ctx, addr, opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	shell, err := interactive.New(conn, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(shell.Stdout(), "Connected to %s\n", addr)
	shell.Run(ctx, cancel)
	return nil
}
