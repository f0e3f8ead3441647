// Command slot-send writes one message to a channel of a slotd daemon.
//
// Usage:
//
//	slot-send [flags] <addr> <minor> <channel> <message>
//
// addr is host:port, or "mdns" to use the first daemon advertised on
// the local network. The message is written without a trailing newline
// and must be 1 to 128 bytes long. Any failure is printed to stderr and
// the command exits with status 1.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/msgslot/msgslot-go/internal/cli"
)

func main() {
	var conn cli.ConnFlags
	fs := flag.NewFlagSet("slot-send", flag.ExitOnError)
	conn.Register(fs)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: slot-send [flags] <addr> <minor> <channel> <message>")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if err := run(context.Background(), &conn, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "slot-send: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags *cli.ConnFlags, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("%w: slot-send <addr> <minor> <channel> <message>", cli.ErrUsage)
	}
	minor, err := cli.ParseMinor(args[1])
	if err != nil {
		return err
	}
	channel, err := cli.ParseChannel(args[2])
	if err != nil {
		return err
	}

	conn, err := flags.Dial(ctx, args[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	f, err := cli.OpenChannel(ctx, conn, minor, channel)
	if err != nil {
		return err
	}
	if _, err := f.Write(ctx, []byte(args[3])); err != nil {
		return err
	}
	return f.Close(ctx)
}
