// Command slot-recv reads the message held by a channel of a slotd daemon.
//
// Usage:
//
//	slot-recv [flags] <addr> <minor> <channel>
//
// addr is host:port, or "mdns" to use the first daemon advertised on
// the local network. Exactly the bytes of the message are written to
// stdout, with nothing appended. Any failure is printed to stderr and
// the command exits with status 1.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/msgslot/msgslot-go/internal/cli"
	"github.com/msgslot/msgslot-go/pkg/slot"
)

func main() {
	var conn cli.ConnFlags
	fs := flag.NewFlagSet("slot-recv", flag.ExitOnError)
	conn.Register(fs)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: slot-recv [flags] <addr> <minor> <channel>")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if err := run(context.Background(), &conn, fs.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "slot-recv: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags *cli.ConnFlags, args []string, out io.Writer) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: slot-recv <addr> <minor> <channel>", cli.ErrUsage)
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
	defer f.Close(ctx)

	msg, err := f.Read(ctx, slot.BufferLen)
	if err != nil {
		return err
	}
	n, err := out.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return io.ErrShortWrite
	}
	return nil
}
