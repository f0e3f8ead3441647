// Command slot-log views and analyzes slotd protocol log files.
//
// Log files are written by slotd when started with -protocol-log.
//
// Usage:
//
//	slot-log <command> [flags] <file.slog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON lines or CSV
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	slot-log view slotd.slog
//
//	# View the traffic of one channel
//	slot-log view -minor 0 -channel 1 slotd.slog
//
//	# Export write requests and responses to CSV
//	slot-log export -format csv -op write slotd.slog
//
//	# Keep one connection and save to new file
//	slot-log filter -conn-id abc12345-... -o conn.slog slotd.slog
//
//	# Show statistics
//	slot-log stats slotd.slog
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/msgslot/msgslot-go/cmd/slot-log/commands"
)

const usage = `slot-log - Message Slot Protocol Log Analyzer

Usage:
  slot-log <command> [flags] <file.slog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON lines or CSV
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "slot-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "view":
		err = runView(args)
	case "export":
		err = runExport(args)
	case "filter":
		err = runFilter(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet creates a flag set whose usage text starts with summary.
func newFlagSet(name, summary, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "slot-log %s - %s\n\nUsage:\n  slot-log %s %s\n\nFlags:\n", name, summary, name, args)
		fs.PrintDefaults()
	}
	return fs
}

// logPath returns the single positional argument.
func logPath(fs *flag.FlagSet) (string, error) {
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("log file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string) error {
	fs := newFlagSet("view", "View log file in human-readable format", "[flags] <file.slog>")
	var ff commands.FilterFlags
	ff.Register(fs)
	_ = fs.Parse(args)

	path, err := logPath(fs)
	if err != nil {
		return err
	}
	filter, err := ff.Filter()
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, os.Stdout)
}

func runExport(args []string) error {
	fs := newFlagSet("export", "Export log file to JSON lines or CSV", "[flags] <file.slog>")
	var ff commands.FilterFlags
	ff.Register(fs)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	_ = fs.Parse(args)

	path, err := logPath(fs)
	if err != nil {
		return err
	}
	filter, err := ff.Filter()
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return commands.RunExport(path, *format, filter, w)
}

func runFilter(args []string) error {
	fs := newFlagSet("filter", "Filter log file and write to new file", "-o <out.slog> [flags] <file.slog>")
	var ff commands.FilterFlags
	ff.Register(fs)
	output := fs.String("o", "", "Output file (required)")
	_ = fs.Parse(args)

	path, err := logPath(fs)
	if err != nil {
		return err
	}
	if *output == "" {
		fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}
	filter, err := ff.Filter()
	if err != nil {
		return err
	}

	count, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		return err
	}
	fmt.Printf("Filtered %d events to %s\n", count, *output)
	return nil
}

func runStats(args []string) error {
	fs := newFlagSet("stats", "Show statistics about the log file", "<file.slog>")
	_ = fs.Parse(args)

	path, err := logPath(fs)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
