// Package interactive provides the interactive command-line interface
// for slot-shell.
package interactive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/msgslot/msgslot-go/pkg/client"
	"github.com/msgslot/msgslot-go/pkg/slot"
)

// Shell drives a daemon connection from typed commands. Files are
// referred to by the handle the daemon assigned.
type Shell struct {
	conn  *client.Conn
	addr  string
	rl    *readline.Instance
	out   io.Writer
	files map[uint32]*client.File
}

// New creates a shell on conn.
func New(conn *client.Conn, addr string) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "slot> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := newShell(conn, addr, rl.Stdout())
	s.rl = rl
	return s, nil
}

func newShell(conn *client.Conn, addr string, out io.Writer) *Shell {
	return &Shell{
		conn:  conn,
		addr:  addr,
		out:   out,
		files: make(map[uint32]*client.File),
	}
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("open"),
		readline.PcItem("select"),
		readline.PcItem("write"),
		readline.PcItem("read"),
		readline.PcItem("close"),
		readline.PcItem("files"),
		readline.PcItem("status"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// Stdout returns a writer that properly coordinates with the readline input.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()
	defer s.closeAll(ctx)

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.conn.Done():
			fmt.Fprintf(s.out, "Connection lost: %v\n", s.conn.Err())
			cancel()
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if quit := s.Exec(ctx, line); quit {
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one command line. It reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "open", "o":
		s.cmdOpen(ctx, args)

	case "select", "s":
		s.cmdSelect(ctx, args)

	case "write", "w":
		s.cmdWrite(ctx, input, args)

	case "read", "r":
		s.cmdRead(ctx, args)

	case "close", "c":
		s.cmdClose(ctx, args)

	case "files", "f":
		s.cmdFiles()

	case "status":
		s.cmdStatus()

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Slot Shell Commands:
  Sessions:
    open <minor>            - Open a session on a device instance
    select <handle> <chan>  - Bind a session to a channel
    close <handle>          - Close a session

  Messages:
    write <handle> <text>   - Replace the channel's message with text
    read <handle> [cap]     - Read the channel's message (default cap 128)

  General:
    files                   - List open sessions
    status                  - Show connection status
    help                    - Show this help
    quit                    - Exit shell`)
}

func (s *Shell) cmdOpen(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: open <minor>")
		return
	}
	minor, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Invalid minor: %s\n", args[0])
		return
	}

	f, err := s.conn.Open(ctx, minor)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	s.files[f.Handle()] = f
	fmt.Fprintf(s.out, "Opened minor %d as handle %d\n", minor, f.Handle())
}

func (s *Shell) cmdSelect(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "Usage: select <handle> <channel>")
		return
	}
	f, ok := s.file(args[0])
	if !ok {
		return
	}
	channel, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fmt.Fprintf(s.out, "Invalid channel: %s\n", args[1])
		return
	}

	if err := f.Select(ctx, uint32(channel)); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Handle %d bound to channel %d\n", f.Handle(), channel)
}

// cmdWrite sends the raw text after the handle, preserving inner spacing.
func (s *Shell) cmdWrite(ctx context.Context, input string, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "Usage: write <handle> <text>")
		return
	}
	f, ok := s.file(args[0])
	if !ok {
		return
	}

	rest := strings.TrimSpace(input[len(strings.Fields(input)[0]):])
	text := strings.TrimSpace(rest[len(args[0]):])

	n, err := f.Write(ctx, []byte(text))
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Wrote %d bytes\n", n)
}

func (s *Shell) cmdRead(ctx context.Context, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(s.out, "Usage: read <handle> [capacity]")
		return
	}
	f, ok := s.file(args[0])
	if !ok {
		return
	}
	capacity := slot.BufferLen
	if len(args) == 2 {
		c, err := strconv.Atoi(args[1])
		if err != nil || c < 0 {
			fmt.Fprintf(s.out, "Invalid capacity: %s\n", args[1])
			return
		}
		capacity = c
	}

	msg, err := f.Read(ctx, capacity)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "%q (%d bytes)\n", msg, len(msg))
}

func (s *Shell) cmdClose(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: close <handle>")
		return
	}
	f, ok := s.file(args[0])
	if !ok {
		return
	}
	delete(s.files, f.Handle())
	if err := f.Close(ctx); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Closed handle %d\n", f.Handle())
}

func (s *Shell) cmdFiles() {
	if len(s.files) == 0 {
		fmt.Fprintln(s.out, "No open sessions")
		return
	}

	handles := make([]uint32, 0, len(s.files))
	for h := range s.files {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	fmt.Fprintf(s.out, "%-8s %-6s %s\n", "HANDLE", "MINOR", "CHANNEL")
	for _, h := range handles {
		f := s.files[h]
		channel := "-"
		if ch := f.Channel(); ch != slot.NoChannel {
			channel = strconv.FormatUint(uint64(ch), 10)
		}
		fmt.Fprintf(s.out, "%-8d %-6d %s\n", h, f.Minor(), channel)
	}
}

func (s *Shell) cmdStatus() {
	fmt.Fprintf(s.out, "Daemon:   %s\n", s.addr)
	if err := s.conn.Err(); err != nil {
		fmt.Fprintf(s.out, "State:    closed (%v)\n", err)
	} else {
		fmt.Fprintln(s.out, "State:    connected")
	}
	if latency := s.conn.Latency(); latency > 0 {
		fmt.Fprintf(s.out, "Latency:  %s\n", latency)
	}
	fmt.Fprintf(s.out, "Sessions: %d\n", len(s.files))
}

func (s *Shell) file(arg string) (*client.File, bool) {
	h, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		fmt.Fprintf(s.out, "Invalid handle: %s\n", arg)
		return nil, false
	}
	f, ok := s.files[uint32(h)]
	if !ok {
		fmt.Fprintf(s.out, "No open session with handle %d\n", h)
		return nil, false
	}
	return f, true
}

func (s *Shell) closeAll(ctx context.Context) {
	for h, f := range s.files {
		_ = f.Close(ctx)
		delete(s.files, h)
	}
}
