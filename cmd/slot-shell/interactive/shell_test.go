package interactive

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgslot/msgslot-go/pkg/client"
	"github.com/msgslot/msgslot-go/pkg/service"
	"github.com/msgslot/msgslot-go/pkg/slot"
)

func newTestShell(t *testing.T) (*Shell, *bytes.Buffer) {
	t.Helper()

	reg, err := slot.NewRegistry(slot.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	config := service.DefaultServiceConfig()
	config.ListenAddress = "127.0.0.1:0"
	svc, err := service.NewSlotService(reg, config)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop() })

	conn, err := client.Dial(context.Background(), svc.Addr().String(), client.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var out bytes.Buffer
	return newShell(conn, svc.Addr().String(), &out), &out
}

func TestShellSession(t *testing.T) {
	s, out := newTestShell(t)
	ctx := context.Background()

	assert.False(t, s.Exec(ctx, "open 4"))
	assert.Contains(t, out.String(), "Opened minor 4 as handle 1")

	out.Reset()
	s.Exec(ctx, "write 1 hi")
	assert.Contains(t, out.String(), "invalid argument")

	out.Reset()
	s.Exec(ctx, "select 1 9")
	assert.Contains(t, out.String(), "Handle 1 bound to channel 9")

	out.Reset()
	s.Exec(ctx, "write 1 hello   world")
	assert.Contains(t, out.String(), "Wrote 13 bytes")

	out.Reset()
	s.Exec(ctx, "read 1")
	assert.Contains(t, out.String(), `"hello   world" (13 bytes)`)

	out.Reset()
	s.Exec(ctx, "read 1 4")
	assert.Contains(t, out.String(), "buffer too small")

	out.Reset()
	s.Exec(ctx, "files")
	assert.Contains(t, out.String(), "HANDLE")
	assert.Regexp(t, `1\s+4\s+9`, out.String())

	out.Reset()
	s.Exec(ctx, "close 1")
	assert.Contains(t, out.String(), "Closed handle 1")

	out.Reset()
	s.Exec(ctx, "files")
	assert.Contains(t, out.String(), "No open sessions")
}

func TestShellInputErrors(t *testing.T) {
	s, out := newTestShell(t)
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{"open", "Usage: open <minor>"},
		{"open x", "Invalid minor: x"},
		{"open 256", "no such device"},
		{"select 7 1", "No open session with handle 7"},
		{"read abc", "Invalid handle: abc"},
		{"bogus", "Unknown command: bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out.Reset()
			assert.False(t, s.Exec(ctx, tt.line))
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestShellQuitAndStatus(t *testing.T) {
	s, out := newTestShell(t)
	ctx := context.Background()

	s.Exec(ctx, "status")
	assert.Contains(t, out.String(), "State:    connected")
	assert.Contains(t, out.String(), "Sessions: 0")

	assert.True(t, s.Exec(ctx, "quit"))
	assert.True(t, s.Exec(ctx, "  EXIT "))
	assert.False(t, s.Exec(ctx, "   "))
}
