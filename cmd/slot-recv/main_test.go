package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/msgslot/msgslot-go/internal/cli"
	"github.com/msgslot/msgslot-go/pkg/client"
	"github.com/msgslot/msgslot-go/pkg/service"
	"github.com/msgslot/msgslot-go/pkg/slot"
)

func startDaemon(t *testing.T) string {
	t.Helper()
	reg, err := slot.NewRegistry(slot.Config{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })

	config := service.DefaultServiceConfig()
	config.ListenAddress = "127.0.0.1:0"
	svc, err := service.NewSlotService(reg, config)
	if err != nil {
		t.Fatalf("NewSlotService: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })
	return svc.Addr().String()
}

func TestRecvWritesExactBytes(t *testing.T) {
	addr := startDaemon(t)
	ctx := context.Background()

	conn, err := client.Dial(ctx, addr, client.Options{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	f, err := cli.OpenChannel(ctx, conn, 7, 42)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	msg := []byte("no newline\x00here")
	if _, err := f.Write(ctx, msg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var out bytes.Buffer
	if err := run(ctx, &cli.ConnFlags{}, []string{addr, "7", "42"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !bytes.Equal(out.Bytes(), msg) {
		t.Errorf("stdout = %q, want %q", out.Bytes(), msg)
	}
}

func TestRecvFailures(t *testing.T) {
	addr := startDaemon(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"missing args", []string{addr, "0"}, cli.ErrUsage},
		{"bad minor", []string{addr, "256", "1"}, slot.ErrNoDevice},
		{"channel zero", []string{addr, "0", "0"}, slot.ErrInvalidArgument},
		{"empty channel", []string{addr, "0", "9"}, slot.ErrNoMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(ctx, &cli.ConnFlags{}, tt.args, &out)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("run error = %v, want %v", err, tt.wantErr)
			}
			if out.Len() != 0 {
				t.Errorf("wrote %q on failure", out.Bytes())
			}
		})
	}
}
