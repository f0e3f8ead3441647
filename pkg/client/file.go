package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/msgslot/msgslot-go/pkg/slot"
	"github.com/msgslot/msgslot-go/pkg/wire"
)

// File is an open session on one device instance of the daemon.
type File struct {
	conn   *Conn
	handle uint32
	minor  int

	mu      sync.Mutex
	channel uint32
}

// Open opens a session on device instance minor.
func (c *Conn) Open(ctx context.Context, minor int) (*File, error) {
	if minor < 0 || minor >= slot.MaxMinors {
		return nil, fmt.Errorf("%w: minor %d", slot.ErrNoDevice, minor)
	}

	var resp wire.OpenResponsePayload
	if err := c.roundTrip(ctx, wire.OpOpen, 0, &wire.OpenPayload{Minor: uint32(minor)}, &resp); err != nil {
		return nil, err
	}
	return &File{conn: c, handle: resp.Handle, minor: minor}, nil
}

// Handle returns the daemon-assigned handle.
func (f *File) Handle() uint32 {
	return f.handle
}

// Minor returns the device instance.
func (f *File) Minor() int {
	return f.minor
}

// Channel returns the selected channel, or slot.NoChannel.
func (f *File) Channel() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel
}

// Select binds the file to a channel.
func (f *File) Select(ctx context.Context, channel uint32) error {
	if err := f.conn.roundTrip(ctx, wire.OpSelect, f.handle, &wire.SelectPayload{Channel: channel}, nil); err != nil {
		return err
	}
	f.mu.Lock()
	f.channel = channel
	f.mu.Unlock()
	return nil
}

// Write replaces the channel's message with p.
func (f *File) Write(ctx context.Context, p []byte) (int, error) {
	var resp wire.WriteResponsePayload
	if err := f.conn.roundTrip(ctx, wire.OpWrite, f.handle, &wire.WritePayload{Data: p}, &resp); err != nil {
		return 0, err
	}
	return int(resp.Written), nil
}

// Read returns the channel's message. It fails with slot.ErrBufferTooSmall
// if the message is longer than capacity.
func (f *File) Read(ctx context.Context, capacity int) ([]byte, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: negative capacity", slot.ErrInvalidArgument)
	}
	var resp wire.ReadResponsePayload
	if err := f.conn.roundTrip(ctx, wire.OpRead, f.handle, &wire.ReadPayload{Capacity: uint32(capacity)}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Close closes the session. The channel and its message are kept.
func (f *File) Close(ctx context.Context) error {
	return f.conn.roundTrip(ctx, wire.OpClose, f.handle, nil, nil)
}
