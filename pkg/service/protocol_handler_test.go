package service

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgslot/msgslot-go/pkg/slot"
	"github.com/msgslot/msgslot-go/pkg/wire"
)

func newTestHandler(t *testing.T, cfg slot.Config, maxHandles int) *ProtocolHandler {
	t.Helper()
	reg, err := slot.NewRegistry(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return NewProtocolHandler(reg, maxHandles)
}

func call(t *testing.T, h *ProtocolHandler, op wire.Operation, handle uint32, payload any) *wire.Response {
	t.Helper()
	req, err := wire.NewRequest(42, op, handle, payload)
	require.NoError(t, err)
	resp := h.HandleRequest(req)
	require.Equal(t, req.MessageID, resp.MessageID)
	return resp
}

func open(t *testing.T, h *ProtocolHandler, minor uint32) uint32 {
	t.Helper()
	resp := call(t, h, wire.OpOpen, 0, &wire.OpenPayload{Minor: minor})
	require.NoError(t, resp.Err())
	var p wire.OpenResponsePayload
	require.NoError(t, resp.DecodePayload(&p))
	return p.Handle
}

func openSelected(t *testing.T, h *ProtocolHandler, minor uint32, channel uint32) uint32 {
	t.Helper()
	handle := open(t, h, minor)
	require.NoError(t, call(t, h, wire.OpSelect, handle, &wire.SelectPayload{Channel: channel}).Err())
	return handle
}

func TestProtocolHandler_WriteThenRead(t *testing.T) {
	h := newTestHandler(t, slot.Config{}, 8)
	handle := openSelected(t, h, 0, 5)

	resp := call(t, h, wire.OpWrite, handle, &wire.WritePayload{Data: []byte("Hello")})
	require.NoError(t, resp.Err())
	var wp wire.WriteResponsePayload
	require.NoError(t, resp.DecodePayload(&wp))
	assert.Equal(t, uint32(5), wp.Written)

	resp = call(t, h, wire.OpRead, handle, &wire.ReadPayload{Capacity: slot.BufferLen})
	require.NoError(t, resp.Err())
	var rp wire.ReadResponsePayload
	require.NoError(t, resp.DecodePayload(&rp))
	assert.Equal(t, []byte("Hello"), rp.Data)
}

func TestProtocolHandler_SharedChannelAcrossHandles(t *testing.T) {
	h := newTestHandler(t, slot.Config{}, 8)
	writer := openSelected(t, h, 3, 9)
	reader := openSelected(t, h, 3, 9)
	other := openSelected(t, h, 4, 9)

	require.NoError(t, call(t, h, wire.OpWrite, writer, &wire.WritePayload{Data: []byte("ping")}).Err())

	var rp wire.ReadResponsePayload
	resp := call(t, h, wire.OpRead, reader, &wire.ReadPayload{Capacity: 4})
	require.NoError(t, resp.Err())
	require.NoError(t, resp.DecodePayload(&rp))
	assert.Equal(t, []byte("ping"), rp.Data)

	resp = call(t, h, wire.OpRead, other, &wire.ReadPayload{Capacity: slot.BufferLen})
	assert.Equal(t, wire.StatusNoMessage, resp.Status)
}

func TestProtocolHandler_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, h *ProtocolHandler) uint32
		op      wire.Operation
		payload any
		want    wire.Status
	}{
		{
			name:    "OpenUnknownMinor",
			setup:   func(*testing.T, *ProtocolHandler) uint32 { return 0 },
			op:      wire.OpOpen,
			payload: &wire.OpenPayload{Minor: slot.MaxMinors},
			want:    wire.StatusNoDevice,
		},
		{
			name:    "OpenMinorBeyondSixteenBits",
			setup:   func(*testing.T, *ProtocolHandler) uint32 { return 0 },
			op:      wire.OpOpen,
			payload: &wire.OpenPayload{Minor: 70000},
			want:    wire.StatusNoDevice,
		},
		{
			name:    "SelectZero",
			setup:   func(t *testing.T, h *ProtocolHandler) uint32 { return open(t, h, 0) },
			op:      wire.OpSelect,
			payload: &wire.SelectPayload{Channel: 0},
			want:    wire.StatusInvalidArgument,
		},
		{
			name:    "WriteUnbound",
			setup:   func(t *testing.T, h *ProtocolHandler) uint32 { return open(t, h, 0) },
			op:      wire.OpWrite,
			payload: &wire.WritePayload{Data: []byte("x")},
			want:    wire.StatusInvalidArgument,
		},
		{
			name:    "ReadUnbound",
			setup:   func(t *testing.T, h *ProtocolHandler) uint32 { return open(t, h, 0) },
			op:      wire.OpRead,
			payload: &wire.ReadPayload{Capacity: slot.BufferLen},
			want:    wire.StatusInvalidArgument,
		},
		{
			name:    "WriteEmpty",
			setup:   func(t *testing.T, h *ProtocolHandler) uint32 { return openSelected(t, h, 0, 1) },
			op:      wire.OpWrite,
			payload: &wire.WritePayload{Data: []byte{}},
			want:    wire.StatusMessageTooLarge,
		},
		{
			name:    "WriteTooLarge",
			setup:   func(t *testing.T, h *ProtocolHandler) uint32 { return openSelected(t, h, 0, 1) },
			op:      wire.OpWrite,
			payload: &wire.WritePayload{Data: bytes.Repeat([]byte{'a'}, slot.BufferLen+1)},
			want:    wire.StatusMessageTooLarge,
		},
		{
			name:    "ReadNeverWritten",
			setup:   func(t *testing.T, h *ProtocolHandler) uint32 { return openSelected(t, h, 0, 1) },
			op:      wire.OpRead,
			payload: &wire.ReadPayload{Capacity: slot.BufferLen},
			want:    wire.StatusNoMessage,
		},
		{
			name: "ReadBufferTooSmall",
			setup: func(t *testing.T, h *ProtocolHandler) uint32 {
				handle := openSelected(t, h, 0, 1)
				require.NoError(t, call(t, h, wire.OpWrite, handle, &wire.WritePayload{Data: []byte("Hello")}).Err())
				return handle
			},
			op:      wire.OpRead,
			payload: &wire.ReadPayload{Capacity: 4},
			want:    wire.StatusBufferTooSmall,
		},
		{
			name:    "UnknownHandle",
			setup:   func(*testing.T, *ProtocolHandler) uint32 { return 99 },
			op:      wire.OpRead,
			payload: &wire.ReadPayload{Capacity: slot.BufferLen},
			want:    wire.StatusBadHandle,
		},
		{
			name:    "MissingHandle",
			setup:   func(*testing.T, *ProtocolHandler) uint32 { return 0 },
			op:      wire.OpSelect,
			payload: &wire.SelectPayload{Channel: 1},
			want:    wire.StatusBadHandle,
		},
		{
			name:    "MissingPayload",
			setup:   func(t *testing.T, h *ProtocolHandler) uint32 { return open(t, h, 0) },
			op:      wire.OpSelect,
			payload: nil,
			want:    wire.StatusInvalidArgument,
		},
		{
			name:    "UnknownOperation",
			setup:   func(*testing.T, *ProtocolHandler) uint32 { return 1 },
			op:      wire.Operation(77),
			payload: nil,
			want:    wire.StatusUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, slot.Config{}, 8)
			handle := tt.setup(t, h)
			resp := call(t, h, tt.op, handle, tt.payload)
			assert.Equal(t, tt.want, resp.Status, "error: %v", resp.Err())
		})
	}
}

func TestProtocolHandler_MalformedPayload(t *testing.T) {
	h := newTestHandler(t, slot.Config{}, 8)
	handle := open(t, h, 0)

	req := &wire.Request{MessageID: 1, Operation: wire.OpSelect, Handle: handle, Payload: cbor.RawMessage{0x63, 'a', 'b', 'c'}}
	resp := h.HandleRequest(req)
	assert.Equal(t, wire.StatusInvalidArgument, resp.Status)
	assert.True(t, errors.Is(resp.Err(), slot.ErrInvalidArgument))
}

func TestProtocolHandler_ErrorsCarryMessage(t *testing.T) {
	h := newTestHandler(t, slot.Config{}, 8)
	handle := openSelected(t, h, 0, 1)

	err := call(t, h, wire.OpRead, handle, &wire.ReadPayload{Capacity: 1}).Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, slot.ErrNoMessage))
	assert.Contains(t, err.Error(), "no message")
}

func TestProtocolHandler_Reselect(t *testing.T) {
	h := newTestHandler(t, slot.Config{}, 8)
	handle := openSelected(t, h, 0, 7)

	assert.Equal(t, wire.StatusSuccess, call(t, h, wire.OpSelect, handle, &wire.SelectPayload{Channel: 7}).Status)
	assert.Equal(t, wire.StatusInvalidArgument, call(t, h, wire.OpSelect, handle, &wire.SelectPayload{Channel: 8}).Status)
}

func TestProtocolHandler_OutOfMemoryPreservesMessage(t *testing.T) {
	h := newTestHandler(t, slot.Config{MaxChannels: 1, MaxBufferBytes: 6}, 8)
	handle := openSelected(t, h, 0, 1)
	require.NoError(t, call(t, h, wire.OpWrite, handle, &wire.WritePayload{Data: []byte("abc")}).Err())

	second := open(t, h, 0)
	resp := call(t, h, wire.OpSelect, second, &wire.SelectPayload{Channel: 2})
	assert.Equal(t, wire.StatusOutOfMemory, resp.Status)

	resp = call(t, h, wire.OpWrite, handle, &wire.WritePayload{Data: []byte("abcdefg")})
	assert.Equal(t, wire.StatusOutOfMemory, resp.Status)

	var rp wire.ReadResponsePayload
	resp = call(t, h, wire.OpRead, handle, &wire.ReadPayload{Capacity: slot.BufferLen})
	require.NoError(t, resp.Err())
	require.NoError(t, resp.DecodePayload(&rp))
	assert.Equal(t, []byte("abc"), rp.Data)
}

func TestProtocolHandler_Busy(t *testing.T) {
	h := newTestHandler(t, slot.Config{}, 1)
	open(t, h, 0)

	resp := call(t, h, wire.OpOpen, 0, &wire.OpenPayload{Minor: 0})
	assert.Equal(t, wire.StatusBusy, resp.Status)
	assert.Equal(t, 1, h.OpenHandles())
}

func TestProtocolHandler_CloseKeepsChannel(t *testing.T) {
	h := newTestHandler(t, slot.Config{}, 8)
	handle := openSelected(t, h, 2, 11)
	require.NoError(t, call(t, h, wire.OpWrite, handle, &wire.WritePayload{Data: []byte("kept")}).Err())

	require.NoError(t, call(t, h, wire.OpClose, handle, nil).Err())
	assert.Equal(t, wire.StatusBadHandle, call(t, h, wire.OpRead, handle, &wire.ReadPayload{Capacity: 4}).Status)
	assert.Equal(t, wire.StatusBadHandle, call(t, h, wire.OpClose, handle, nil).Status)

	again := openSelected(t, h, 2, 11)
	var rp wire.ReadResponsePayload
	resp := call(t, h, wire.OpRead, again, &wire.ReadPayload{Capacity: 4})
	require.NoError(t, resp.Err())
	require.NoError(t, resp.DecodePayload(&rp))
	assert.Equal(t, []byte("kept"), rp.Data)
}

func TestProtocolHandler_Close(t *testing.T) {
	h := newTestHandler(t, slot.Config{}, 8)
	open(t, h, 0)
	open(t, h, 1)

	assert.Equal(t, 2, h.Close())
	assert.Equal(t, 0, h.OpenHandles())
	assert.Equal(t, 0, h.registry.Stats().Sessions)
}

func TestProtocolHandler_ClosedRegistry(t *testing.T) {
	h := newTestHandler(t, slot.Config{}, 8)
	handle := openSelected(t, h, 0, 1)
	require.NoError(t, h.registry.Close())

	assert.Equal(t, wire.StatusClosed, call(t, h, wire.OpRead, handle, &wire.ReadPayload{Capacity: 1}).Status)
	assert.Equal(t, wire.StatusClosed, call(t, h, wire.OpOpen, 0, &wire.OpenPayload{Minor: 0}).Status)
}
