package service

import (
	"bytes"
	"fmt"
	"math"

	"github.com/msgslot/msgslot-go/pkg/slot"
	"github.com/msgslot/msgslot-go/pkg/wire"
)

// ProtocolHandler executes requests for one connection. It owns the
// connection's handle table; the registry is shared.
type ProtocolHandler struct {
	registry *slot.Registry
	handles  *handleTable
}

// outcome describes what a request touched, for logging and events.
type outcome struct {
	handle  uint32
	session *slot.Session
	length  *int
}

// NewProtocolHandler creates a handler allowing at most maxHandles open
// sessions.
func NewProtocolHandler(registry *slot.Registry, maxHandles int) *ProtocolHandler {
	return &ProtocolHandler{
		registry: registry,
		handles:  newHandleTable(maxHandles),
	}
}

// HandleRequest processes a request and returns its response.
func (h *ProtocolHandler) HandleRequest(req *wire.Request) *wire.Response {
	resp, _ := h.handle(req)
	return resp
}

// OpenHandles returns the number of sessions held by the connection.
func (h *ProtocolHandler) OpenHandles() int {
	return h.handles.Len()
}

// Close closes every session still open. Returns the number closed.
func (h *ProtocolHandler) Close() int {
	return h.handles.CloseAll()
}

func (h *ProtocolHandler) handle(req *wire.Request) (*wire.Response, outcome) {
	if err := req.Validate(); err != nil {
		if !req.Operation.IsValid() {
			return wire.NewErrorResponse(req.MessageID, fmt.Errorf("%w: %v", wire.ErrUnsupported, err)), outcome{}
		}
		return wire.NewErrorResponse(req.MessageID, fmt.Errorf("%w: %v", wire.ErrBadHandle, err)), outcome{}
	}

	switch req.Operation {
	case wire.OpOpen:
		return h.handleOpen(req)
	case wire.OpSelect:
		return h.handleSelect(req)
	case wire.OpWrite:
		return h.handleWrite(req)
	case wire.OpRead:
		return h.handleRead(req)
	case wire.OpClose:
		return h.handleClose(req)
	default:
		return wire.NewErrorResponse(req.MessageID, wire.ErrUnsupported), outcome{}
	}
}

// handleOpen processes an Open request.
func (h *ProtocolHandler) handleOpen(req *wire.Request) (*wire.Response, outcome) {
	var p wire.OpenPayload
	if err := req.DecodePayload(&p); err != nil {
		return invalid(req, err), outcome{}
	}

	session, err := h.registry.Open(int(p.Minor))
	if err != nil {
		return wire.NewErrorResponse(req.MessageID, err), outcome{}
	}

	handle, err := h.handles.Add(session)
	if err != nil {
		_ = session.Close()
		return wire.NewErrorResponse(req.MessageID, err), outcome{}
	}

	return respond(req, &wire.OpenResponsePayload{Handle: handle}, outcome{handle: handle, session: session})
}

// handleSelect processes a Select request.
func (h *ProtocolHandler) handleSelect(req *wire.Request) (*wire.Response, outcome) {
	session, err := h.handles.Get(req.Handle)
	if err != nil {
		return wire.NewErrorResponse(req.MessageID, err), outcome{}
	}
	out := outcome{handle: req.Handle, session: session}

	var p wire.SelectPayload
	if err := req.DecodePayload(&p); err != nil {
		return invalid(req, err), out
	}
	if err := session.Select(p.Channel); err != nil {
		return wire.NewErrorResponse(req.MessageID, err), out
	}
	return respond(req, nil, out)
}

// handleWrite processes a Write request.
func (h *ProtocolHandler) handleWrite(req *wire.Request) (*wire.Response, outcome) {
	session, err := h.handles.Get(req.Handle)
	if err != nil {
		return wire.NewErrorResponse(req.MessageID, err), outcome{}
	}
	out := outcome{handle: req.Handle, session: session}

	var p wire.WritePayload
	if err := req.DecodePayload(&p); err != nil {
		return invalid(req, err), out
	}

	n, err := session.Write(p.Data)
	if err != nil {
		return wire.NewErrorResponse(req.MessageID, err), out
	}
	out.length = &n
	return respond(req, &wire.WriteResponsePayload{Written: uint32(n)}, out)
}

// handleRead processes a Read request.
func (h *ProtocolHandler) handleRead(req *wire.Request) (*wire.Response, outcome) {
	session, err := h.handles.Get(req.Handle)
	if err != nil {
		return wire.NewErrorResponse(req.MessageID, err), outcome{}
	}
	out := outcome{handle: req.Handle, session: session}

	var p wire.ReadPayload
	if err := req.DecodePayload(&p); err != nil {
		return invalid(req, err), out
	}

	capacity := int(min(p.Capacity, math.MaxInt32))
	var buf bytes.Buffer
	n, err := session.ReadTo(&buf, capacity)
	if err != nil {
		return wire.NewErrorResponse(req.MessageID, err), out
	}
	out.length = &n
	return respond(req, &wire.ReadResponsePayload{Data: buf.Bytes()}, out)
}

// handleClose processes a Close request.
func (h *ProtocolHandler) handleClose(req *wire.Request) (*wire.Response, outcome) {
	session, err := h.handles.Remove(req.Handle)
	if err != nil {
		return wire.NewErrorResponse(req.MessageID, err), outcome{}
	}
	out := outcome{handle: req.Handle, session: session}
	if err := session.Close(); err != nil {
		return wire.NewErrorResponse(req.MessageID, err), out
	}
	return respond(req, nil, out)
}

func invalid(req *wire.Request, err error) *wire.Response {
	return wire.NewErrorResponse(req.MessageID, fmt.Errorf("%w: %v", slot.ErrInvalidArgument, err))
}

func respond(req *wire.Request, payload any, out outcome) (*wire.Response, outcome) {
	resp, err := wire.NewResponse(req.MessageID, payload)
	if err != nil {
		return wire.NewErrorResponse(req.MessageID, fmt.Errorf("%w: %v", wire.ErrInternal, err)), out
	}
	return resp, out
}
