package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CBOR map keys for message encoding.
const (
	KeyMessageID  = 1
	KeyOpOrStatus = 2 // Operation (request) or Status (response)
	KeyHandle     = 3 // Request only
	KeyPayload    = 4 // Request payload; responses carry theirs under key 3
)

// ControlMessageID is the message ID reserved for control messages.
const ControlMessageID uint32 = 0

// Request represents a message slot request from client to daemon.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32, non-zero
//	  2: operation,    // uint8: 1=Open, 2=Select, 3=Write, 4=Read, 5=Close
//	  3: handle,       // uint32, 0 for Open
//	  4: payload       // operation-specific data
//	}
type Request struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Operation Operation       `cbor:"2,keyasint"`
	Handle    uint32          `cbor:"3,keyasint"`
	Payload   cbor.RawMessage `cbor:"4,keyasint,omitempty"`
}

// NewRequest builds a request, encoding payload when it is non-nil.
func NewRequest(msgID uint32, op Operation, handle uint32, payload any) (*Request, error) {
	req := &Request{MessageID: msgID, Operation: op, Handle: handle}
	if payload != nil {
		data, err := Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", op, err)
		}
		req.Payload = data
	}
	return req, nil
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == ControlMessageID {
		return fmt.Errorf("messageId 0 is reserved for control messages")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	if r.Operation != OpOpen && r.Handle == 0 {
		return fmt.Errorf("%s requires a handle", r.Operation)
	}
	return nil
}

// DecodePayload decodes the request payload into v.
func (r *Request) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", r.Operation)
	}
	if err := Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("%s: malformed payload: %w", r.Operation, err)
	}
	return nil
}

// Response represents a daemon response to a request.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32: matches request
//	  2: status,       // uint8: 0=success, or error code
//	  3: payload       // operation-specific data, or ErrorPayload
//	}
type Response struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Status    Status          `cbor:"2,keyasint"`
	Payload   cbor.RawMessage `cbor:"3,keyasint,omitempty"`
}

// NewResponse builds a successful response carrying payload.
func NewResponse(msgID uint32, payload any) (*Response, error) {
	resp := &Response{MessageID: msgID, Status: StatusSuccess}
	if payload != nil {
		data, err := Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode response payload: %w", err)
		}
		resp.Payload = data
	}
	return resp, nil
}

// NewErrorResponse builds a response for err. The status is derived
// with StatusFromError and the error text travels in an ErrorPayload.
func NewErrorResponse(msgID uint32, err error) *Response {
	resp := &Response{MessageID: msgID, Status: StatusFromError(err)}
	if err != nil {
		// Encoding a single string field cannot fail.
		resp.Payload, _ = Marshal(&ErrorPayload{Message: err.Error()})
	}
	return resp
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// Err returns nil for a successful response and otherwise the error the
// status stands for, carrying the daemon's message when present.
func (r *Response) Err() error {
	if r.IsSuccess() {
		return nil
	}
	var ep ErrorPayload
	if len(r.Payload) > 0 {
		_ = Unmarshal(r.Payload, &ep)
	}
	return r.Status.Err(ep.Message)
}

// DecodePayload decodes the response payload into v.
func (r *Response) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("response %d: missing payload", r.MessageID)
	}
	if err := Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("response %d: malformed payload: %w", r.MessageID, err)
	}
	return nil
}

// OpenPayload is the payload of an Open request.
type OpenPayload struct {
	Minor uint32 `cbor:"1,keyasint"`
}

// OpenResponsePayload carries the handle assigned by Open.
type OpenResponsePayload struct {
	Handle uint32 `cbor:"1,keyasint"`
}

// SelectPayload is the payload of a Select request.
type SelectPayload struct {
	Channel uint32 `cbor:"1,keyasint"`
}

// WritePayload is the payload of a Write request.
//
// Data is sent as given: an empty or oversized message reaches the
// daemon and is rejected there.
type WritePayload struct {
	Data []byte `cbor:"1,keyasint"`
}

// WriteResponsePayload reports the number of bytes stored.
type WriteResponsePayload struct {
	Written uint32 `cbor:"1,keyasint"`
}

// ReadPayload is the payload of a Read request.
type ReadPayload struct {
	Capacity uint32 `cbor:"1,keyasint"`
}

// ReadResponsePayload carries the message read.
type ReadResponsePayload struct {
	Data []byte `cbor:"1,keyasint"`
}

// ErrorPayload represents additional error information in a response.
//
// CBOR encoding:
//
//	{
//	  1: message  // string: human-readable error message
//	}
type ErrorPayload struct {
	Message string `cbor:"1,keyasint,omitempty"`
}

// ControlMessage represents a transport-level control message.
//
// CBOR encoding:
//
//	{
//	  1: 0,          // messageId 0 = control
//	  2: type,       // uint8
//	  3: sequence    // uint32
//	}
type ControlMessage struct {
	MessageID uint32             `cbor:"1,keyasint"`
	Type      ControlMessageType `cbor:"2,keyasint"`
	Sequence  uint32             `cbor:"3,keyasint,omitempty"`
}

// ControlMessageType represents the type of control message.
type ControlMessageType uint8

const (
	// ControlPing is sent to check connection liveness.
	ControlPing ControlMessageType = 1

	// ControlPong is the response to a ping.
	ControlPong ControlMessageType = 2

	// ControlClose initiates graceful connection close.
	ControlClose ControlMessageType = 3
)

// IsValid reports whether t is a known control message type.
func (t ControlMessageType) IsValid() bool {
	return t >= ControlPing && t <= ControlClose
}

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlPing:
		return "ping"
	case ControlPong:
		return "pong"
	case ControlClose:
		return "close"
	default:
		return "unknown"
	}
}
