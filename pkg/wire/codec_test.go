package wire

import (
	"bytes"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		handle  uint32
		payload any
	}{
		{"open", OpOpen, 0, &OpenPayload{Minor: 3}},
		{"select", OpSelect, 1, &SelectPayload{Channel: 7}},
		{"write", OpWrite, 1, &WritePayload{Data: []byte("hello")}},
		{"read", OpRead, 2, &ReadPayload{Capacity: 128}},
		{"close", OpClose, 2, nil},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(uint32(i+1), tt.op, tt.handle, tt.payload)
			if err != nil {
				t.Fatalf("NewRequest failed: %v", err)
			}

			data, err := EncodeRequest(req)
			if err != nil {
				t.Fatalf("EncodeRequest failed: %v", err)
			}

			decoded, err := DecodeRequest(data)
			if err != nil {
				t.Fatalf("DecodeRequest failed: %v", err)
			}

			if decoded.MessageID != req.MessageID {
				t.Errorf("MessageID: got %d, want %d", decoded.MessageID, req.MessageID)
			}
			if decoded.Operation != tt.op {
				t.Errorf("Operation: got %v, want %v", decoded.Operation, tt.op)
			}
			if decoded.Handle != tt.handle {
				t.Errorf("Handle: got %d, want %d", decoded.Handle, tt.handle)
			}
			if !bytes.Equal(decoded.Payload, req.Payload) {
				t.Errorf("Payload: got %x, want %x", decoded.Payload, req.Payload)
			}
		})
	}
}

func TestRequestPayloadDecoding(t *testing.T) {
	req, err := NewRequest(9, OpWrite, 4, &WritePayload{Data: []byte{0, 1, 2, 0xff}})
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	data, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	decoded, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}

	var wp WritePayload
	if err := decoded.DecodePayload(&wp); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if !bytes.Equal(wp.Data, []byte{0, 1, 2, 0xff}) {
		t.Errorf("Data: got %x", wp.Data)
	}

	closeReq := &Request{MessageID: 10, Operation: OpClose, Handle: 4}
	if err := closeReq.DecodePayload(&wp); err == nil {
		t.Error("expected error for missing payload")
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp, err := NewResponse(5, &ReadResponsePayload{Data: []byte("hi")})
	if err != nil {
		t.Fatalf("NewResponse failed: %v", err)
	}

	data, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}

	decoded, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if decoded.MessageID != 5 {
		t.Errorf("MessageID: got %d, want 5", decoded.MessageID)
	}
	if !decoded.IsSuccess() {
		t.Errorf("Status: got %v, want SUCCESS", decoded.Status)
	}
	if err := decoded.Err(); err != nil {
		t.Errorf("Err: got %v, want nil", err)
	}

	var rp ReadResponsePayload
	if err := decoded.DecodePayload(&rp); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if string(rp.Data) != "hi" {
		t.Errorf("Data: got %q, want %q", rp.Data, "hi")
	}
}

func TestEncodeResponseRejectsControlID(t *testing.T) {
	if _, err := EncodeResponse(&Response{MessageID: 0}); err == nil {
		t.Error("expected error for messageId 0")
	}
}

func TestControlMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  ControlMessage
	}{
		{"ping", ControlMessage{Type: ControlPing, Sequence: 1}},
		{"pong", ControlMessage{Type: ControlPong, Sequence: 1}},
		{"close", ControlMessage{Type: ControlClose}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeControlMessage(&tt.msg)
			if err != nil {
				t.Fatalf("EncodeControlMessage failed: %v", err)
			}

			decoded, err := DecodeControlMessage(data)
			if err != nil {
				t.Fatalf("DecodeControlMessage failed: %v", err)
			}
			if decoded.Type != tt.msg.Type {
				t.Errorf("Type: got %v, want %v", decoded.Type, tt.msg.Type)
			}
			if decoded.Sequence != tt.msg.Sequence {
				t.Errorf("Sequence: got %d, want %d", decoded.Sequence, tt.msg.Sequence)
			}
		})
	}
}

func TestDecodeControlMessageRejectsRequest(t *testing.T) {
	req, _ := NewRequest(3, OpClose, 1, nil)
	data, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	if _, err := DecodeControlMessage(data); err == nil {
		t.Error("expected error decoding request as control message")
	}
}

func TestDecodeControlMessageRejectsUnknownType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty map", []byte{0xa0}},
		{"type zero", []byte{0xa2, 0x01, 0x00, 0x02, 0x00}},
		{"type nine", []byte{0xa2, 0x01, 0x00, 0x02, 0x09}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeControlMessage(tt.data); err == nil {
				t.Error("expected error for unknown control type")
			}
		})
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid open", Request{MessageID: 1, Operation: OpOpen}, false},
		{"valid read", Request{MessageID: 1, Operation: OpRead, Handle: 1}, false},
		{"control message id", Request{MessageID: 0, Operation: OpOpen}, true},
		{"unknown operation", Request{MessageID: 1, Operation: 0}, true},
		{"operation out of range", Request{MessageID: 1, Operation: 6, Handle: 1}, true},
		{"missing handle", Request{MessageID: 1, Operation: OpWrite}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPeekMessageType(t *testing.T) {
	mustEncode := func(data []byte, err error) []byte {
		t.Helper()
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		return data
	}

	openReq, _ := NewRequest(1, OpOpen, 0, &OpenPayload{Minor: 0})
	closeReq, _ := NewRequest(2, OpClose, 7, nil)
	openResp, _ := NewResponse(1, &OpenResponsePayload{Handle: 1})

	tests := []struct {
		name string
		data []byte
		want MessageType
	}{
		{"open request with handle 0", mustEncode(EncodeRequest(openReq)), MessageTypeRequest},
		{"close request without payload", mustEncode(EncodeRequest(closeReq)), MessageTypeRequest},
		{"response with payload", mustEncode(EncodeResponse(openResp)), MessageTypeResponse},
		{"response without payload", mustEncode(EncodeResponse(&Response{MessageID: 2})), MessageTypeResponse},
		{"error response", mustEncode(EncodeResponse(NewErrorResponse(3, ErrBadHandle))), MessageTypeResponse},
		{"ping", mustEncode(EncodeControlMessage(&ControlMessage{Type: ControlPing, Sequence: 4})), MessageTypeControl},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PeekMessageType(tt.data)
			if err != nil {
				t.Fatalf("PeekMessageType failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := PeekMessageType([]byte{0xff}); err == nil {
		t.Error("expected error for malformed data")
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	// {1: 4, 2: 5, 3: 9, 99: "future"}
	type future struct {
		MessageID uint32    `cbor:"1,keyasint"`
		Operation Operation `cbor:"2,keyasint"`
		Handle    uint32    `cbor:"3,keyasint"`
		Extra     string    `cbor:"99,keyasint"`
	}
	data, err := Marshal(future{MessageID: 4, Operation: OpClose, Handle: 9, Extra: "future"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	req, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}
	if req.Operation != OpClose || req.Handle != 9 {
		t.Errorf("got %+v", req)
	}
}

func TestCBORCompactness(t *testing.T) {
	req, _ := NewRequest(1, OpRead, 1, &ReadPayload{Capacity: 128})
	data, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}

	// A read request fits comfortably in a small frame.
	if len(data) > 16 {
		t.Errorf("read request too large: %d bytes", len(data))
	}
}
