// Package wire defines the CBOR wire format of the message slot protocol.
//
// Messages use CBOR (RFC 8949) with integer keys and are carried in
// length-prefixed frames by the transport package.
//
// # Message Types
//
//   - Request: client to daemon (Open, Select, Write, Read, Close)
//   - Response: daemon to client, carrying a Status and an optional payload
//   - Control: either direction (ping, pong, close)
//
// # Handles
//
// Open returns a handle that names one session on the daemon, the way a
// file descriptor names an open device node. Every other operation
// addresses a handle. Handles are scoped to the connection that opened
// them and are released when it closes.
//
// # Message IDs
//
// Requests carry a non-zero message ID that the matching response
// echoes. Message ID 0 is reserved for control messages, which lets
// PeekMessageType classify a frame without decoding all of it.
package wire
