// Package transport provides the message slot transport layer.
//
// The transport layer handles:
//   - TCP connections, optionally wrapped in TLS 1.3
//   - Length-prefixed message framing
//   - Ping/pong control messages for connection liveness
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│     TLS 1.3 (optional)         │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Framing
//
// Every message is preceded by its length as a 4-byte big-endian
// integer. Frames are limited to DefaultMaxFrameSize unless configured
// otherwise. A slot message is at most 128 bytes, so no configuration may
// go below MinFrameLimit, the size of a full Write request.
//
// # TLS
//
// When enabled, only TLS 1.3 is accepted and the ALPN protocol must be
// "msgslot/1". Client certificates are not requested.
//
// # Keep-Alive
//
// Clients may monitor the connection with ping/pong messages. The server
// answers every ping with a pong carrying the same sequence number.
package transport
