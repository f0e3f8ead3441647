package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Peer is the part of a connection both ends share.
type Peer interface {
	RemoteAddr() net.Addr

	// Send writes data as one frame.
	Send(data []byte) error

	Close() error
}

// ServerConnection is the daemon's view of one client. The service keys
// its handle tables and trace events by ConnID.
type ServerConnection interface {
	Peer

	ConnID() string

	// TLSState reports the negotiated TLS state, ok is false on plain TCP.
	TLSState() (state tls.ConnectionState, ok bool)

	// Done is closed once the connection is gone.
	Done() <-chan struct{}
}

// ClientConnection is a client's link to the daemon. Receive returns
// control frames like any other frame; answering pings is up to the caller.
type ClientConnection interface {
	Peer

	LocalAddr() net.Addr

	// Receive waits up to timeout for the next frame. A zero timeout waits
	// until a frame arrives or the connection closes.
	Receive(timeout time.Duration) ([]byte, error)

	SendPing(seq uint32) error
	SendClose() error
}

// TransportServer accepts connections until stopped.
type TransportServer interface {
	Start(ctx context.Context) error
	Stop() error
	Addr() net.Addr
	ConnectionCount() int
}

// FrameReadWriter moves whole frames over a stream.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

var (
	_ ServerConnection = (*ServerConn)(nil)
	_ ClientConnection = (*ClientConn)(nil)
	_ TransportServer  = (*Server)(nil)
	_ FrameReadWriter  = (*Framer)(nil)
)
