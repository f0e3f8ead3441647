package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/msgslot/msgslot-go/pkg/log"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
)

// ClientConfig configures a transport client.
type ClientConfig struct {
	// TLS enables TLS 1.3 when non-nil. Build it with LoadClientTLSConfig.
	TLS *tls.Config

	// MaxFrameSize is the largest frame payload accepted. Zero selects
	// DefaultMaxFrameSize; values below MinFrameLimit are raised to it.
	MaxFrameSize uint32

	// ConnectTimeout bounds dialing and the handshake (default: 10s).
	ConnectTimeout time.Duration

	// Logger for protocol logging (optional).
	Logger log.Logger
}

// Client dials daemons.
type Client struct {
	config ClientConfig
}

// NewClient creates a new client.
func NewClient(config ClientConfig) *Client {
	config.MaxFrameSize = frameLimit(config.MaxFrameSize)
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	return &Client{config: config}
}

// Connect establishes a connection to the specified address.
func (c *Client) Connect(ctx context.Context, address string) (*ClientConn, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	var state *tls.ConnectionState
	if c.config.TLS != nil {
		tlsConn := tls.Client(conn, c.config.TLS)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		s := tlsConn.ConnectionState()
		if err := VerifyConnection(s); err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("connection verification failed: %w", err)
		}
		conn, state = tlsConn, &s
	}

	framer := NewFramer(conn, c.config.MaxFrameSize)
	if c.config.Logger != nil {
		framer.Trace(c.config.Logger, conn.LocalAddr().String())
	}

	return &ClientConn{
		conn:     conn,
		framer:   framer,
		tlsState: state,
		closeCh:  make(chan struct{}),
	}, nil
}

// ClientConn represents a connection from client to daemon.
type ClientConn struct {
	conn     net.Conn
	framer   FrameReadWriter
	tlsState *tls.ConnectionState
	closeCh  chan struct{}

	closeOnce sync.Once
	readMu    sync.Mutex
}

// TLSState returns the TLS connection state. ok is false for plain TCP.
func (c *ClientConn) TLSState() (state tls.ConnectionState, ok bool) {
	if c.tlsState == nil {
		return tls.ConnectionState{}, false
	}
	return *c.tlsState, true
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send sends a message to the daemon.
func (c *ClientConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Receive receives a message from the daemon. A zero timeout blocks
// until a frame arrives or the connection closes.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	data, err := c.framer.ReadFrame()
	if err != nil && c.isClosed() {
		return nil, ErrConnectionClosed
	}
	return data, err
}

// Close closes the connection.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// SendPing sends a ping control message.
func (c *ClientConn) SendPing(seq uint32) error {
	msg, err := EncodePing(seq)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendClose sends a close control message.
func (c *ClientConn) SendClose() error {
	msg, err := EncodeClose()
	if err != nil {
		return err
	}
	return c.Send(msg)
}

func (c *ClientConn) isClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// isClosedConnError reports errors that just mean the peer went away.
func isClosedConnError(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, ErrConnectionClosed)
}
