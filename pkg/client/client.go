package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/msgslot/msgslot-go/pkg/discovery"
	"github.com/msgslot/msgslot-go/pkg/log"
	"github.com/msgslot/msgslot-go/pkg/transport"
	"github.com/msgslot/msgslot-go/pkg/wire"
)

// Client errors.
var (
	ErrRequestTimeout  = errors.New("request timed out")
	ErrClientClosed    = errors.New("client is closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
	ErrPeerUnreachable = errors.New("daemon stopped answering pings")
)

// Options configures a connection.
type Options struct {
	// TLS enables TLS 1.3 when non-nil.
	TLS *tls.Config

	// RequestTimeout bounds each request when ctx has no deadline.
	// Default: 10 seconds.
	RequestTimeout time.Duration

	// ConnectTimeout bounds dialing. Default: 10 seconds.
	ConnectTimeout time.Duration

	// KeepAlive enables periodic pings with this configuration.
	KeepAlive *transport.KeepAliveConfig

	// Logger receives protocol events (optional).
	Logger log.Logger
}

// Conn is a connection to a daemon.
type Conn struct {
	conn      transport.ClientConnection
	keepAlive *transport.KeepAlive
	timeout   time.Duration

	nextMsgID atomic.Uint32

	pending   map[uint32]chan *wire.Response
	pendingMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial connects to the daemon at addr.
func Dial(ctx context.Context, addr string, opts Options) (*Conn, error) {
	tc := transport.NewClient(transport.ClientConfig{
		TLS:            opts.TLS,
		ConnectTimeout: opts.ConnectTimeout,
		Logger:         opts.Logger,
	})
	conn, err := tc.Connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	return newConn(conn, opts), nil
}

// newConn starts serving an established connection.
func newConn(conn transport.ClientConnection, opts Options) *Conn {
	c := &Conn{
		conn:    conn,
		timeout: opts.RequestTimeout,
		pending: make(map[uint32]chan *wire.Response),
		closed:  make(chan struct{}),
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}

	if opts.KeepAlive != nil {
		c.keepAlive = transport.NewKeepAlive(*opts.KeepAlive, conn.SendPing, func() {
			c.shutdown(ErrPeerUnreachable)
		})
		c.keepAlive.Start(context.Background())
	}

	go c.readLoop()
	return c
}

// DialDiscovered finds a daemon with browser and connects to it.
func DialDiscovered(ctx context.Context, browser discovery.Browser, opts Options) (*Conn, error) {
	svc, err := browser.Find(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover daemon: %w", err)
	}
	if svc.TLS && opts.TLS == nil {
		return nil, fmt.Errorf("daemon %s requires TLS", svc.InstanceName)
	}
	return Dial(ctx, svc.Addr(), opts)
}

// Close asks the daemon to close the connection and releases it. The
// daemon closes every File still open on the connection.
func (c *Conn) Close() error {
	_ = c.conn.SendClose()
	c.shutdown(ErrClientClosed)
	return nil
}

// Done returns a channel closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Err returns why the connection closed, or nil while it is open.
func (c *Conn) Err() error {
	select {
	case <-c.closed:
		return c.err
	default:
		return nil
	}
}

// Latency returns the last measured ping round trip. Zero without
// keep-alive.
func (c *Conn) Latency() time.Duration {
	if c.keepAlive == nil {
		return 0
	}
	return c.keepAlive.Latency()
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.closed)
		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}
		_ = c.conn.Close()

		c.pendingMu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	})
}

func (c *Conn) readLoop() {
	for {
		data, err := c.conn.Receive(0)
		if err != nil {
			if errors.Is(err, transport.ErrConnectionClosed) {
				err = ErrClientClosed
			}
			c.shutdown(err)
			return
		}

		msgType, err := wire.PeekMessageType(data)
		if err != nil {
			continue
		}

		switch msgType {
		case wire.MessageTypeControl:
			c.handleControl(data)
		case wire.MessageTypeResponse:
			resp, err := wire.DecodeResponse(data)
			if err != nil {
				continue
			}
			_ = c.handleResponse(resp)
		}
	}
}

func (c *Conn) handleControl(data []byte) {
	msg, err := wire.DecodeControlMessage(data)
	if err != nil {
		return
	}
	switch msg.Type {
	case wire.ControlPong:
		if c.keepAlive != nil {
			c.keepAlive.PongReceived(msg.Sequence)
		}
	case wire.ControlPing:
		pong, err := wire.EncodeControlMessage(&wire.ControlMessage{Type: wire.ControlPong, Sequence: msg.Sequence})
		if err == nil {
			_ = c.conn.Send(pong)
		}
	case wire.ControlClose:
		c.shutdown(ErrClientClosed)
	}
}

// handleResponse delivers resp to the request waiting for it.
func (c *Conn) handleResponse(resp *wire.Response) error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	ch, exists := c.pending[resp.MessageID]
	if !exists {
		return ErrUnexpectedReply
	}

	// ch is buffered and only closed under pendingMu.
	select {
	case ch <- resp:
	default:
	}
	return nil
}

// nextMessageID generates the next unique message ID. Zero is reserved
// for control messages and is skipped.
func (c *Conn) nextMessageID() uint32 {
	for {
		if id := c.nextMsgID.Add(1); id != wire.ControlMessageID {
			return id
		}
	}
}

// roundTrip sends a request and waits for its response. A response with
// an error status is returned as that error.
func (c *Conn) roundTrip(ctx context.Context, op wire.Operation, handle uint32, payload, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req, err := wire.NewRequest(c.nextMessageID(), op, handle, payload)
	if err != nil {
		return err
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return err
	}

	respCh := make(chan *wire.Response, 1)

	c.pendingMu.Lock()
	select {
	case <-c.closed:
		c.pendingMu.Unlock()
		return c.err
	default:
	}
	c.pending[req.MessageID] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.MessageID)
		c.pendingMu.Unlock()
	}()

	if err := c.conn.Send(data); err != nil {
		return err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrRequestTimeout
	case resp, ok := <-respCh:
		if !ok {
			return c.Err()
		}
		if err := resp.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if out != nil {
			return resp.DecodePayload(out)
		}
		return nil
	}
}
