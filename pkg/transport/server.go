package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/msgslot/msgslot-go/pkg/log"
	"github.com/msgslot/msgslot-go/pkg/wire"
)

// ServerConfig configures a daemon transport server.
type ServerConfig struct {
	// Address to listen on (e.g., ":7380" or "127.0.0.1:7380").
	Address string

	// TLS enables TLS 1.3 when non-nil. Build it with LoadServerTLSConfig.
	TLS *tls.Config

	// MaxFrameSize is the largest frame payload accepted. Zero selects
	// DefaultMaxFrameSize; values below MinFrameLimit are raised to it.
	MaxFrameSize uint32

	// Logger for protocol logging (optional).
	Logger log.Logger

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnMessage is called for every non-control frame, in arrival order.
	OnMessage func(conn *ServerConn, msg []byte)

	// OnError is called when an error occurs. conn is nil for errors
	// that happen before a connection is established.
	OnError func(conn *ServerConn, err error)
}

// Server accepts client connections and dispatches their frames.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	config.MaxFrameSize = frameLimit(config.MaxFrameSize)
	if config.TLS != nil && config.TLS.MinVersion != tls.VersionTLS13 {
		return nil, fmt.Errorf("TLS config must require TLS 1.3")
	}

	return &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}, nil
}

// Start starts the server and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop stops the server and closes all connections.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()

	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// TLSEnabled reports whether connections are wrapped in TLS.
func (s *Server) TLSEnabled() bool {
	return s.config.TLS != nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() && s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handshake wraps conn in TLS when enabled.
func (s *Server) handshake(conn net.Conn) (net.Conn, *tls.ConnectionState, error) {
	if s.config.TLS == nil {
		return conn, nil, nil
	}

	tlsConn := tls.Server(conn, s.config.TLS)
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, nil, fmt.Errorf("TLS handshake failed: %w", err)
	}

	state := tlsConn.ConnectionState()
	if err := VerifyConnection(state); err != nil {
		tlsConn.Close()
		return nil, nil, err
	}
	return tlsConn, &state, nil
}

func (s *Server) handleConnection(raw net.Conn) {
	defer s.wg.Done()

	conn, tlsState, err := s.handshake(raw)
	if err != nil {
		raw.Close()
		if s.config.OnError != nil {
			s.config.OnError(nil, err)
		}
		return
	}

	connID := uuid.New().String()

	framer := NewFramer(conn, s.config.MaxFrameSize)
	if s.config.Logger != nil {
		framer.Trace(s.config.Logger, connID)
	}

	sconn := &ServerConn{
		conn:       conn,
		framer:     framer,
		tlsState:   tlsState,
		server:     s,
		closeCh:    make(chan struct{}),
		remoteAddr: raw.RemoteAddr(),
		connID:     connID,
	}

	s.logConnectionState(sconn, "", "CONNECTED")

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		sconn.Close()
		return
	}
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()
	sconn.Close()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	s.logConnectionState(sconn, "CONNECTED", "DISCONNECTED")

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *Server) logConnectionState(c *ServerConn, oldState, newState string) {
	if s.config.Logger == nil {
		return
	}
	s.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.remoteAddr.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

// ServerConn represents a client connection to the server.
type ServerConn struct {
	conn       net.Conn
	framer     FrameReadWriter
	tlsState   *tls.ConnectionState
	server     *Server
	closeCh    chan struct{}
	closeOnce  sync.Once
	remoteAddr net.Addr
	connID     string
}

// RemoteAddr returns the remote address of the client.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// TLSState returns the TLS connection state. ok is false for plain TCP.
func (c *ServerConn) TLSState() (state tls.ConnectionState, ok bool) {
	if c.tlsState == nil {
		return tls.ConnectionState{}, false
	}
	return *c.tlsState, true
}

// Send sends a message to the client.
func (c *ServerConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// Done returns a channel closed when the connection closes.
func (c *ServerConn) Done() <-chan struct{} {
	return c.closeCh
}

func (c *ServerConn) readLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case <-c.server.ctx.Done():
			return
		default:
		}

		data, err := c.framer.ReadFrame()
		if err != nil {
			if c.server.config.OnError != nil && c.server.running.Load() && !isClosedConnError(err) {
				select {
				case <-c.closeCh:
				default:
					c.server.config.OnError(c, err)
				}
			}
			return
		}

		msgType, peekErr := wire.PeekMessageType(data)
		if peekErr == nil && msgType == wire.MessageTypeControl {
			if ctrlMsg, err := wire.DecodeControlMessage(data); err == nil {
				c.handleControlMessage(ctrlMsg)
				continue
			}
		}

		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, data)
		}
	}
}

func (c *ServerConn) handleControlMessage(msg *wire.ControlMessage) {
	c.logControlMessage(msg, log.DirectionIn)

	switch msg.Type {
	case wire.ControlPing:
		pong := &wire.ControlMessage{Type: wire.ControlPong, Sequence: msg.Sequence}
		if data, err := wire.EncodeControlMessage(pong); err == nil {
			c.Send(data)
			c.logControlMessage(pong, log.DirectionOut)
		}

	case wire.ControlPong:
		// Server does not ping.

	case wire.ControlClose:
		ack := &wire.ControlMessage{Type: wire.ControlClose}
		if data, err := wire.EncodeControlMessage(ack); err == nil {
			c.Send(data)
			c.logControlMessage(ack, log.DirectionOut)
		}
		c.Close()
	}
}

func (c *ServerConn) logControlMessage(msg *wire.ControlMessage, direction log.Direction) {
	if c.server.config.Logger == nil {
		return
	}
	ctrlType, ok := controlMsgType(msg.Type)
	if !ok {
		return
	}

	c.server.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		RemoteAddr:   c.remoteAddr.String(),
		ControlMsg: &log.ControlMsgEvent{
			Type:     ctrlType,
			Sequence: msg.Sequence,
		},
	})
}

func controlMsgType(t wire.ControlMessageType) (log.ControlMsgType, bool) {
	switch t {
	case wire.ControlPing:
		return log.ControlMsgPing, true
	case wire.ControlPong:
		return log.ControlMsgPong, true
	case wire.ControlClose:
		return log.ControlMsgClose, true
	default:
		return 0, false
	}
}

// EncodePing encodes a ping control message.
func EncodePing(seq uint32) ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{
		Type:     wire.ControlPing,
		Sequence: seq,
	})
}

// EncodeClose encodes a close control message.
func EncodeClose() ([]byte, error) {
	return wire.EncodeControlMessage(&wire.ControlMessage{
		Type: wire.ControlClose,
	})
}
