package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/msgslot/msgslot-go/pkg/discovery"
	"github.com/msgslot/msgslot-go/pkg/log"
	"github.com/msgslot/msgslot-go/pkg/slot"
	"github.com/msgslot/msgslot-go/pkg/transport"
	"github.com/msgslot/msgslot-go/pkg/wire"
)

// SlotService serves a slot.Registry to network clients.
type SlotService struct {
	mu sync.RWMutex

	config   ServiceConfig
	registry *slot.Registry
	state    ServiceState

	server transport.TransportServer

	// Per-connection protocol handlers
	conns map[*transport.ServerConn]*ProtocolHandler

	// Idle connection reaper
	connTracker *connTracker
	reaperDone  chan struct{}

	advertiser discovery.Advertiser
	metrics    *metrics

	eventHandlers []EventHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSlotService creates a service for registry. The caller keeps
// ownership of the registry and closes it after Stop.
func NewSlotService(registry *slot.Registry, config ServiceConfig) (*SlotService, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = transport.DefaultMaxFrameSize
	}
	if config.InstanceName == "" {
		config.InstanceName = discovery.DefaultInstanceName
	}

	svc := &SlotService{
		config:      config,
		registry:    registry,
		state:       StateIdle,
		conns:       make(map[*transport.ServerConn]*ProtocolHandler),
		connTracker: newConnTracker(),
	}
	svc.metrics = newMetrics(config.Registerer, registry, svc.OpenHandles)
	return svc, nil
}

// Registry returns the served registry.
func (s *SlotService) Registry() *slot.Registry {
	return s.registry
}

// State returns the current service state.
func (s *SlotService) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnEvent registers an event handler.
func (s *SlotService) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// SetAdvertiser sets the discovery advertiser. Must be called before Start.
func (s *SlotService) SetAdvertiser(advertiser discovery.Advertiser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advertiser = advertiser
}

// Start listens for connections and, with an advertiser set, announces
// the service.
func (s *SlotService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	advertiser := s.advertiser
	s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)

	server, err := transport.NewServer(transport.ServerConfig{
		Address:      s.config.ListenAddress,
		TLS:          s.config.TLSConfig,
		MaxFrameSize: s.config.MaxFrameSize,
		Logger:       s.config.ProtocolLogger,
		OnConnect:    s.handleConnect,
		OnDisconnect: s.handleDisconnect,
		OnMessage:    s.handleMessage,
		OnError:      s.handleError,
	})
	if err == nil {
		err = server.Start(s.ctx)
	}
	if err != nil {
		s.cancel()
		s.setState(StateIdle)
		return err
	}
	s.server = server

	if advertiser != nil {
		info := &discovery.ServiceInfo{
			InstanceName: s.config.InstanceName,
			Port:         parsePort(server.Addr()),
			Minors:       slot.MaxMinors,
			BufferLen:    slot.BufferLen,
			TLS:          server.TLSEnabled(),
		}
		if err := advertiser.Advertise(s.ctx, info); err != nil {
			_ = server.Stop()
			s.cancel()
			s.setState(StateIdle)
			return fmt.Errorf("advertise: %w", err)
		}
	}

	s.reaperDone = make(chan struct{})
	go s.reapIdle(s.ctx, s.reaperDone)

	s.setState(StateRunning)
	s.debugLog("slot service started", "addr", server.Addr().String(), "tls", server.TLSEnabled())
	return nil
}

// Stop closes every connection and withdraws the advertisement. The
// registry is left intact.
func (s *SlotService) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	advertiser := s.advertiser
	s.mu.Unlock()

	var errs []error
	if advertiser != nil {
		if err := advertiser.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop advertiser: %w", err))
		}
	}

	s.cancel()
	<-s.reaperDone

	if err := s.server.Stop(); err != nil {
		errs = append(errs, err)
	}

	s.setState(StateStopped)
	s.debugLog("slot service stopped")
	return errors.Join(errs...)
}

// Addr returns the listen address, or nil when not started.
func (s *SlotService) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return nil
	}
	return s.server.Addr()
}

// ConnectionCount returns the number of connected clients.
func (s *SlotService) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// OpenHandles returns the number of open sessions across connections.
func (s *SlotService) OpenHandles() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, h := range s.conns {
		n += h.OpenHandles()
	}
	return n
}

func (s *SlotService) setState(state ServiceState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *SlotService) handleConnect(conn *transport.ServerConn) {
	handler := NewProtocolHandler(s.registry, s.config.MaxHandlesPerConn)

	s.mu.Lock()
	s.conns[conn] = handler
	s.mu.Unlock()

	s.connTracker.Add(conn)
	s.metrics.connections.Inc()

	s.debugLog("client connected", "conn", conn.ConnID(), "remote", conn.RemoteAddr().String())
	s.emitEvent(Event{
		Type:       EventConnected,
		ConnID:     conn.ConnID(),
		RemoteAddr: conn.RemoteAddr().String(),
	})
}

func (s *SlotService) handleDisconnect(conn *transport.ServerConn) {
	s.mu.Lock()
	handler, ok := s.conns[conn]
	delete(s.conns, conn)
	s.mu.Unlock()

	s.connTracker.Remove(conn)
	if !ok {
		return
	}
	s.metrics.connections.Dec()

	closed := handler.Close()
	s.debugLog("client disconnected", "conn", conn.ConnID(), "closedHandles", closed)
	s.emitEvent(Event{
		Type:       EventDisconnected,
		ConnID:     conn.ConnID(),
		RemoteAddr: conn.RemoteAddr().String(),
	})
}

func (s *SlotService) handleMessage(conn *transport.ServerConn, data []byte) {
	start := time.Now()
	s.connTracker.Touch(conn)

	s.mu.RLock()
	handler := s.conns[conn]
	s.mu.RUnlock()
	if handler == nil {
		return
	}

	var req wire.Request
	if err := wire.Unmarshal(data, &req); err != nil || req.MessageID == wire.ControlMessageID {
		if err == nil {
			err = fmt.Errorf("unexpected control message")
		}
		s.logError(conn, log.LayerWire, fmt.Errorf("decode request: %w", err), "")
		return
	}

	s.logRequest(conn, &req)

	resp, out := handler.handle(&req)

	out.length = lengthOf(out.length, resp)
	elapsed := time.Since(start)
	s.metrics.observe(req.Operation, resp.Status, out.length, elapsed)

	encoded, err := wire.EncodeResponse(resp)
	if err == nil {
		err = conn.Send(encoded)
	}
	if err != nil {
		s.logError(conn, log.LayerWire, fmt.Errorf("send response %d: %w", resp.MessageID, err), req.Operation.String())
		return
	}

	s.logResponse(conn, req.Operation, resp, out, elapsed)
	if resp.IsSuccess() {
		s.sessionChanged(conn, req.Operation, out)
	}
}

// lengthOf keeps the length only for successful responses.
func lengthOf(length *int, resp *wire.Response) *int {
	if !resp.IsSuccess() {
		return nil
	}
	return length
}

func (s *SlotService) handleError(conn *transport.ServerConn, err error) {
	if conn == nil {
		s.debugLog("transport error", "error", err)
		return
	}
	s.logError(conn, log.LayerTransport, err, "")
}

// sessionChanged logs and emits the session state change of a successful
// Open, Select or Close.
func (s *SlotService) sessionChanged(conn transport.ServerConnection, op wire.Operation, out outcome) {
	var (
		eventType EventType
		old, next string
	)
	switch op {
	case wire.OpOpen:
		eventType, next = EventHandleOpened, log.SessionOpen
	case wire.OpSelect:
		eventType, old, next = EventChannelSelected, log.SessionOpen, log.SessionSelected
	case wire.OpClose:
		eventType, next = EventHandleClosed, log.SessionClosed
	default:
		return
	}

	minor, channel := sessionPosition(out.session)
	if op == wire.OpSelect && channel == nil {
		return
	}

	if s.config.ProtocolLogger != nil {
		s.config.ProtocolLogger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: conn.ConnID(),
			Layer:        log.LayerService,
			Category:     log.CategoryState,
			RemoteAddr:   conn.RemoteAddr().String(),
			Minor:        minor,
			Channel:      channel,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntitySession,
				OldState: old,
				NewState: next,
				Reason:   fmt.Sprintf("handle %d", out.handle),
			},
		})
	}

	event := Event{
		Type:       eventType,
		ConnID:     conn.ConnID(),
		RemoteAddr: conn.RemoteAddr().String(),
		Handle:     out.handle,
	}
	if minor != nil {
		event.Minor = int(*minor)
	}
	if channel != nil {
		event.Channel = *channel
	}
	s.emitEvent(event)
}

func (s *SlotService) logRequest(conn transport.ServerConnection, req *wire.Request) {
	if s.config.ProtocolLogger == nil {
		return
	}
	op := req.Operation
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.ConnID(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		RemoteAddr:   conn.RemoteAddr().String(),
		Message: &log.MessageEvent{
			Type:      log.MessageTypeRequest,
			MessageID: req.MessageID,
			Operation: &op,
			Handle:    log.Uint32(req.Handle),
		},
	})
}

func (s *SlotService) logResponse(conn transport.ServerConnection, op wire.Operation, resp *wire.Response, out outcome, elapsed time.Duration) {
	if s.config.ProtocolLogger == nil {
		return
	}
	status := resp.Status
	minor, channel := sessionPosition(out.session)
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.ConnID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		RemoteAddr:   conn.RemoteAddr().String(),
		Minor:        minor,
		Channel:      channel,
		Message: &log.MessageEvent{
			Type:           log.MessageTypeResponse,
			MessageID:      resp.MessageID,
			Operation:      &op,
			Status:         &status,
			Length:         out.length,
			ProcessingTime: &elapsed,
		},
	})
}

func (s *SlotService) logError(conn transport.ServerConnection, layer log.Layer, err error, during string) {
	s.debugLog("connection error", "conn", conn.ConnID(), "error", err)
	if s.config.ProtocolLogger == nil {
		return
	}
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.ConnID(),
		Layer:        layer,
		Category:     log.CategoryError,
		RemoteAddr:   conn.RemoteAddr().String(),
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: during,
		},
	})
}

// reapIdle closes idle connections until ctx is done.
func (s *SlotService) reapIdle(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	if s.config.IdleTimeout <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.config.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.connTracker.CloseStale(s.config.IdleTimeout); n > 0 {
				s.metrics.reaped.Add(float64(n))
				s.debugLog("closed idle connections", "count", n)
			}
		}
	}
}

// emitEvent sends an event to all registered handlers.
func (s *SlotService) emitEvent(event Event) {
	s.mu.RLock()
	handlers := s.eventHandlers
	s.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// debugLog logs a debug message if logging is enabled.
func (s *SlotService) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

// sessionPosition returns the minor and bound channel of session for
// logging. channel is nil while unbound.
func sessionPosition(session *slot.Session) (minor *uint16, channel *uint32) {
	if session == nil {
		return nil, nil
	}
	minor = log.Uint16(uint16(session.Minor()))
	if ch := session.Channel(); ch != slot.NoChannel {
		channel = log.Uint32(ch)
	}
	return minor, channel
}

// parsePort extracts the port of a listener address.
func parsePort(addr net.Addr) uint16 {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return transport.DefaultPort
}
