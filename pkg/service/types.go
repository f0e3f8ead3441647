package service

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/msgslot/msgslot-go/pkg/log"
	"github.com/msgslot/msgslot-go/pkg/transport"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateStarting - service is starting up.
	StateStarting

	// StateRunning - service is running normally.
	StateRunning

	// StateStopping - service is shutting down.
	StateStopping

	// StateStopped - service has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ServiceConfig configures a SlotService.
type ServiceConfig struct {
	// ListenAddress is the address to listen on (e.g., ":7380").
	ListenAddress string

	// TLSConfig enables TLS 1.3 when non-nil.
	TLSConfig *tls.Config

	// MaxHandlesPerConn limits the sessions one connection may hold open.
	MaxHandlesPerConn int

	// MaxFrameSize is the largest frame payload accepted. Zero selects
	// transport.DefaultMaxFrameSize.
	MaxFrameSize uint32

	// IdleTimeout closes connections that sent no request for this long.
	// Zero disables the reaper.
	IdleTimeout time.Duration

	// InstanceName is the mDNS instance name used when an advertiser is set.
	InstanceName string

	// Registerer receives the service metrics. If nil, metrics are
	// collected but not registered anywhere.
	Registerer prometheus.Registerer

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives protocol events (optional).
	ProtocolLogger log.Logger
}

// DefaultServiceConfig returns a ServiceConfig with sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddress:     ":7380",
		MaxHandlesPerConn: 64,
		MaxFrameSize:      transport.DefaultMaxFrameSize,
	}
}

// Validate checks if the service config is valid.
func (c *ServiceConfig) Validate() error {
	if c.MaxHandlesPerConn < 1 {
		return ErrInvalidConfig
	}
	if c.IdleTimeout < 0 {
		return ErrInvalidConfig
	}
	if c.MaxFrameSize != 0 && c.MaxFrameSize < transport.MinFrameLimit {
		return ErrInvalidConfig
	}
	if c.TLSConfig != nil && c.TLSConfig.MinVersion != tls.VersionTLS13 {
		return ErrInvalidConfig
	}
	return nil
}

// Event types for service callbacks.
type EventType uint8

const (
	// EventConnected - client connection established.
	EventConnected EventType = iota

	// EventDisconnected - client connection closed.
	EventDisconnected

	// EventHandleOpened - a session was opened.
	EventHandleOpened

	// EventChannelSelected - a session was bound to a channel.
	EventChannelSelected

	// EventHandleClosed - a session was closed.
	EventHandleClosed
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventHandleOpened:
		return "HANDLE_OPENED"
	case EventChannelSelected:
		return "CHANNEL_SELECTED"
	case EventHandleClosed:
		return "HANDLE_CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Event represents a service event.
type Event struct {
	// Type is the event type.
	Type EventType

	// ConnID identifies the connection.
	ConnID string

	// RemoteAddr is the peer address.
	RemoteAddr string

	// Handle is the session handle (for handle events).
	Handle uint32

	// Minor is the device instance (for handle events).
	Minor int

	// Channel is the selected channel (for EventChannelSelected).
	Channel uint32
}

// EventHandler handles service events.
type EventHandler func(Event)
