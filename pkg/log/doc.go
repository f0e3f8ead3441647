// Package log provides structured protocol logging for the message slot daemon.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, service).
// It is separate from operational logging (slog): protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/msgslot/slotd.slog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw frame bytes (FrameEvent)
//   - Wire: Decoded requests and responses (MessageEvent)
//   - Service: Connection and session lifecycle (StateChangeEvent)
//
// Control messages (ping/pong/close) and errors have dedicated event types.
// Events that concern a session carry its minor and, once selected, its
// channel so a trace can be filtered per device instance or channel.
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with the .slog extension.
// The slot-log CLI tool provides viewing, filtering and statistics.
package log
