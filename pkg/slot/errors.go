package slot

import "errors"

// Slot errors. Operations wrap these with context; use errors.Is to
// classify a failure.
var (
	// ErrInvalidArgument indicates channel id 0 on selection, or a read or
	// write on a session with no channel selected.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMessageTooLarge indicates a write of 0 bytes or more than BufferLen.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrNoMessage indicates a read on a channel that was never written.
	ErrNoMessage = errors.New("no message on channel")

	// ErrBufferTooSmall indicates a read destination smaller than the message.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrOutOfMemory indicates the registry memory limits were reached.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrCopyFault indicates the caller's source or destination could not
	// be fully read or written.
	ErrCopyFault = errors.New("copy fault")

	// ErrNoDevice indicates a minor number outside [0, MaxMinors).
	ErrNoDevice = errors.New("no such device")

	// ErrClosed indicates a closed session or a torn down registry.
	ErrClosed = errors.New("closed")
)
