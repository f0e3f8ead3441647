package wire

import (
	"errors"
	"fmt"

	"github.com/msgslot/msgslot-go/pkg/slot"
)

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusInvalidArgument indicates channel 0 or an unbound handle.
	StatusInvalidArgument Status = 1

	// StatusMessageTooLarge indicates an empty or oversized write.
	StatusMessageTooLarge Status = 2

	// StatusNoMessage indicates a read on a channel with no message.
	StatusNoMessage Status = 3

	// StatusBufferTooSmall indicates a read capacity below the message length.
	StatusBufferTooSmall Status = 4

	// StatusOutOfMemory indicates the daemon's memory limits were reached.
	StatusOutOfMemory Status = 5

	// StatusCopyFault indicates a payload that could not be fully transferred.
	StatusCopyFault Status = 6

	// StatusNoDevice indicates a minor number out of range.
	StatusNoDevice Status = 7

	// StatusBadHandle indicates a handle not open on this connection.
	StatusBadHandle Status = 8

	// StatusUnsupported indicates an unknown operation.
	StatusUnsupported Status = 9

	// StatusBusy indicates the connection has too many open handles.
	StatusBusy Status = 10

	// StatusClosed indicates the daemon is shutting down.
	StatusClosed Status = 11

	// StatusInternal indicates an unexpected daemon error.
	StatusInternal Status = 12
)

// Wire-level errors without a slot equivalent.
var (
	ErrBadHandle   = errors.New("bad handle")
	ErrUnsupported = errors.New("unsupported operation")
	ErrBusy        = errors.New("too many open handles")
	ErrInternal    = errors.New("internal error")
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusMessageTooLarge:
		return "MESSAGE_TOO_LARGE"
	case StatusNoMessage:
		return "NO_MESSAGE"
	case StatusBufferTooSmall:
		return "BUFFER_TOO_SMALL"
	case StatusOutOfMemory:
		return "OUT_OF_MEMORY"
	case StatusCopyFault:
		return "COPY_FAULT"
	case StatusNoDevice:
		return "NO_DEVICE"
	case StatusBadHandle:
		return "BAD_HANDLE"
	case StatusUnsupported:
		return "UNSUPPORTED"
	case StatusBusy:
		return "BUSY"
	case StatusClosed:
		return "CLOSED"
	case StatusInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}

// statusErrors pairs each error status with the sentinel it stands for.
var statusErrors = []struct {
	status Status
	err    error
}{
	{StatusInvalidArgument, slot.ErrInvalidArgument},
	{StatusMessageTooLarge, slot.ErrMessageTooLarge},
	{StatusNoMessage, slot.ErrNoMessage},
	{StatusBufferTooSmall, slot.ErrBufferTooSmall},
	{StatusOutOfMemory, slot.ErrOutOfMemory},
	{StatusCopyFault, slot.ErrCopyFault},
	{StatusNoDevice, slot.ErrNoDevice},
	{StatusBadHandle, ErrBadHandle},
	{StatusUnsupported, ErrUnsupported},
	{StatusBusy, ErrBusy},
	{StatusClosed, slot.ErrClosed},
	{StatusInternal, ErrInternal},
}

// StatusFromError classifies err. Nil maps to StatusSuccess and errors
// outside the taxonomy map to StatusInternal.
func StatusFromError(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	for _, se := range statusErrors {
		if errors.Is(err, se.err) {
			return se.status
		}
	}
	return StatusInternal
}

// Err returns the sentinel error for the status, wrapped with msg when
// msg is non-empty. It returns nil for StatusSuccess.
func (s Status) Err(msg string) error {
	if s.IsSuccess() {
		return nil
	}
	base := fmt.Errorf("%w: status %d", ErrInternal, s)
	for _, se := range statusErrors {
		if se.status == s {
			base = se.err
			break
		}
	}
	if msg == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, msg)
}
