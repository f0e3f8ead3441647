package wire

// Operation represents a message slot protocol operation.
type Operation uint8

const (
	// OpOpen creates a session on a device instance and returns its handle.
	OpOpen Operation = 1

	// OpSelect binds a handle to a channel.
	OpSelect Operation = 2

	// OpWrite replaces the message on the handle's channel.
	OpWrite Operation = 3

	// OpRead returns the message on the handle's channel.
	OpRead Operation = 4

	// OpClose releases a handle.
	OpClose Operation = 5
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpOpen:
		return "Open"
	case OpSelect:
		return "Select"
	case OpWrite:
		return "Write"
	case OpRead:
		return "Read"
	case OpClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is a known operation.
func (o Operation) IsValid() bool {
	return o >= OpOpen && o <= OpClose
}
