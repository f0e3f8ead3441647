package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/msgslot/msgslot-go/pkg/log"
)

// Every frame is a 4-byte big-endian payload length followed by the
// payload. The payload is one CBOR message.
const (
	LengthPrefixSize = 4

	// MinFrameLimit is the smallest usable frame limit. A Write request
	// carrying a full 128-byte message is the largest frame the protocol
	// sends and needs about 150 bytes.
	MinFrameLimit = 256

	// DefaultMaxFrameSize leaves room for error responses with long
	// messages.
	DefaultMaxFrameSize = 1024

	// MaxLogFrameDataSize caps the payload bytes copied into a frame event.
	MaxLogFrameDataSize = 256
)

var (
	ErrFrameTooLarge  = errors.New("frame too large")
	ErrFrameEmpty     = errors.New("frame is empty")
	ErrFrameTruncated = errors.New("frame truncated")
)

// frameLimit returns the limit to enforce for a configured value. Zero
// selects the default; anything below MinFrameLimit is raised to it.
func frameLimit(configured uint32) uint32 {
	switch {
	case configured == 0:
		return DefaultMaxFrameSize
	case configured < MinFrameLimit:
		return MinFrameLimit
	default:
		return configured
	}
}

// Framer reads and writes frames on one stream. Writes may come from any
// goroutine; reads must come from a single goroutine.
type Framer struct {
	r     io.Reader
	w     io.Writer
	limit uint32

	wmu    sync.Mutex
	header [LengthPrefixSize]byte

	trace  log.Logger
	connID string
}

// NewFramer returns a Framer on rw that rejects payloads above limit.
// A zero limit selects DefaultMaxFrameSize.
func NewFramer(rw io.ReadWriter, limit uint32) *Framer {
	if limit == 0 {
		limit = DefaultMaxFrameSize
	}
	return &Framer{r: rw, w: rw, limit: limit}
}

// Trace records every frame read or written as a transport event on
// logger. A nil logger turns tracing off.
func (f *Framer) Trace(logger log.Logger, connID string) {
	f.trace = logger
	f.connID = connID
}

// SetLimit changes the payload limit for subsequent frames.
func (f *Framer) SetLimit(limit uint32) {
	f.limit = limit
}

func (f *Framer) checkSize(n uint64) error {
	if n == 0 {
		return ErrFrameEmpty
	}
	if n > uint64(f.limit) {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, f.limit)
	}
	return nil
}

// WriteFrame sends data as one frame. The prefix and payload are written
// in a single call.
func (f *Framer) WriteFrame(data []byte) error {
	if err := f.checkSize(uint64(len(data))); err != nil {
		return err
	}

	buf := make([]byte, FrameSize(len(data)))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[LengthPrefixSize:], data)

	f.wmu.Lock()
	_, err := f.w.Write(buf)
	f.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	f.record(data, log.DirectionOut)
	return nil
}

// ReadFrame returns the next payload. io.EOF means the peer closed the
// stream cleanly between frames.
func (f *Framer) ReadFrame() ([]byte, error) {
	switch _, err := io.ReadFull(f.r, f.header[:]); {
	case err == io.EOF:
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, ErrFrameTruncated
	case err != nil:
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	n := binary.BigEndian.Uint32(f.header[:])
	if err := f.checkSize(uint64(n)); err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	f.record(payload, log.DirectionIn)
	return payload, nil
}

func (f *Framer) record(data []byte, direction log.Direction) {
	if f.trace != nil {
		f.trace.Log(frameEvent(f.connID, data, direction))
	}
}

func frameEvent(connID string, data []byte, direction log.Direction) log.Event {
	frame := &log.FrameEvent{Size: FrameSize(len(data)), Data: data}
	if len(data) > MaxLogFrameDataSize {
		frame.Data = data[:MaxLogFrameDataSize]
		frame.Truncated = true
	}
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame:        frame,
	}
}

// FrameSize returns the bytes a payload of payloadSize occupies on the
// wire.
func FrameSize(payloadSize int) int {
	return LengthPrefixSize + payloadSize
}
