package slot

import (
	"fmt"
	"io"
	"sync"
)

// Channel is a single-slot message holder inside a Directory.
type Channel struct {
	id uint32

	mu sync.RWMutex

	// msg is never mutated after it is stored; a write swaps in a new slice.
	msg []byte
}

func newChannel(id uint32) *Channel {
	return &Channel{id: id}
}

// ID returns the channel id.
func (c *Channel) ID() uint32 {
	return c.id
}

// Len returns the length of the stored message, or 0 if there is none.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.msg)
}

// store stages n bytes from r and swaps them in as the new message.
// The budget is charged before the swap so a failed reservation leaves the
// previous message in place.
func (c *Channel) store(r io.Reader, n int, b *budget) (int, error) {
	if n <= 0 || n > BufferLen {
		return 0, fmt.Errorf("%w: %d bytes (want 1..%d)", ErrMessageTooLarge, n, BufferLen)
	}

	if err := b.reserveBytes(n); err != nil {
		return 0, err
	}

	staged := make([]byte, n)
	if read, err := io.ReadFull(r, staged); err != nil {
		b.releaseBytes(n)
		return 0, fmt.Errorf("%w: read %d of %d bytes: %v", ErrCopyFault, read, n, err)
	}

	c.mu.Lock()
	old := len(c.msg)
	c.msg = staged
	c.mu.Unlock()

	b.releaseBytes(old)
	return n, nil
}

// load writes the stored message to w if it fits in capacity.
func (c *Channel) load(w io.Writer, capacity int) (int, error) {
	c.mu.RLock()
	msg := c.msg
	c.mu.RUnlock()

	if len(msg) == 0 {
		return 0, fmt.Errorf("%w: channel %d", ErrNoMessage, c.id)
	}
	if capacity < len(msg) {
		return 0, fmt.Errorf("%w: message is %d bytes, capacity %d", ErrBufferTooSmall, len(msg), capacity)
	}

	written, err := w.Write(msg)
	if err == nil && written != len(msg) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return 0, fmt.Errorf("%w: wrote %d of %d bytes: %v", ErrCopyFault, written, len(msg), err)
	}
	return len(msg), nil
}

// release drops the message and returns its size.
func (c *Channel) release() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.msg)
	c.msg = nil
	return n
}
