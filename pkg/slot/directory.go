package slot

import (
	"fmt"
	"sync"
)

// Directory holds the channels of one device instance.
type Directory struct {
	minor  int
	budget *budget

	mu       sync.RWMutex
	channels map[uint32]*Channel
	closed   bool
}

func newDirectory(minor int, b *budget) *Directory {
	return &Directory{
		minor:    minor,
		budget:   b,
		channels: make(map[uint32]*Channel),
	}
}

// Minor returns the device instance this directory belongs to.
func (d *Directory) Minor() int {
	return d.minor
}

// Resolve returns the channel with the given id, creating it if this is
// the first time the id is seen. Concurrent callers resolving the same new
// id all receive the same Channel.
func (d *Directory) Resolve(id uint32) (*Channel, error) {
	if id == NoChannel {
		return nil, fmt.Errorf("%w: channel id 0 is reserved", ErrInvalidArgument)
	}

	d.mu.RLock()
	ch, ok := d.channels[id]
	d.mu.RUnlock()
	if ok {
		return ch, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if ch, ok := d.channels[id]; ok {
		return ch, nil
	}
	if d.closed {
		return nil, fmt.Errorf("minor %d: %w", d.minor, ErrClosed)
	}
	if err := d.budget.reserveChannel(); err != nil {
		return nil, fmt.Errorf("minor %d channel %d: %w", d.minor, id, err)
	}

	ch = newChannel(id)
	d.channels[id] = ch
	return ch, nil
}

// Lookup returns an existing channel without creating it.
func (d *Directory) Lookup(id uint32) (*Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[id]
	return ch, ok
}

// Len returns the number of channels in the directory.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.channels)
}

// teardown drops every channel and its message. The directory accepts no
// new channels afterwards.
func (d *Directory) teardown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for id, ch := range d.channels {
		d.budget.releaseBytes(ch.release())
		d.budget.releaseChannel()
		delete(d.channels, id)
	}
}
