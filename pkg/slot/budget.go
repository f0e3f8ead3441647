package slot

import (
	"fmt"
	"sync/atomic"
)

// budget accounts for channel and message allocations against the
// registry limits. A zero limit means unlimited.
type budget struct {
	maxChannels int64
	maxBytes    int64

	channels atomic.Int64
	bytes    atomic.Int64
}

func (b *budget) reserveChannel() error {
	if !reserve(&b.channels, 1, b.maxChannels) {
		return fmt.Errorf("%w: channel limit %d reached", ErrOutOfMemory, b.maxChannels)
	}
	return nil
}

func (b *budget) releaseChannel() {
	b.channels.Add(-1)
}

func (b *budget) reserveBytes(n int) error {
	if !reserve(&b.bytes, int64(n), b.maxBytes) {
		return fmt.Errorf("%w: %d byte message exceeds buffer limit %d", ErrOutOfMemory, n, b.maxBytes)
	}
	return nil
}

func (b *budget) releaseBytes(n int) {
	if n > 0 {
		b.bytes.Add(-int64(n))
	}
}

func reserve(counter *atomic.Int64, n, limit int64) bool {
	if limit == 0 {
		counter.Add(n)
		return true
	}
	for {
		cur := counter.Load()
		if cur+n > limit {
			return false
		}
		if counter.CompareAndSwap(cur, cur+n) {
			return true
		}
	}
}
