package slot

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Device limits.
const (
	// BufferLen is the largest message a channel can hold.
	BufferLen = 128

	// MaxMinors is the number of device instances in a registry.
	MaxMinors = 256

	// NoChannel is the channel id of an unbound session.
	NoChannel uint32 = 0
)

// Config holds registry limits. Zero values mean unlimited.
type Config struct {
	// MaxChannels caps the number of channels across all directories.
	MaxChannels int

	// MaxBufferBytes caps the total size of stored messages.
	MaxBufferBytes int
}

// Stats is a point-in-time view of registry usage.
type Stats struct {
	Channels    int
	StoredBytes int
	Sessions    int
}

// Registry owns one Directory per device instance.
type Registry struct {
	budget      budget
	directories [MaxMinors]*Directory

	sessions atomic.Int64

	// gate is read-held by every session operation and write-held by
	// Close, so teardown never races a channel insert or a byte charge.
	gate      sync.RWMutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewRegistry creates a registry with MaxMinors empty directories.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.MaxChannels < 0 {
		return nil, fmt.Errorf("%w: negative channel limit %d", ErrInvalidArgument, cfg.MaxChannels)
	}
	if cfg.MaxBufferBytes < 0 {
		return nil, fmt.Errorf("%w: negative buffer limit %d", ErrInvalidArgument, cfg.MaxBufferBytes)
	}

	r := &Registry{}
	r.budget.maxChannels = int64(cfg.MaxChannels)
	r.budget.maxBytes = int64(cfg.MaxBufferBytes)
	for minor := range r.directories {
		r.directories[minor] = newDirectory(minor, &r.budget)
	}
	return r, nil
}

// Directory returns the directory for a device instance.
func (r *Registry) Directory(minor int) (*Directory, error) {
	if minor < 0 || minor >= MaxMinors {
		return nil, fmt.Errorf("%w: minor %d", ErrNoDevice, minor)
	}
	return r.directories[minor], nil
}

// Open creates an unbound session on a device instance.
func (r *Registry) Open(minor int) (*Session, error) {
	release, err := r.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	dir, err := r.Directory(minor)
	if err != nil {
		return nil, err
	}
	r.sessions.Add(1)
	return &Session{registry: r, dir: dir}, nil
}

// Stats returns current usage counters.
func (r *Registry) Stats() Stats {
	return Stats{
		Channels:    int(r.budget.channels.Load()),
		StoredBytes: int(r.budget.bytes.Load()),
		Sessions:    int(r.sessions.Load()),
	}
}

// Close releases every channel and message. It is safe to call more than
// once. Sessions still open afterwards fail with ErrClosed.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		r.gate.Lock()
		defer r.gate.Unlock()

		r.closed.Store(true)
		for _, dir := range r.directories {
			if dir != nil {
				dir.teardown()
			}
		}
	})
	return nil
}

// enter blocks Close until release is called. It fails once the registry
// is closed.
func (r *Registry) enter() (release func(), err error) {
	r.gate.RLock()
	if r.closed.Load() {
		r.gate.RUnlock()
		return nil, fmt.Errorf("registry: %w", ErrClosed)
	}
	return r.gate.RUnlock, nil
}

// Closed reports whether Close has been called.
func (r *Registry) Closed() bool {
	return r.closed.Load()
}
