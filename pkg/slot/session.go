package slot

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Session is one open handle on a device instance. It is created unbound
// and becomes usable for reads and writes after Select.
type Session struct {
	registry *Registry
	dir      *Directory

	mu      sync.RWMutex
	channel *Channel
	closed  bool
}

// Minor returns the device instance the session was opened on.
func (s *Session) Minor() int {
	return s.dir.Minor()
}

// Channel returns the bound channel id, or NoChannel.
func (s *Session) Channel() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.channel == nil {
		return NoChannel
	}
	return s.channel.ID()
}

// Select binds the session to a channel, creating the channel if needed.
// Selecting the channel the session is already bound to is a no-op.
// A bound session cannot be moved to another channel.
func (s *Session) Select(id uint32) error {
	if id == NoChannel {
		return fmt.Errorf("%w: channel id 0 is reserved", ErrInvalidArgument)
	}

	release, err := s.registry.enter()
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.channel != nil {
		if s.channel.ID() == id {
			return nil
		}
		return fmt.Errorf("%w: session already bound to channel %d", ErrInvalidArgument, s.channel.ID())
	}

	ch, err := s.dir.Resolve(id)
	if err != nil {
		return err
	}
	s.channel = ch
	return nil
}

// Write stores p as the channel's message, replacing any previous one.
func (s *Session) Write(p []byte) (int, error) {
	return s.WriteFrom(bytes.NewReader(p), len(p))
}

// WriteFrom stores exactly n bytes read from r as the channel's message.
// If r cannot supply n bytes nothing is stored.
func (s *Session) WriteFrom(r io.Reader, n int) (int, error) {
	release, err := s.registry.enter()
	if err != nil {
		return 0, err
	}
	defer release()

	ch, err := s.bound()
	if err != nil {
		return 0, err
	}
	return ch.store(r, n, &s.registry.budget)
}

// Read copies the whole message into p. It fails rather than truncating
// when p is shorter than the message.
func (s *Session) Read(p []byte) (int, error) {
	w := fixedWriter{buf: p}
	return s.ReadTo(&w, len(p))
}

// ReadTo writes the whole message to w if it fits in capacity.
func (s *Session) ReadTo(w io.Writer, capacity int) (int, error) {
	release, err := s.registry.enter()
	if err != nil {
		return 0, err
	}
	defer release()

	ch, err := s.bound()
	if err != nil {
		return 0, err
	}
	return ch.load(w, capacity)
}

// Close releases the session. The channel and its message are kept.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.channel = nil
	s.registry.sessions.Add(-1)
	return nil
}

func (s *Session) bound() (*Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.channel == nil {
		return nil, fmt.Errorf("%w: no channel selected", ErrInvalidArgument)
	}
	return s.channel, nil
}

// checkOpen must be called with s.mu held.
func (s *Session) checkOpen() error {
	if s.closed {
		return fmt.Errorf("session: %w", ErrClosed)
	}
	return nil
}

// fixedWriter copies into a caller-owned slice without growing it.
type fixedWriter struct {
	buf []byte
	n   int
}

func (w *fixedWriter) Write(p []byte) (int, error) {
	n := copy(w.buf[w.n:], p)
	w.n += n
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}
