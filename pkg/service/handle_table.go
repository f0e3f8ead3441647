package service

import (
	"fmt"
	"sync"

	"github.com/msgslot/msgslot-go/pkg/slot"
	"github.com/msgslot/msgslot-go/pkg/wire"
)

// handleTable maps the handles of one connection to their sessions.
// Handle 0 is never issued.
type handleTable struct {
	mu       sync.Mutex
	max      int
	next     uint32
	sessions map[uint32]*slot.Session
}

// newHandleTable creates a table holding at most max sessions.
func newHandleTable(max int) *handleTable {
	return &handleTable{
		max:      max,
		sessions: make(map[uint32]*slot.Session),
	}
}

// Add stores s under a fresh handle.
func (t *handleTable) Add(s *slot.Session) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sessions) >= t.max {
		return 0, fmt.Errorf("%w: %d handles open", wire.ErrBusy, len(t.sessions))
	}
	for {
		t.next++
		if t.next == 0 {
			continue
		}
		if _, used := t.sessions[t.next]; !used {
			break
		}
	}
	t.sessions[t.next] = s
	return t.next, nil
}

// Get returns the session for handle.
func (t *handleTable) Get(handle uint32) (*slot.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %d", wire.ErrBadHandle, handle)
	}
	return s, nil
}

// Remove deletes handle and returns its session.
func (t *handleTable) Remove(handle uint32) (*slot.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %d", wire.ErrBadHandle, handle)
	}
	delete(t.sessions, handle)
	return s, nil
}

// CloseAll closes and removes every session. Returns the number closed.
func (t *handleTable) CloseAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	closed := 0
	for handle, s := range t.sessions {
		_ = s.Close()
		delete(t.sessions, handle)
		closed++
	}
	return closed
}

// Len returns the number of open handles.
func (t *handleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
