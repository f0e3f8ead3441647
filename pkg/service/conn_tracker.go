package service

import (
	"io"
	"sync"
	"time"
)

// connTracker records when each connection last sent a request. The idle
// reaper uses it to close connections that have gone quiet.
type connTracker struct {
	mu    sync.Mutex
	conns map[io.Closer]time.Time
}

// newConnTracker creates a new connection tracker.
func newConnTracker() *connTracker {
	return &connTracker{
		conns: make(map[io.Closer]time.Time),
	}
}

// Add registers a connection with the current time.
func (ct *connTracker) Add(conn io.Closer) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.conns[conn] = time.Now()
}

// Touch marks a connection as active. Absent connections are ignored.
func (ct *connTracker) Touch(conn io.Closer) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if _, ok := ct.conns[conn]; ok {
		ct.conns[conn] = time.Now()
	}
}

// Remove deregisters a connection. Safe to call on absent connections.
func (ct *connTracker) Remove(conn io.Closer) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	delete(ct.conns, conn)
}

// CloseStale closes and removes all connections idle for longer than maxAge.
// Returns the number of connections closed.
func (ct *connTracker) CloseStale(maxAge time.Duration) int {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	closed := 0
	for conn, seen := range ct.conns {
		if seen.Before(cutoff) {
			_ = conn.Close()
			delete(ct.conns, conn)
			closed++
		}
	}
	return closed
}

// CloseAll closes and removes all tracked connections.
func (ct *connTracker) CloseAll() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	closed := 0
	for conn := range ct.conns {
		_ = conn.Close()
		delete(ct.conns, conn)
		closed++
	}
	return closed
}

// Len returns the number of tracked connections.
func (ct *connTracker) Len() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.conns)
}
