package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepAliveDefaults(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{}, func(uint32) error { return nil }, nil)
	if ka.config != DefaultKeepAliveConfig() {
		t.Errorf("config: got %+v", ka.config)
	}
	if got := DefaultKeepAliveConfig().DetectionDelay(); got != 95*time.Second {
		t.Errorf("DetectionDelay: got %v, want 95s", got)
	}
	slow := KeepAliveConfig{PingInterval: 10 * time.Second, PongTimeout: 25 * time.Second, MaxMissedPongs: 2}
	if got := slow.DetectionDelay(); got != 85*time.Second {
		t.Errorf("DetectionDelay with long pong timeout: got %v, want 85s", got)
	}
}

func TestKeepAliveAnsweredPings(t *testing.T) {
	var ka *KeepAlive
	var pings atomic.Int32
	timedOut := make(chan struct{}, 1)

	ka = NewKeepAlive(KeepAliveConfig{
		PingInterval:   10 * time.Millisecond,
		PongTimeout:    5 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(seq uint32) error {
		pings.Add(1)
		go ka.PongReceived(seq)
		return nil
	}, func() { timedOut <- struct{}{} })

	ka.Start(context.Background())
	defer ka.Stop()

	time.Sleep(100 * time.Millisecond)

	select {
	case <-timedOut:
		t.Fatal("answered pings should not time out")
	default:
	}
	if pings.Load() < 3 {
		t.Errorf("pings: got %d, want at least 3", pings.Load())
	}
	if ka.MissedPongs() != 0 {
		t.Errorf("MissedPongs: got %d, want 0", ka.MissedPongs())
	}
}

func TestKeepAliveTimeout(t *testing.T) {
	timedOut := make(chan struct{})
	var once sync.Once

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   10 * time.Millisecond,
		PongTimeout:    5 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(uint32) error { return nil }, func() { once.Do(func() { close(timedOut) }) })

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("expected timeout after missed pongs")
	}
}

func TestKeepAliveIgnoresStalePong(t *testing.T) {
	ka := NewKeepAlive(DefaultKeepAliveConfig(), func(uint32) error { return nil }, nil)
	ka.ping()
	ka.ping()

	ka.pong(1)
	ka.mu.Lock()
	pending := ka.pending
	ka.mu.Unlock()
	if pending != 2 {
		t.Errorf("stale pong cleared pending ping: pending=%d", pending)
	}

	ka.pong(2)
	ka.mu.Lock()
	pending = ka.pending
	ka.mu.Unlock()
	if pending != 0 {
		t.Errorf("matching pong should clear pending, got %d", pending)
	}
}

func TestKeepAliveTimeoutLongerThanInterval(t *testing.T) {
	timedOut := make(chan struct{})
	var once sync.Once
	var pings atomic.Int32

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   10 * time.Millisecond,
		PongTimeout:    25 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(uint32) error {
		pings.Add(1)
		return nil
	}, func() { once.Do(func() { close(timedOut) }) })

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("silent peer not detected when pong timeout exceeds ping interval")
	}
	if got := pings.Load(); got != 2 {
		t.Errorf("pings: got %d, want 2 (one per missed pong)", got)
	}
	if ka.MissedPongs() != 2 {
		t.Errorf("MissedPongs: got %d, want 2", ka.MissedPongs())
	}
}

func TestKeepAliveTickKeepsPendingPing(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   time.Hour,
		PongTimeout:    time.Hour,
		MaxMissedPongs: 1,
	}, func(uint32) error { return nil }, nil)
	ka.ping()

	giveUp, due := ka.tick()
	if giveUp || due {
		t.Errorf("tick inside pong timeout: giveUp=%v due=%v, want false false", giveUp, due)
	}
	ka.mu.Lock()
	pending := ka.pending
	ka.mu.Unlock()
	if pending != 1 {
		t.Errorf("pending: got %d, want 1", pending)
	}
}
