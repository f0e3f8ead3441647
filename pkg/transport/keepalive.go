package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Keep-alive defaults.
const (
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings.
	PingInterval time.Duration

	// PongTimeout is how long a ping may stay unanswered.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of missed pongs before the peer is
	// considered gone.
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is about the longest a dead peer can go unnoticed. A
// ping is only replaced once it has timed out, so each miss takes the
// first tick at or after PongTimeout.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	cycle := c.PingInterval
	for cycle < c.PongTimeout {
		cycle += c.PingInterval
	}
	return cycle*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// KeepAlive sends periodic pings and reports a peer that stops answering.
type KeepAlive struct {
	config    KeepAliveConfig
	sendPing  func(seq uint32) error
	onTimeout func()

	sequence atomic.Uint32
	pongCh   chan uint32

	mu          sync.Mutex
	missed      int
	pending     uint32 // 0 when no ping is outstanding
	lastPing    time.Time
	lastLatency time.Duration
	stop        context.CancelFunc
}

// NewKeepAlive creates a keep-alive monitor. Zero config fields take
// their defaults.
func NewKeepAlive(config KeepAliveConfig, sendPing func(seq uint32) error, onTimeout func()) *KeepAlive {
	def := DefaultKeepAliveConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = def.PongTimeout
	}
	if config.MaxMissedPongs <= 0 {
		config.MaxMissedPongs = def.MaxMissedPongs
	}
	return &KeepAlive{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		pongCh:    make(chan uint32, 1),
	}
}

// Start begins monitoring until ctx is done or Stop is called.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.stop != nil {
		return
	}
	ctx, ka.stop = context.WithCancel(ctx)
	go ka.loop(ctx)
}

// Stop stops monitoring.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.stop != nil {
		ka.stop()
		ka.stop = nil
	}
}

// PongReceived must be called for every pong the connection receives.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
	}
}

// MissedPongs returns the number of consecutive unanswered pings.
func (ka *KeepAlive) MissedPongs() int {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.missed
}

// Latency returns the round trip of the last answered ping.
func (ka *KeepAlive) Latency() time.Duration {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.lastLatency
}

func (ka *KeepAlive) loop(ctx context.Context) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	ka.ping()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			giveUp, due := ka.tick()
			if giveUp {
				if ka.onTimeout != nil {
					ka.onTimeout()
				}
				return
			}
			if due {
				ka.ping()
			}
		case seq := <-ka.pongCh:
			ka.pong(seq)
		}
	}
}

func (ka *KeepAlive) ping() {
	seq := ka.sequence.Add(1)
	if seq == 0 {
		seq = ka.sequence.Add(1)
	}

	ka.mu.Lock()
	ka.pending = seq
	ka.lastPing = time.Now()
	ka.mu.Unlock()

	// A failed send is caught by the pong timeout.
	_ = ka.sendPing(seq)
}

// tick records a missed pong if one is overdue. It reports whether the
// peer should be given up on and whether the next ping is due. An
// outstanding ping still inside its timeout is left alone.
func (ka *KeepAlive) tick() (giveUp, due bool) {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if ka.pending != 0 {
		if time.Since(ka.lastPing) < ka.config.PongTimeout {
			return false, false
		}
		ka.missed++
		ka.pending = 0
	}
	return ka.missed >= ka.config.MaxMissedPongs, true
}

func (ka *KeepAlive) pong(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	// Late pongs for an earlier ping are ignored.
	if ka.pending != 0 && seq == ka.pending {
		ka.lastLatency = time.Since(ka.lastPing)
		ka.pending = 0
		ka.missed = 0
	}
}
