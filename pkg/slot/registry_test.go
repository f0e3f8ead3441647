package slot

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryRejectsNegativeLimits(t *testing.T) {
	_, err := NewRegistry(Config{MaxChannels: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewRegistry(Config{MaxBufferBytes: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegistryDirectories(t *testing.T) {
	reg := newTestRegistry(t, Config{})

	for _, minor := range []int{0, 1, 127, MaxMinors - 1} {
		dir, err := reg.Directory(minor)
		require.NoError(t, err, "minor %d", minor)
		assert.Equal(t, minor, dir.Minor())
		assert.Zero(t, dir.Len())
	}

	for _, minor := range []int{-1, MaxMinors, MaxMinors + 10} {
		_, err := reg.Directory(minor)
		assert.ErrorIs(t, err, ErrNoDevice, "minor %d", minor)

		_, err = reg.Open(minor)
		assert.ErrorIs(t, err, ErrNoDevice, "minor %d", minor)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := newTestRegistry(t, Config{})
	b := newTestRegistry(t, Config{})

	sa := openSelected(t, a, 1, 1)
	sb := openSelected(t, b, 1, 1)

	_, err := sa.Write([]byte("only in a"))
	require.NoError(t, err)

	_, err = sb.Read(make([]byte, BufferLen))
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestRegistryClose(t *testing.T) {
	reg, err := NewRegistry(Config{})
	require.NoError(t, err)

	s := openSelected(t, reg, 0, 1)
	_, err = s.Write([]byte("gone after teardown"))
	require.NoError(t, err)

	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close(), "Close must be idempotent")
	assert.True(t, reg.Closed())

	stats := reg.Stats()
	assert.Zero(t, stats.Channels)
	assert.Zero(t, stats.StoredBytes)

	_, err = reg.Open(0)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Read(make([]byte, BufferLen))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistryChannelLimit(t *testing.T) {
	reg := newTestRegistry(t, Config{MaxChannels: 2})

	openSelected(t, reg, 0, 1)
	openSelected(t, reg, 1, 1)

	s, err := reg.Open(0)
	require.NoError(t, err)
	defer s.Close()

	err = s.Select(2)
	require.ErrorIs(t, err, ErrOutOfMemory)
	assert.Equal(t, NoChannel, s.Channel(), "failed selection must not bind")

	dir, _ := reg.Directory(0)
	_, ok := dir.Lookup(2)
	assert.False(t, ok, "failed resolve must not insert")
	assert.Equal(t, 1, dir.Len())

	// Existing channels still resolve at the limit.
	require.NoError(t, s.Select(1))
}

func TestRegistryBufferLimitPreservesMessage(t *testing.T) {
	reg := newTestRegistry(t, Config{MaxBufferBytes: 16})
	s := openSelected(t, reg, 0, 1)

	_, err := s.Write([]byte("small"))
	require.NoError(t, err)

	// Replacing needs the new buffer staged next to the old one: 5 + 12 > 16.
	_, err = s.Write(bytes.Repeat([]byte("y"), 12))
	require.ErrorIs(t, err, ErrOutOfMemory)

	got := readAll(t, s, BufferLen)
	assert.Equal(t, "small", string(got), "previous message must survive allocation failure")
	assert.Equal(t, 5, reg.Stats().StoredBytes)

	_, err = s.Write(bytes.Repeat([]byte("z"), 11))
	require.NoError(t, err)
	assert.Equal(t, 11, reg.Stats().StoredBytes)
}

func TestRegistryStats(t *testing.T) {
	reg := newTestRegistry(t, Config{})

	a := openSelected(t, reg, 0, 1)
	b := openSelected(t, reg, 0, 2)
	openSelected(t, reg, 0, 2)

	_, err := a.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = b.Write([]byte("defgh"))
	require.NoError(t, err)
	_, err = b.Write([]byte("ij"))
	require.NoError(t, err)

	stats := reg.Stats()
	assert.Equal(t, 2, stats.Channels)
	assert.Equal(t, 5, stats.StoredBytes)
	assert.Equal(t, 3, stats.Sessions)
}

func TestConcurrentFirstSelection(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	const writers = 32

	sessions := make([]*Session, writers)
	for i := range sessions {
		s, err := reg.Open(9)
		require.NoError(t, err)
		sessions[i] = s
		t.Cleanup(func() { _ = s.Close() })
	}

	messages := make(map[string]bool, writers)
	for i := 0; i < writers; i++ {
		messages[fmt.Sprintf("writer-%02d:%s", i, bytes.Repeat([]byte{byte('a' + i%26)}, 64))] = true
	}
	msgList := make([]string, 0, writers)
	for m := range messages {
		msgList = append(msgList, m)
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i, s := range sessions {
		wg.Add(1)
		go func(s *Session, msg string) {
			defer wg.Done()
			<-start
			if err := s.Select(1234); err != nil {
				errs <- err
				return
			}
			if _, err := s.Write([]byte(msg)); err != nil {
				errs <- err
			}
		}(s, msgList[i])
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("writer failed: %v", err)
	}

	dir, _ := reg.Directory(9)
	assert.Equal(t, 1, dir.Len(), "exactly one channel must exist")

	ch, ok := dir.Lookup(1234)
	require.True(t, ok)
	for _, s := range sessions {
		got, _ := s.dir.Lookup(s.Channel())
		assert.Same(t, ch, got)
	}

	got := readAll(t, sessions[0], BufferLen)
	assert.True(t, messages[string(got)], "read a message no writer wrote: %q", got)
}

func TestConcurrentReadWriteNeverTorn(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	w := openSelected(t, reg, 0, 1)
	r := openSelected(t, reg, 0, 1)

	long := bytes.Repeat([]byte("L"), BufferLen)
	short := []byte("ss")
	_, err := w.Write(long)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			msg := long
			if i%2 == 0 {
				msg = short
			}
			if _, err := w.Write(msg); err != nil {
				t.Errorf("Write failed: %v", err)
				return
			}
		}
	}()

	buf := make([]byte, BufferLen)
	for {
		select {
		case <-done:
			return
		default:
		}
		n, err := r.Read(buf)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		got := buf[:n]
		if !bytes.Equal(got, long) && !bytes.Equal(got, short) {
			t.Fatalf("torn read: %q", got)
		}
	}
}

func TestDirectoryResolveZero(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	dir, err := reg.Directory(0)
	require.NoError(t, err)

	_, err = dir.Resolve(NoChannel)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Zero(t, dir.Len())
}

func TestRegistryCloseDuringTraffic(t *testing.T) {
	for i := 0; i < 50; i++ {
		reg, err := NewRegistry(Config{})
		require.NoError(t, err)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				<-start
				for c := uint32(1); c <= 20; c++ {
					s, err := reg.Open(w)
					if err != nil {
						return
					}
					if err := s.Select(c); err == nil {
						_, _ = s.Write([]byte("racing teardown"))
					}
					_ = s.Close()
				}
			}(w)
		}

		close(start)
		require.NoError(t, reg.Close())
		wg.Wait()

		stats := reg.Stats()
		assert.Zero(t, stats.Channels, "iteration %d: channel created after Close", i)
		assert.Zero(t, stats.StoredBytes, "iteration %d: bytes charged after Close", i)
	}
}

func TestDirectoryRejectsNewChannelsAfterClose(t *testing.T) {
	reg, err := NewRegistry(Config{})
	require.NoError(t, err)
	dir, err := reg.Directory(3)
	require.NoError(t, err)

	require.NoError(t, reg.Close())

	_, err = dir.Resolve(9)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, dir.Len())
	assert.Zero(t, reg.Stats().Channels)
}
