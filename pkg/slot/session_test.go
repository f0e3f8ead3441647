package slot

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	reg, err := NewRegistry(cfg)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func openSelected(t *testing.T, reg *Registry, minor int, channel uint32) *Session {
	t.Helper()
	s, err := reg.Open(minor)
	if err != nil {
		t.Fatalf("Open(%d) failed: %v", minor, err)
	}
	if err := s.Select(channel); err != nil {
		t.Fatalf("Select(%d) failed: %v", channel, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readAll(t *testing.T, s *Session, capacity int) []byte {
	t.Helper()
	buf := make([]byte, capacity)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return buf[:n]
}

func TestSessionEndToEnd(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	s := openSelected(t, reg, 3, 7)

	n, err := s.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Write returned %d, want 5", n)
	}
	if got := readAll(t, s, BufferLen); string(got) != "hello" {
		t.Errorf("Read = %q, want %q", got, "hello")
	}

	if _, err := s.Write([]byte("hi")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := readAll(t, s, BufferLen); string(got) != "hi" {
		t.Errorf("Read after overwrite = %q, want %q", got, "hi")
	}
}

func TestSessionRepeatableRead(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	s := openSelected(t, reg, 0, 1)

	if _, err := s.Write([]byte("persist")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	first := readAll(t, s, BufferLen)
	second := readAll(t, s, BufferLen)
	if !bytes.Equal(first, second) {
		t.Errorf("reads differ: %q vs %q", first, second)
	}
}

func TestSessionWriteSizeBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr error
	}{
		{name: "empty", size: 0, wantErr: ErrMessageTooLarge},
		{name: "single byte", size: 1},
		{name: "full buffer", size: BufferLen},
		{name: "one over", size: BufferLen + 1, wantErr: ErrMessageTooLarge},
	}

	reg := newTestRegistry(t, Config{})
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openSelected(t, reg, 1, uint32(i+1))
			msg := bytes.Repeat([]byte{'x'}, tt.size)

			n, err := s.Write(msg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Write(%d bytes) error = %v, want %v", tt.size, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Write(%d bytes) failed: %v", tt.size, err)
			}
			if n != tt.size {
				t.Errorf("Write returned %d, want %d", n, tt.size)
			}
		})
	}
}

func TestSessionUnselected(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	s, err := reg.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Write([]byte("x")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Write on unbound session: got %v, want ErrInvalidArgument", err)
	}
	if _, err := s.Read(make([]byte, BufferLen)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Read on unbound session: got %v, want ErrInvalidArgument", err)
	}
	if got := s.Channel(); got != NoChannel {
		t.Errorf("Channel() = %d, want %d", got, NoChannel)
	}
}

func TestSessionSelectZero(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	s := openSelected(t, reg, 0, 4)

	if err := s.Select(0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Select(0) = %v, want ErrInvalidArgument", err)
	}
	if got := s.Channel(); got != 4 {
		t.Errorf("binding changed to %d after failed Select(0)", got)
	}
}

func TestSessionReselect(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	s := openSelected(t, reg, 0, 4)

	if err := s.Select(4); err != nil {
		t.Errorf("re-selecting the bound channel failed: %v", err)
	}
	if err := s.Select(5); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Select(5) on session bound to 4: got %v, want ErrInvalidArgument", err)
	}
	if got := s.Channel(); got != 4 {
		t.Errorf("Channel() = %d after rejected rebind, want 4", got)
	}

	dir, _ := reg.Directory(0)
	if _, ok := dir.Lookup(5); ok {
		t.Error("rejected rebind created channel 5")
	}
}

func TestSessionNoMessage(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	s := openSelected(t, reg, 2, 99)

	_, err := s.Read(make([]byte, BufferLen))
	if !errors.Is(err, ErrNoMessage) {
		t.Errorf("Read on fresh channel: got %v, want ErrNoMessage", err)
	}
}

func TestSessionBufferTooSmall(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	s := openSelected(t, reg, 2, 10)

	msg := []byte("0123456789")
	if _, err := s.Write(msg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	buf := make([]byte, 9)
	if _, err := s.Read(buf); !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("Read with capacity 9: got %v, want ErrBufferTooSmall", err)
	}
	if !bytes.Equal(buf, make([]byte, 9)) {
		t.Errorf("failed read delivered partial data: %q", buf)
	}

	if got := readAll(t, s, 10); !bytes.Equal(got, msg) {
		t.Errorf("Read with capacity 10 = %q, want %q", got, msg)
	}
}

func TestSessionChannelIsolation(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	a := openSelected(t, reg, 0, 1)
	b := openSelected(t, reg, 0, 2)

	if _, err := a.Write([]byte("for a")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := b.Read(make([]byte, BufferLen)); !errors.Is(err, ErrNoMessage) {
		t.Errorf("channel 2 saw channel 1's write: %v", err)
	}
	if _, err := b.Write([]byte("for b")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := readAll(t, a, BufferLen); string(got) != "for a" {
		t.Errorf("channel 1 = %q after write to channel 2", got)
	}
}

func TestSessionInstanceIsolation(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	a := openSelected(t, reg, 10, 7)
	b := openSelected(t, reg, 11, 7)

	if _, err := a.Write([]byte("minor 10")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := b.Read(make([]byte, BufferLen)); !errors.Is(err, ErrNoMessage) {
		t.Errorf("minor 11 saw minor 10's write: %v", err)
	}
}

func TestSessionSharedChannel(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	sender := openSelected(t, reg, 5, 42)
	receiver := openSelected(t, reg, 5, 42)

	if _, err := sender.Write([]byte("ping")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := readAll(t, receiver, BufferLen); string(got) != "ping" {
		t.Errorf("receiver read %q, want %q", got, "ping")
	}
}

func TestSessionWriteFromCopyFault(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	s := openSelected(t, reg, 0, 1)

	if _, err := s.Write([]byte("keep me")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	_, err := s.WriteFrom(iotest.ErrReader(errors.New("bad address")), 4)
	if !errors.Is(err, ErrCopyFault) {
		t.Fatalf("WriteFrom(failing reader) = %v, want ErrCopyFault", err)
	}

	_, err = s.WriteFrom(bytes.NewReader([]byte("ab")), 4)
	if !errors.Is(err, ErrCopyFault) {
		t.Fatalf("WriteFrom(short reader) = %v, want ErrCopyFault", err)
	}

	if got := readAll(t, s, BufferLen); string(got) != "keep me" {
		t.Errorf("message after copy faults = %q, want %q", got, "keep me")
	}
	if got := reg.Stats().StoredBytes; got != len("keep me") {
		t.Errorf("StoredBytes = %d, want %d", got, len("keep me"))
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("bad address") }

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) / 2, nil }

func TestSessionReadToCopyFault(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	s := openSelected(t, reg, 0, 1)
	if _, err := s.Write([]byte("payload")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	for _, w := range []io.Writer{failingWriter{}, shortWriter{}} {
		if _, err := s.ReadTo(w, BufferLen); !errors.Is(err, ErrCopyFault) {
			t.Errorf("ReadTo(%T) = %v, want ErrCopyFault", w, err)
		}
	}

	var out bytes.Buffer
	n, err := s.ReadTo(&out, BufferLen)
	if err != nil {
		t.Fatalf("ReadTo failed: %v", err)
	}
	if n != 7 || out.String() != "payload" {
		t.Errorf("ReadTo = %d %q, want 7 %q", n, out.String(), "payload")
	}
}

func TestSessionClose(t *testing.T) {
	reg := newTestRegistry(t, Config{})
	s, err := reg.Open(0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Select(3); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if _, err := s.Write([]byte("outlives session")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := reg.Stats().Sessions; got != 1 {
		t.Errorf("Sessions = %d, want 1", got)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if got := reg.Stats().Sessions; got != 0 {
		t.Errorf("Sessions = %d after close, want 0", got)
	}
	if _, err := s.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close = %v, want ErrClosed", err)
	}
	if err := s.Select(3); !errors.Is(err, ErrClosed) {
		t.Errorf("Select after Close = %v, want ErrClosed", err)
	}

	other := openSelected(t, reg, 0, 3)
	if got := readAll(t, other, BufferLen); string(got) != "outlives session" {
		t.Errorf("message after session close = %q", got)
	}
}
