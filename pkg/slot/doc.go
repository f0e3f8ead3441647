// Package slot implements the message slot device model.
//
// # Model Hierarchy
//
// A Registry owns one Directory per device instance (minor number).
// A Directory maps channel ids to Channels, creating them on first use.
// A Channel holds at most one message of up to BufferLen bytes:
//
//	Registry
//	├── Directory (minor 0)
//	│   ├── Channel 7   "hello"
//	│   └── Channel 9   (no message)
//	├── Directory (minor 1)
//	└── ... (MaxMinors directories)
//
// # Sessions
//
// A Session is one open handle on a device instance. It starts unbound
// and must select a channel before it can read or write:
//
//	s, _ := reg.Open(3)
//	defer s.Close()
//	_ = s.Select(7)
//	_, _ = s.Write([]byte("hello"))
//	n, _ := s.Read(buf)
//
// Writes replace the stored message wholesale. Reads deliver the whole
// message or nothing and never consume it. A read on a channel that has
// no message fails immediately with ErrNoMessage; nothing here blocks.
//
// # Concurrency
//
// All types are safe for concurrent use. Each Channel has its own lock,
// each Directory guards lookup-or-create with its own lock, and
// operations on different channels or directories never contend.
package slot
