// Package client talks to a message slot daemon.
//
// A Conn is one connection to the daemon. Open returns a File, the remote
// counterpart of an open device node: select a channel once, then write
// and read messages on it.
//
//	conn, err := client.Dial(ctx, "127.0.0.1:7380", client.Options{})
//	defer conn.Close()
//
//	f, err := conn.Open(ctx, 0)
//	f.Select(ctx, 1)
//	f.Write(ctx, []byte("Hello"))
//	msg, err := f.Read(ctx, slot.BufferLen)
//
// Error statuses from the daemon come back as errors that match the slot
// package sentinels with errors.Is.
package client
