// Package client implements the CLI chat client: dialing the server, a
// liveness watchdog, and the interactive command REPL.
package client

import (
	"fmt"
	"net"
	"sync"

	"github.com/relaychat/relaychat/wire"
)

// Conn wraps a dialed connection with the serialization the protocol
// requires on the write side: one frame per Write call, and a mutex so the
// REPL goroutine and the watchdog's KEEP_ALIVE ticks never interleave bytes
// of two frames on the wire.
type Conn struct {
	nc net.Conn
	mu sync.Mutex
}

// Dial connects to addr and returns a ready-to-use Conn.
func Dial(addr string) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return &Conn{nc: nc}, nil
}

// Send writes a single frame to the server.
func (c *Conn) Send(f wire.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := f.WriteTo(c.nc)
	return err
}

// Read blocks for the next frame from the server.
func (c *Conn) Read() (wire.Frame, error) {
	return wire.ReadFrame(c.nc)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}
