package client

import (
	"sync"
	"time"

	"github.com/relaychat/relaychat/wire"
)

// pollInterval is how often the watchdog wakes to check elapsed silence. It
// must be smaller than the keepalive threshold to notice promptly.
const pollInterval = time.Second

// Watchdog implements the client-side liveness timer: a cooperating task
// that shares the "last byte received" timestamp with the read loop under
// an exclusive lock, wakes on a ticker, sends KEEP_ALIVE past the
// configured silence threshold, and signals Unresponsive past the
// unresponsive threshold.
type Watchdog struct {
	mu          sync.Mutex
	lastSeen    time.Time
	keepAlive   time.Duration
	unresponsive time.Duration

	conn *Conn

	// Unresponsive is closed once the server has been silent past the
	// unresponsive threshold.
	Unresponsive chan struct{}

	stop chan struct{}
	once sync.Once
}

// NewWatchdog builds a Watchdog that will send KEEP_ALIVE on conn.
func NewWatchdog(conn *Conn, keepAliveAfter, unresponsiveAfter time.Duration) *Watchdog {
	return &Watchdog{
		lastSeen:     time.Now(),
		keepAlive:    keepAliveAfter,
		unresponsive: unresponsiveAfter,
		conn:         conn,
		Unresponsive: make(chan struct{}),
		stop:         make(chan struct{}),
	}
}

// Touch records that a byte was just received from the server, resetting
// the silence clock.
func (w *Watchdog) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen = time.Now()
}

// Run drives the watchdog loop until Stop is called. It is meant to run in
// its own goroutine alongside the read loop.
func (w *Watchdog) Run() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			silence := time.Since(w.lastSeen)
			w.mu.Unlock()

			if silence >= w.unresponsive {
				close(w.Unresponsive)
				return
			}
			if silence >= w.keepAlive {
				_ = w.conn.Send(wire.NewFrame(wire.OpKeepAlive))
			}
		}
	}
}

// Stop halts the watchdog loop. Idempotent.
func (w *Watchdog) Stop() {
	w.once.Do(func() { close(w.stop) })
}
