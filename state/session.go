package state

import (
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/relaychat/relaychat/wire"
)

// Phase is the session's position in the AWAITING_NICK -> ACTIVE -> CLOSED
// state machine. The machine itself (reading frames, deciding which handler
// to invoke, driving transitions) lives in server/chat.Run; this type is the
// piece of the state machine the registry needs to reason about a session
// without owning its connection.
type Phase int

const (
	AwaitingNick Phase = iota
	Active
	Closed
)

func (p Phase) String() string {
	switch p {
	case AwaitingNick:
		return "AWAITING_NICK"
	case Active:
		return "ACTIVE"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// SessSendStatus is the result of enqueueing a frame for delivery to a
// session.
type SessSendStatus int

const (
	// SessSendOK indicates the frame was handed off for delivery.
	SessSendOK SessSendStatus = iota
	// SessSendClosed indicates the session is already closed.
	SessSendClosed
	// SessQueueFull indicates the session's outbound queue is full, which
	// usually means its connection is dead or its peer is not reading.
	SessQueueFull
)

// outboxCapacity bounds how many frames may be queued for a slow peer before
// further sends are rejected with SessQueueFull, so one dead connection
// cannot grow memory unbounded while its owning session notices the problem.
const outboxCapacity = 32

// Session represents one client connection's server-side state: its
// connection, its nickname once registered, its lifecycle phase, and an
// outbound frame queue that lets any goroutine -- not just the one running
// this session's own read loop -- deliver a frame to it. The registry holds
// a *Session per registered nickname as its "clonable write handle"; the
// session's own read loop (server/chat.Run) is the only goroutine that
// reads from the connection, and a dedicated writer goroutine (also started
// by server/chat) is the only one that writes to it, draining Out().
type Session struct {
	mu sync.RWMutex

	id       string
	conn     net.Conn
	nickname Nickname
	phase    Phase

	outCh   chan wire.Frame
	closeCh chan struct{}
	closed  bool
}

// NewSession creates a new Session bound to conn, initially in AWAITING_NICK.
func NewSession(conn net.Conn) *Session {
	return &Session{
		id:      uuid.NewString(),
		conn:    conn,
		phase:   AwaitingNick,
		outCh:   make(chan wire.Frame, outboxCapacity),
		closeCh: make(chan struct{}),
	}
}

// ID returns the session's correlation ID, used only for logging.
func (s *Session) ID() string {
	return s.id
}

// Conn returns the underlying connection. Only the session's own read loop
// and writer goroutine should use it directly.
func (s *Session) Conn() net.Conn {
	return s.conn
}

// Nickname returns the session's registered nickname, or "" before
// registration.
func (s *Session) Nickname() Nickname {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname
}

// SetNickname records the session's nickname upon successful registration.
func (s *Session) SetNickname(n Nickname) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nickname = n
}

// Phase returns the session's current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetPhase transitions the session to p.
func (s *Session) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// Send enqueues a frame for delivery to this session's connection. It never
// blocks: a full queue yields SessQueueFull rather than stalling the caller,
// which is what lets fan-out release the registry lock before writing
// without risking head-of-line blocking on one slow peer.
func (s *Session) Send(f wire.Frame) SessSendStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return SessSendClosed
	}
	select {
	case s.outCh <- f:
		return SessSendOK
	case <-s.closeCh:
		return SessSendClosed
	default:
		return SessQueueFull
	}
}

// Out returns the channel the session's writer goroutine drains to deliver
// queued frames to the connection.
func (s *Session) Out() <-chan wire.Frame {
	return s.outCh
}

// Close marks the session closed. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.closeCh)
}

// Closed returns a channel that's closed once Close has been called.
func (s *Session) Closed() <-chan struct{} {
	return s.closeCh
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
