package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/relaychat/relaychat/server/chat/middleware"
	"github.com/relaychat/relaychat/state"
	"github.com/relaychat/relaychat/wire"
)

// Run drives one connection's read loop and the AWAITING_NICK -> ACTIVE ->
// CLOSED state machine. It owns the only goroutine that reads from sess's
// connection; a second goroutine it starts (writeLoop) is the only one that
// writes, draining sess's outbox so the registry can fan out to this peer
// without touching the socket itself: one loop consumes the wire, a sibling
// drains a channel back out to it.
//
// Run blocks until the session reaches CLOSED and its writer goroutine has
// exited. ctx cancellation causes the session to stop accepting new work and
// close, but does not interrupt an in-flight blocking read -- disconnection
// is the cancellation mechanism; there is no per-operation timeout.
func Run(ctx context.Context, sess *state.Session, rt Router, reg *Registry, logger *slog.Logger) {
	ctx = middleware.WithSessionID(ctx, sess.ID())

	writeDone := make(chan struct{})
	go writeLoop(sess, logger, writeDone)

	defer func() {
		sess.Close()
		<-writeDone
		_ = sess.Conn().Close()
		if sess.Phase() != state.AwaitingNick {
			reg.Unregister(sess.Nickname())
		}
	}()

	for {
		f, err := wire.ReadFrame(sess.Conn())
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.InfoContext(ctx, "session read error", "err", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		switch sess.Phase() {
		case state.AwaitingNick:
			if !handleHandshake(ctx, sess, reg, f, logger) {
				return
			}
		case state.Active:
			replies, err := rt.Handle(ctx, reg, sess, f, logger)
			if err != nil {
				if errors.Is(err, ErrRouteNotFound) {
					sess.Send(wire.ErrorFrame(wire.ErrMalformed))
				} else {
					logger.ErrorContext(ctx, "dispatch error", "opcode", f.Op, "err", err)
				}
				continue
			}
			for _, reply := range replies {
				sess.Send(reply)
			}
			if sess.Phase() == state.Closed {
				return
			}
		case state.Closed:
			return
		}
	}
}

// handleHandshake processes one frame received while AWAITING_NICK. It
// returns false if the session should terminate.
func handleHandshake(ctx context.Context, sess *state.Session, reg *Registry, f wire.Frame, logger *slog.Logger) bool {
	if f.Op != wire.OpRegisterNick {
		sess.Send(wire.ErrorFrame(wire.ErrNotYetRegistered))
		sess.SetPhase(state.Closed)
		return false
	}

	nick := state.Nickname(f.Payload)
	if err := nick.Validate(); err != nil {
		logger.DebugContext(ctx, "nickname accepted despite validation warning", "nick", nick, "err", err)
	}

	if err := reg.Register(nick, sess); err != nil {
		switch {
		case errors.Is(err, state.ErrNicknameCollision):
			sess.Send(wire.ErrorFrame(wire.ErrNicknameCollision))
		case errors.Is(err, state.ErrServerFull):
			sess.Send(wire.ErrorFrame(wire.ErrServerFull))
		default:
			sess.Send(wire.ErrorFrame(wire.ErrNicknameCollision))
		}
		sess.SetPhase(state.Closed)
		return false
	}

	sess.SetNickname(nick)
	sess.SetPhase(state.Active)
	sess.Send(wire.OKFrame())
	return true
}

// writeLoop drains sess's outbox to its connection until the session closes.
// It is the only goroutine permitted to write to sess.Conn() -- writable
// handles cloned into the registry must never race each other on the same
// socket.
func writeLoop(sess *state.Session, logger *slog.Logger, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case f := <-sess.Out():
			if _, err := f.WriteTo(sess.Conn()); err != nil {
				logger.Debug("write error, closing session", "err", err)
				sess.Close()
				return
			}
		case <-sess.Closed():
			return
		}
	}
}
