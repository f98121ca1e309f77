package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/relaychat/relaychat/state"
	"github.com/relaychat/relaychat/wire"
)

// ErrRouteNotFound indicates no handler is registered for an opcode.
var ErrRouteNotFound = errors.New("chat: route not found")

// HandlerFunc processes one decoded frame for sess, returning the reply
// frames to write back to the sender, in order, and an error. The error
// return is reserved for conditions the caller should treat as fatal to the
// session (none currently exist -- every client-visible failure is
// expressed as a reply frame); it exists so a future handler can signal a
// transport-level problem without inventing a sentinel frame.
type HandlerFunc func(ctx context.Context, reg *Registry, sess *state.Session, f wire.Frame, logger *slog.Logger) ([]wire.Frame, error)

// Registry is an alias for state.Registry, so handler signatures in this
// package can name it without the package qualifier.
type Registry = state.Registry

// NewRouter creates an empty Router.
func NewRouter() Router {
	return Router{entries: make(map[wire.Opcode]HandlerFunc)}
}

// Router dispatches a frame to the HandlerFunc registered for its opcode: a
// single-level map, since this protocol has one flat opcode space.
type Router struct {
	entries map[wire.Opcode]HandlerFunc
}

// Register associates op with fn, overwriting any existing registration.
func (rt Router) Register(op wire.Opcode, fn HandlerFunc) {
	rt.entries[op] = fn
}

// Handle routes f to its registered handler. Returns ErrRouteNotFound if
// nothing is registered for f.Op.
func (rt Router) Handle(ctx context.Context, reg *Registry, sess *state.Session, f wire.Frame, logger *slog.Logger) ([]wire.Frame, error) {
	h, ok := rt.entries[f.Op]
	if !ok {
		return nil, fmt.Errorf("%w: opcode %s", ErrRouteNotFound, f.Op)
	}
	return h(ctx, reg, sess, f, logger)
}
