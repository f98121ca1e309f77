// Package adminconsole implements the operator-facing stdin REPL: list
// users, list rooms, broadcast a message to every registered user, and shut
// the server down cleanly.
package adminconsole

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/relaychat/relaychat/state"
	"github.com/relaychat/relaychat/wire"
)

const fiveSeconds = 5 * time.Second

// Shutdowner is the subset of chat.Server the console needs to stop the
// listener. Kept as an interface here rather than importing server/chat
// directly, so tests can supply a fake.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Console drives the admin REPL against reg. It never touches the network
// directly -- it only ever reads registered writers out of reg and hands
// frames to them, the same fan-out path handlers use.
type Console struct {
	reg      *state.Registry
	srv      Shutdowner
	logger   *slog.Logger
	shutdown context.CancelFunc
}

// New builds a Console. shutdown is called once "quit" completes, to let the
// owning process's errgroup unwind.
func New(reg *state.Registry, srv Shutdowner, logger *slog.Logger, shutdown context.CancelFunc) *Console {
	return &Console{reg: reg, srv: srv, logger: logger, shutdown: shutdown}
}

// Run reads commands from r and writes prompts/output to w until ctx is
// canceled, r reaches EOF, or "quit" is issued. It returns nil in all of
// those cases; failures writing to w are ignored.
func (c *Console) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Fprint(w, "> ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := c.dispatch(ctx, strings.TrimSpace(line), w); done {
				return nil
			}
			fmt.Fprint(w, "> ")
		}
	}
}

func (c *Console) dispatch(ctx context.Context, line string, w io.Writer) (done bool) {
	if line == "" {
		return false
	}
	fields := strings.SplitN(line, " ", 2)
	cmd := fields[0]

	switch cmd {
	case "list_users":
		users := c.reg.ListUsers()
		for _, u := range users {
			fmt.Fprintln(w, wire.RenderParam(string(u)))
		}
	case "list_rooms":
		rooms := c.reg.ListRooms()
		for _, rm := range rooms {
			fmt.Fprintln(w, wire.RenderParam(string(rm)))
		}
	case "broadcast":
		if len(fields) < 2 || fields[1] == "" {
			fmt.Fprintln(w, "usage: broadcast <text>")
			return false
		}
		c.broadcast(fields[1])
	case "quit":
		c.broadcastQuit()
		shutdownCtx, cancel := context.WithTimeout(ctx, fiveSeconds)
		defer cancel()
		if err := c.srv.Shutdown(shutdownCtx); err != nil {
			c.logger.Error("admin-triggered shutdown failed", "err", err)
		}
		if c.shutdown != nil {
			c.shutdown()
		}
		return true
	case "help":
		fmt.Fprintln(w, "commands: list_users, list_rooms, broadcast <text>, quit")
	default:
		fmt.Fprintf(w, "unknown command %q, try \"help\"\n", cmd)
	}
	return false
}

// broadcast sends text to every registered user as a server-originated
// MESSAGE frame; clients render it as "[server]: <text>".
func (c *Console) broadcast(text string) {
	frame := wire.NewFrame(wire.OpMessage, text)
	for _, us := range c.reg.WritersSnapshot() {
		if status := us.Session.Send(frame); status != state.SessSendOK {
			c.logger.Warn("admin broadcast delivery failed", "recipient", us.Nickname, "status", status)
		}
	}
}

// broadcastQuit writes QUIT to every connected user ahead of the listener
// shutdown closing their sockets, so well-behaved clients see a clean
// disconnect rather than a reset connection.
func (c *Console) broadcastQuit() {
	frame := wire.NewFrame(wire.OpQuit)
	for _, us := range c.reg.WritersSnapshot() {
		us.Session.Send(frame)
	}
}
