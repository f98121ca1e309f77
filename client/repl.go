package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/go-wordwrap"

	"github.com/relaychat/relaychat/wire"
)

// wrapWidth is the column the REPL wraps long server text to.
const wrapWidth = 100

// REPL drives the interactive command loop: it reads lines from in,
// translates the recognized `/`-prefixed commands (and bare text, sent as
// MESSAGE) into frames, and renders frames received from the server to out.
type REPL struct {
	conn *Conn
	out  io.Writer
}

// NewREPL builds a REPL writing to out.
func NewREPL(conn *Conn, out io.Writer) *REPL {
	return &REPL{conn: conn, out: out}
}

// Run reads commands from in until EOF or a /quit, translating each line
// into a frame sent to the server. It does not read server responses --
// that is the caller's job, typically run concurrently via RenderLoop.
func (r *REPL) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		f, quit, send, err := r.parse(line)
		if err != nil {
			fmt.Fprintln(r.out, err)
			continue
		}
		if quit {
			return r.conn.Send(wire.NewFrame(wire.OpQuit))
		}
		if !send {
			continue
		}
		if err := r.conn.Send(f); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// parse translates one REPL input line into a frame to send. send is false
// for commands handled entirely locally (/help) or rejected before ever
// reaching the wire.
func (r *REPL) parse(line string) (f wire.Frame, quit bool, send bool, err error) {
	if !strings.HasPrefix(line, "/") {
		return wire.NewFrame(wire.OpMessage, line), false, true, nil
	}

	fields := strings.SplitN(line, " ", 2)
	cmd := fields[0]
	var arg string
	if len(fields) == 2 {
		arg = fields[1]
	}

	switch cmd {
	case "/rooms":
		return wire.NewFrame(wire.OpListRooms), false, true, nil
	case "/users":
		return wire.NewFrame(wire.OpListUsers), false, true, nil
	case "/list":
		if arg == "" {
			return wire.Frame{}, false, false, fmt.Errorf("usage: /list <room>")
		}
		return wire.NewFrame(wire.OpListUsersInRoom, arg), false, true, nil
	case "/join":
		if arg == "" {
			return wire.Frame{}, false, false, fmt.Errorf("usage: /join <room>")
		}
		return wire.NewFrame(wire.OpJoinRoom, arg), false, true, nil
	case "/leave":
		if arg == "" {
			return wire.Frame{}, false, false, fmt.Errorf("usage: /leave <room>")
		}
		return wire.NewFrame(wire.OpLeaveRoom, arg), false, true, nil
	case "/msg":
		parts := strings.SplitN(arg, " ", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return wire.Frame{}, false, false, fmt.Errorf("usage: /msg <room> <text>")
		}
		return wire.NewFrame(wire.OpMessageRoom, parts[0], parts[1]), false, true, nil
	case "/help":
		fmt.Fprintln(r.out, "/rooms /users /list <room> /join <room> /leave <room> /msg <room> <text> /help /quit")
		return wire.Frame{}, false, false, nil
	case "/quit":
		return wire.Frame{}, true, false, nil
	default:
		return wire.Frame{}, false, false, fmt.Errorf("unknown command %q, try /help", cmd)
	}
}

// RenderLoop reads frames from the server and prints them until the
// connection closes, touching w on every received frame so the watchdog
// sees the activity. It is meant to run in its own goroutine.
func (r *REPL) RenderLoop(w *Watchdog) {
	for {
		f, err := r.conn.Read()
		if err != nil {
			fmt.Fprintln(r.out, "disconnected:", err)
			return
		}
		w.Touch()
		r.render(f)
	}
}

func (r *REPL) render(f wire.Frame) {
	switch f.Op {
	case wire.OpResponseOK:
		fmt.Fprintln(r.out, "ok")
	case wire.OpResponse:
		fmt.Fprintln(r.out, wordwrap.WrapString(wire.RenderParam(f.Payload), wrapWidth))
	case wire.OpMessage:
		fmt.Fprintln(r.out, "[server]: "+wordwrap.WrapString(wire.RenderParam(f.Payload), wrapWidth))
	case wire.OpError:
		code, ok := wire.ErrCodeOf(f)
		if !ok {
			fmt.Fprintln(r.out, "error: malformed error frame")
			return
		}
		fmt.Fprintln(r.out, "error:", code)
	case wire.OpMessageRoom:
		parts := f.Split(3)
		if len(parts) != 3 {
			return
		}
		fmt.Fprintf(r.out, "[%s] %s: %s\n",
			wire.RenderParam(parts[0]), wire.RenderParam(parts[1]), wordwrap.WrapString(wire.RenderParam(parts[2]), wrapWidth))
	case wire.OpQuit:
		fmt.Fprintln(r.out, "server closed the session")
	default:
		fmt.Fprintln(r.out, wire.RenderParam(f.Payload))
	}
}
