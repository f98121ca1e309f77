package chat

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/relaychat/relaychat/state"
	"github.com/relaychat/relaychat/wire"
)

// RegisterHandlers wires every opcode in the wire protocol to its handler.
func RegisterHandlers(rt Router) {
	rt.Register(wire.OpRegisterNick, handleRegisterNick)
	rt.Register(wire.OpListRooms, handleListRooms)
	rt.Register(wire.OpListUsers, handleListUsers)
	rt.Register(wire.OpListUsersInRoom, handleListUsersInRoom)
	rt.Register(wire.OpJoinRoom, handleJoinRoom)
	rt.Register(wire.OpLeaveRoom, handleLeaveRoom)
	rt.Register(wire.OpMessage, handleMessage)
	rt.Register(wire.OpMessageRoom, handleMessageRoom)
	rt.Register(wire.OpKeepAlive, handleKeepAlive)
	rt.Register(wire.OpQuit, handleQuit)
}

// handleRegisterNick is only reachable while ACTIVE -- the AWAITING_NICK
// registration handshake is handled directly by Run, since a second
// REGISTER_NICK while already registered (ErrAlreadyRegistered) is the only
// path that reaches here through the router.
func handleRegisterNick(_ context.Context, _ *Registry, _ *state.Session, _ wire.Frame, _ *slog.Logger) ([]wire.Frame, error) {
	return []wire.Frame{wire.ErrorFrame(wire.ErrAlreadyRegistered)}, nil
}

func handleListRooms(_ context.Context, reg *Registry, _ *state.Session, _ wire.Frame, _ *slog.Logger) ([]wire.Frame, error) {
	rooms := reg.ListRooms()
	names := make([]string, len(rooms))
	for i, r := range rooms {
		names[i] = string(r)
	}
	sort.Strings(names)
	return []wire.Frame{wire.ResponseFrame(joinWithTrailingSpace(names))}, nil
}

func handleListUsers(_ context.Context, reg *Registry, _ *state.Session, _ wire.Frame, _ *slog.Logger) ([]wire.Frame, error) {
	users := reg.ListUsers()
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = string(u)
	}
	sort.Strings(names)
	return []wire.Frame{wire.ResponseFrame(joinWithTrailingSpace(names))}, nil
}

func handleListUsersInRoom(_ context.Context, reg *Registry, _ *state.Session, f wire.Frame, _ *slog.Logger) ([]wire.Frame, error) {
	room := state.Room(f.Payload)
	members, err := reg.Members(room)
	if err != nil {
		return []wire.Frame{wire.ErrorFrame(wire.ErrInvalidRoom)}, nil
	}
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = string(m)
	}
	return []wire.Frame{wire.ResponseFrame(joinWithTrailingSpace(names))}, nil
}

func handleJoinRoom(_ context.Context, reg *Registry, sess *state.Session, f wire.Frame, _ *slog.Logger) ([]wire.Frame, error) {
	nick := sess.Nickname()
	room := state.Room(f.Payload)

	if err := reg.Join(nick, room); err != nil {
		return []wire.Frame{wire.ErrorFrame(wire.ErrAlreadyInRoom)}, nil
	}

	return []wire.Frame{wire.ResponseFrame("Joined " + string(room) + ". Current rooms: " + roomsOfList(reg, nick))}, nil
}

func handleLeaveRoom(_ context.Context, reg *Registry, sess *state.Session, f wire.Frame, _ *slog.Logger) ([]wire.Frame, error) {
	nick := sess.Nickname()
	room := state.Room(f.Payload)

	switch err := reg.Leave(nick, room); err {
	case nil:
		return []wire.Frame{wire.ResponseFrame("Left " + string(room) + ". Current rooms: " + roomsOfList(reg, nick))}, nil
	case state.ErrNotInRoom:
		return []wire.Frame{wire.ErrorFrame(wire.ErrNotInRoom)}, nil
	case state.ErrInvalidRoom:
		return []wire.Frame{wire.ErrorFrame(wire.ErrInvalidRoom)}, nil
	default:
		return []wire.Frame{wire.ErrorFrame(wire.ErrInvalidRoom)}, nil
	}
}

// handleMessage broadcasts text to every room the sender belongs to. Rooms
// are processed in the order reg.RoomsOf returns them; within each room,
// members are fanned out to in insertion order. The sender's acknowledgement
// is returned only after every fan-out write below has been issued.
func handleMessage(_ context.Context, reg *Registry, sess *state.Session, f wire.Frame, logger *slog.Logger) ([]wire.Frame, error) {
	nick := sess.Nickname()
	text := f.Payload

	for _, room := range reg.RoomsOf(nick) {
		fanOutToRoom(reg, room, nick, text, logger)
	}
	return []wire.Frame{wire.OKFrame()}, nil
}

// handleMessageRoom handles a targeted room message. The client payload is
// "room msg" (2 logical params); the reply fanned out to peers is
// "room sender msg" (3 logical params).
func handleMessageRoom(_ context.Context, reg *Registry, sess *state.Session, f wire.Frame, logger *slog.Logger) ([]wire.Frame, error) {
	parts := f.Split(2)
	if len(parts) != 2 {
		return []wire.Frame{wire.ErrorFrame(wire.ErrMalformed)}, nil
	}
	room, text := state.Room(parts[0]), parts[1]
	nick := sess.Nickname()

	members, err := reg.Members(room)
	if err != nil {
		return []wire.Frame{wire.ErrorFrame(wire.ErrEmptyRoom)}, nil
	}
	if !containsNick(members, nick) {
		return []wire.Frame{wire.ErrorFrame(wire.ErrNotInRoom)}, nil
	}

	fanOutMembers(reg, members, nick, room, text, logger)
	return []wire.Frame{wire.OKFrame()}, nil
}

func handleKeepAlive(_ context.Context, _ *Registry, _ *state.Session, _ wire.Frame, _ *slog.Logger) ([]wire.Frame, error) {
	return []wire.Frame{wire.OKFrame()}, nil
}

// handleQuit unregisters the sender and transitions it to CLOSED. The
// session's own teardown (closing the connection) happens in Run
// after the handler returns -- this handler is responsible only for the
// registry-visible side effect.
func handleQuit(_ context.Context, reg *Registry, sess *state.Session, _ wire.Frame, _ *slog.Logger) ([]wire.Frame, error) {
	reg.Unregister(sess.Nickname())
	sess.SetPhase(state.Closed)
	return nil, nil
}

// fanOutToRoom looks up room's current membership and delivers text to every
// member but sender.
func fanOutToRoom(reg *Registry, room state.Room, sender state.Nickname, text string, logger *slog.Logger) {
	members, err := reg.MembersSnapshot(room)
	if err != nil {
		return // room vanished between RoomsOf and now; nothing to deliver
	}
	fanOutMembers(reg, members, sender, room, text, logger)
}

func fanOutMembers(reg *Registry, members []state.Nickname, sender state.Nickname, room state.Room, text string, logger *slog.Logger) {
	frame := wire.NewFrame(wire.OpMessageRoom, string(room), string(sender), text)
	for _, member := range members {
		if member == sender {
			continue
		}
		peer, ok := reg.Writer(member)
		if !ok {
			continue
		}
		if status := peer.Send(frame); status != state.SessSendOK && logger != nil {
			logger.Warn("fan-out write failed", "recipient", member, "room", room, "status", status)
		}
	}
}

func containsNick(list []state.Nickname, nick state.Nickname) bool {
	for _, n := range list {
		if n == nick {
			return true
		}
	}
	return false
}

func roomsOfList(reg *Registry, nick state.Nickname) string {
	rooms := reg.RoomsOf(nick)
	names := make([]string, len(rooms))
	for i, r := range rooms {
		names[i] = string(r)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// joinWithTrailingSpace joins names with a single space and, if non-empty,
// a trailing space, matching the tolerated "RESPONSE <n1> <n2> " format for
// LIST_ROOMS/LIST_USERS/LIST_USERS_IN_ROOM.
func joinWithTrailingSpace(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.Join(names, " ") + " "
}
