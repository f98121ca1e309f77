package chat

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaychat/relaychat/state"
	"github.com/relaychat/relaychat/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// registerSession builds a session already bound to nick in reg, as if the
// AWAITING_NICK handshake had already completed.
func registerSession(t *testing.T, reg *Registry, nick string) *state.Session {
	t.Helper()
	sess := state.NewSession(nil)
	sess.SetNickname(state.Nickname(nick))
	sess.SetPhase(state.Active)
	require.NoError(t, reg.Register(state.Nickname(nick), sess))
	return sess
}

func TestHandleJoinRoom(t *testing.T) {
	reg := state.NewRegistry(0)
	sess := registerSession(t, reg, "alice")

	replies, err := handleJoinRoom(context.Background(), reg, sess, wire.NewFrame(wire.OpJoinRoom, "chan1"), discardLogger())
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, wire.OpResponse, replies[0].Op)
	assert.Equal(t, "Joined chan1. Current rooms: chan1", replies[0].Payload)

	replies, err = handleJoinRoom(context.Background(), reg, sess, wire.NewFrame(wire.OpJoinRoom, "chan1"), discardLogger())
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, wire.OpError, replies[0].Op)
	code, ok := wire.ErrCodeOf(replies[0])
	require.True(t, ok)
	assert.Equal(t, wire.ErrAlreadyInRoom, code)
}

func TestHandleLeaveRoomNotAMember(t *testing.T) {
	reg := state.NewRegistry(0)
	sess := registerSession(t, reg, "alice")
	require.NoError(t, reg.Join("bob", "chan1"))

	replies, err := handleLeaveRoom(context.Background(), reg, sess, wire.NewFrame(wire.OpLeaveRoom, "chan1"), discardLogger())
	require.NoError(t, err)
	require.Len(t, replies, 1)
	code, ok := wire.ErrCodeOf(replies[0])
	require.True(t, ok)
	assert.Equal(t, wire.ErrNotInRoom, code)
}

func TestHandleLeaveRoomInvalidRoom(t *testing.T) {
	reg := state.NewRegistry(0)
	sess := registerSession(t, reg, "alice")

	replies, err := handleLeaveRoom(context.Background(), reg, sess, wire.NewFrame(wire.OpLeaveRoom, "ghost"), discardLogger())
	require.NoError(t, err)
	code, ok := wire.ErrCodeOf(replies[0])
	require.True(t, ok)
	assert.Equal(t, wire.ErrInvalidRoom, code)
}

func TestHandleMessageRoomMalformed(t *testing.T) {
	reg := state.NewRegistry(0)
	sess := registerSession(t, reg, "alice")

	replies, err := handleMessageRoom(context.Background(), reg, sess, wire.Frame{Op: wire.OpMessageRoom, Payload: ""}, discardLogger())
	require.NoError(t, err)
	code, ok := wire.ErrCodeOf(replies[0])
	require.True(t, ok)
	assert.Equal(t, wire.ErrMalformed, code)
}

func TestHandleMessageRoomOnMissingRoomIsEmptyRoom(t *testing.T) {
	reg := state.NewRegistry(0)
	sess := registerSession(t, reg, "alice")

	replies, err := handleMessageRoom(context.Background(), reg, sess, wire.NewFrame(wire.OpMessageRoom, "ghost", "hi"), discardLogger())
	require.NoError(t, err)
	code, ok := wire.ErrCodeOf(replies[0])
	require.True(t, ok)
	assert.Equal(t, wire.ErrEmptyRoom, code)
}

func TestHandleMessageRoomNonMember(t *testing.T) {
	reg := state.NewRegistry(0)
	sess := registerSession(t, reg, "alice")
	require.NoError(t, reg.Join("bob", "chan1"))

	replies, err := handleMessageRoom(context.Background(), reg, sess, wire.NewFrame(wire.OpMessageRoom, "chan1", "oops"), discardLogger())
	require.NoError(t, err)
	code, ok := wire.ErrCodeOf(replies[0])
	require.True(t, ok)
	assert.Equal(t, wire.ErrNotInRoom, code)
}

func TestHandleMessageRoomFansOutPreservingSpaces(t *testing.T) {
	reg := state.NewRegistry(0)
	alice := registerSession(t, reg, "alice")
	carol := registerSession(t, reg, "carol")
	require.NoError(t, reg.Join("alice", "chan1"))
	require.NoError(t, reg.Join("carol", "chan1"))

	replies, err := handleMessageRoom(context.Background(), reg, alice, wire.NewFrame(wire.OpMessageRoom, "chan1", "hi there friend"), discardLogger())
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, wire.OpResponseOK, replies[0].Op)

	select {
	case delivered := <-carol.Out():
		assert.Equal(t, wire.OpMessageRoom, delivered.Op)
		assert.Equal(t, "chan1 alice hi there friend", delivered.Payload)
	default:
		t.Fatal("expected carol to receive a fan-out frame")
	}

	select {
	case <-alice.Out():
		t.Fatal("sender should not receive its own fan-out")
	default:
	}
}

func TestHandleMessageFansOutToEveryJoinedRoom(t *testing.T) {
	reg := state.NewRegistry(0)
	alice := registerSession(t, reg, "alice")
	carol := registerSession(t, reg, "carol")
	require.NoError(t, reg.Join("alice", "chan1"))
	require.NoError(t, reg.Join("carol", "chan1"))

	replies, err := handleMessage(context.Background(), reg, alice, wire.NewFrame(wire.OpMessage, "hello"), discardLogger())
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, wire.OpResponseOK, replies[0].Op)

	select {
	case delivered := <-carol.Out():
		assert.Equal(t, "chan1 alice hello", delivered.Payload)
	default:
		t.Fatal("expected carol to receive the broadcast")
	}
}

func TestHandleQuitUnregistersAndClosesSession(t *testing.T) {
	reg := state.NewRegistry(0)
	sess := registerSession(t, reg, "alice")
	require.NoError(t, reg.Join("alice", "chan1"))

	replies, err := handleQuit(context.Background(), reg, sess, wire.NewFrame(wire.OpQuit), discardLogger())
	require.NoError(t, err)
	assert.Nil(t, replies)
	assert.Equal(t, state.Closed, sess.Phase())

	_, found := reg.Writer("alice")
	assert.False(t, found)
	_, err = reg.Members("chan1")
	assert.ErrorIs(t, err, state.ErrInvalidRoom)
}

func TestHandleKeepAliveReturnsOK(t *testing.T) {
	reg := state.NewRegistry(0)
	sess := registerSession(t, reg, "alice")

	replies, err := handleKeepAlive(context.Background(), reg, sess, wire.NewFrame(wire.OpKeepAlive), discardLogger())
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, wire.OpResponseOK, replies[0].Op)
}

func TestHandleListUsersInRoomUnknownRoom(t *testing.T) {
	reg := state.NewRegistry(0)
	sess := registerSession(t, reg, "alice")

	replies, err := handleListUsersInRoom(context.Background(), reg, sess, wire.NewFrame(wire.OpListUsersInRoom, "ghost"), discardLogger())
	require.NoError(t, err)
	code, ok := wire.ErrCodeOf(replies[0])
	require.True(t, ok)
	assert.Equal(t, wire.ErrInvalidRoom, code)
}
