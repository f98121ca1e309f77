package chat

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaychat/relaychat/state"
	"github.com/relaychat/relaychat/wire"
)

func testRouter() Router {
	rt := NewRouter()
	RegisterHandlers(rt)
	return rt
}

func TestRun_HandshakeThenActive(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	reg := state.NewRegistry(0)
	sess := state.NewSession(server)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(context.Background(), sess, testRouter(), reg, discardLogger())
	}()

	_, err := wire.NewFrame(wire.OpRegisterNick, "alice").WriteTo(client)
	require.NoError(t, err)

	reply, err := wire.ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, wire.OpResponseOK, reply.Op)
	assert.Equal(t, state.Nickname("alice"), sess.Nickname())

	_, err = wire.NewFrame(wire.OpKeepAlive).WriteTo(client)
	require.NoError(t, err)
	reply, err = wire.ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, wire.OpResponseOK, reply.Op)

	client.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after client disconnect")
	}

	_, found := reg.Writer("alice")
	assert.False(t, found)
}

func TestRun_WrongOpcodeBeforeRegistrationCloses(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	reg := state.NewRegistry(0)
	sess := state.NewSession(server)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(context.Background(), sess, testRouter(), reg, discardLogger())
	}()

	_, err := wire.NewFrame(wire.OpKeepAlive).WriteTo(client)
	require.NoError(t, err)

	reply, err := wire.ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, wire.OpError, reply.Op)
	code, ok := wire.ErrCodeOf(reply)
	require.True(t, ok)
	assert.Equal(t, wire.ErrNotYetRegistered, code)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not close the session after a pre-registration protocol violation")
	}
}

func TestRun_UnroutableOpcodeWhileActiveYieldsMalformedAndContinues(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	reg := state.NewRegistry(0)
	sess := state.NewSession(server)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(context.Background(), sess, testRouter(), reg, discardLogger())
	}()

	_, err := wire.NewFrame(wire.OpRegisterNick, "alice").WriteTo(client)
	require.NoError(t, err)
	reply, err := wire.ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, wire.OpResponseOK, reply.Op)

	_, err = wire.NewFrame(wire.OpResponse, "not a real client opcode").WriteTo(client)
	require.NoError(t, err)

	reply, err = wire.ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, wire.OpError, reply.Op)
	code, ok := wire.ErrCodeOf(reply)
	require.True(t, ok)
	assert.Equal(t, wire.ErrMalformed, code)

	_, err = wire.NewFrame(wire.OpKeepAlive).WriteTo(client)
	require.NoError(t, err)
	reply, err = wire.ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, wire.OpResponseOK, reply.Op, "session must still be usable after the unroutable opcode")

	client.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after client disconnect")
	}
}

func TestRun_NicknameCollisionCloses(t *testing.T) {
	reg := state.NewRegistry(0)
	taken := state.NewSession(nil)
	require.NoError(t, reg.Register("alice", taken))

	client, server := net.Pipe()
	defer client.Close()
	sess := state.NewSession(server)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(context.Background(), sess, testRouter(), reg, discardLogger())
	}()

	_, err := wire.NewFrame(wire.OpRegisterNick, "alice").WriteTo(client)
	require.NoError(t, err)

	reply, err := wire.ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, wire.OpError, reply.Op)
	code, ok := wire.ErrCodeOf(reply)
	require.True(t, ok)
	assert.Equal(t, wire.ErrNicknameCollision, code)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not close the session after a nickname collision")
	}
}
