package admin

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConsole is a minimal line-oriented admin console: username and
// password lines, a "+logged in" acknowledgement, then one response block
// (lines + blank terminator) per command line.
type fakeConsole struct {
	listener net.Listener
	accepts  atomic.Int32

	// dropAfterLogin closes each connection right after the handshake,
	// forcing clients through their reconnect path.
	dropAfterLogin atomic.Bool
}

func newFakeConsole(t *testing.T) *fakeConsole {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	console := &fakeConsole{listener: listener}
	go console.serve()
	t.Cleanup(func() { _ = listener.Close() })
	return console
}

func (f *fakeConsole) addr() string { return f.listener.Addr().String() }

func (f *fakeConsole) serve() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}
		f.accepts.Add(1)
		go f.handle(conn)
	}
}

func (f *fakeConsole) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	reader := bufio.NewReader(conn)

	user, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	pass, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	if strings.TrimSpace(user) != "ADMIN" || strings.TrimSpace(pass) != "secret" {
		fmt.Fprint(conn, "-login failed\n")
		return
	}
	fmt.Fprint(conn, "+logged in\n")

	if f.dropAfterLogin.Load() {
		return
	}

	for {
		command, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		command = strings.TrimSpace(command)
		switch {
		case command == "ping":
			fmt.Fprint(conn, "pong\n\n")
		case strings.HasPrefix(command, "account create"):
			fmt.Fprintf(conn, "Account created: %s\n\n", strings.Fields(command)[2])
		default:
			fmt.Fprintf(conn, "unknown command: %s\n\n", command)
		}
	}
}

func TestTCPChannelSendCommand(t *testing.T) {
	console := newFakeConsole(t)
	ch := NewTCPChannel(console.addr(), "ADMIN", "secret", time.Second)
	defer func() { _ = ch.Close() }()

	ctx := context.Background()
	require.NoError(t, ch.Connect(ctx))

	response, err := ch.SendCommand(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", response)

	response, err = ch.SendCommand(ctx, "account create bh_1 password")
	require.NoError(t, err)
	assert.Contains(t, response, "bh_1")
}

func TestTCPChannelLazyConnectOnSend(t *testing.T) {
	console := newFakeConsole(t)
	ch := NewTCPChannel(console.addr(), "ADMIN", "secret", time.Second)
	defer func() { _ = ch.Close() }()

	// No explicit Connect: SendCommand dials on demand.
	response, err := ch.SendCommand(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", response)
}

func TestTCPChannelRejectsBadCredentials(t *testing.T) {
	console := newFakeConsole(t)
	ch := NewTCPChannel(console.addr(), "ADMIN", "wrong", time.Second)
	defer func() { _ = ch.Close() }()

	err := ch.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login")
}

func TestTCPChannelReconnectsAfterDrop(t *testing.T) {
	console := newFakeConsole(t)
	ch := NewTCPChannel(console.addr(), "ADMIN", "secret", time.Second)
	defer func() { _ = ch.Close() }()

	ctx := context.Background()

	// First connection is dropped by the server immediately after login.
	console.dropAfterLogin.Store(true)
	require.NoError(t, ch.Connect(ctx))
	console.dropAfterLogin.Store(false)

	// The dropped connection surfaces as a read error; SendCommand must
	// reconnect and retry on a fresh connection.
	response, err := ch.SendCommand(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", response)
	assert.GreaterOrEqual(t, console.accepts.Load(), int32(2))
}

func TestTCPChannelClosedIsTerminal(t *testing.T) {
	console := newFakeConsole(t)
	ch := NewTCPChannel(console.addr(), "ADMIN", "secret", time.Second)
	require.NoError(t, ch.Close())

	assert.ErrorIs(t, ch.Connect(context.Background()), ErrChannelClosed)
	_, err := ch.SendCommand(context.Background(), "ping")
	assert.ErrorIs(t, err, ErrChannelClosed)
}
