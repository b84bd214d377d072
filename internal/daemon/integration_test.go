//go:build integration

package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hircd/hircd/internal/config"
	"github.com/hircd/hircd/internal/model"
	"github.com/hircd/hircd/internal/wire"
)

// newTestDaemon starts a real daemon on a temp Unix socket with one
// configured IRC server on a .test host that never resolves, so its
// connector never connects — exercising the socket/session/dispatcher
// plumbing without needing a live network.
func newTestDaemon(t *testing.T) (*Daemon, string, context.CancelFunc) {
	t.Helper()
	socketDir := fmt.Sprintf("/tmp/hircd-t-%d", time.Now().UnixNano()%1000000)
	require.NoError(t, os.MkdirAll(socketDir, 0700))
	t.Cleanup(func() { os.RemoveAll(socketDir) })
	socketPath := filepath.Join(socketDir, "t.sock")

	cfg := config.DefaultConfig()
	cfg.Servers["freenode"] = &config.ServerConfig{Host: "irc.freenode.test", Port: 6667}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := New(cfg, socketPath, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("unix", socketPath, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	return d, socketPath, cancel
}

func dialAndReadHello(t *testing.T, socketPath string) (net.Conn, *bufio.Reader, model.ClientID) {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	require.NoError(t, err)
	r := bufio.NewReader(conn)

	msg, err := wire.DecodeClientMsg(r)
	require.NoError(t, err)
	hello, ok := msg.(wire.Hello)
	require.True(t, ok, "first frame must be Hello, got %T", msg)
	return conn, r, hello.ClientID
}

func TestDaemonHandshakeAssignsDistinctClientIDs(t *testing.T) {
	_, socketPath, cancel := newTestDaemon(t)
	defer cancel()

	conn1, _, id1 := dialAndReadHello(t, socketPath)
	defer conn1.Close()
	conn2, _, id2 := dialAndReadHello(t, socketPath)
	defer conn2.Close()

	require.NotEqual(t, id1, id2)
}

func TestDaemonSubscribeAndRelayAcrossTwoClients(t *testing.T) {
	_, socketPath, cancel := newTestDaemon(t)
	defer cancel()

	target := model.ChannelID{Server: "freenode", Channel: "#general"}

	connA, rA, idA := dialAndReadHello(t, socketPath)
	defer connA.Close()
	connB, rB, idB := dialAndReadHello(t, socketPath)
	defer connB.Close()
	require.NotEqual(t, idA, idB)

	require.NoError(t, wire.EncodeDaemonRequest(connA, wire.DaemonRequest{
		SourceClient: idA,
		Msg:          wire.Subscribe{RequestedChannels: []model.ChannelID{target}},
	}))
	require.NoError(t, wire.EncodeDaemonRequest(connB, wire.DaemonRequest{
		SourceClient: idB,
		Msg:          wire.Subscribe{RequestedChannels: []model.ChannelID{target}},
	}))

	subA, err := wire.DecodeClientMsg(rA)
	require.NoError(t, err)
	require.IsType(t, wire.Subscriptions{}, subA)
	subB, err := wire.DecodeClientMsg(rB)
	require.NoError(t, err)
	require.IsType(t, wire.Subscriptions{}, subB)

	require.NoError(t, wire.EncodeDaemonRequest(connA, wire.DaemonRequest{
		SourceClient: idA,
		Msg:          wire.SendMessage{Target: target, Text: "hello from A"},
	}))

	msg, err := wire.DecodeClientMsg(rB)
	require.NoError(t, err)
	nm, ok := msg.(wire.NewMessage)
	require.True(t, ok, "expected NewMessage, got %T", msg)
	require.Equal(t, "hello from A", nm.Message.Text)
}

func TestDaemonGoodbyeOnDisconnect(t *testing.T) {
	d, socketPath, cancel := newTestDaemon(t)
	defer cancel()

	conn, _, _ := dialAndReadHello(t, socketPath)
	require.Eventually(t, func() bool { return d.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return d.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
