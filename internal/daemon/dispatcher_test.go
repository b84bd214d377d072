package daemon

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hircd/hircd/internal/ircconn"
	"github.com/hircd/hircd/internal/model"
	"github.com/hircd/hircd/internal/queue"
	"github.com/hircd/hircd/internal/wire"
)

func newTestDispatcher(t *testing.T) (*model.State, *queue.Inbound, *queue.Inbound, context.CancelFunc) {
	t.Helper()
	state := model.NewState([]model.ServerName{"freenode"})
	daemonQueue := queue.NewInbound()
	ircQueue := queue.NewInbound()
	selfNames := map[model.ServerName]model.UserName{"freenode": "hircd-bot"}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	d := NewDispatcher(state, map[model.ServerName]*ircconn.Connector{}, selfNames, daemonQueue, ircQueue, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	return state, daemonQueue, ircQueue, cancel
}

func recvWithin(t *testing.T, q *queue.Outbound, timeout time.Duration) (interface{}, bool) {
	t.Helper()
	type result struct {
		v  interface{}
		ok bool
	}
	done := make(chan result, 1)
	go func() {
		v, ok := q.Recv()
		done <- result{v, ok}
	}()
	select {
	case r := <-done:
		return r.v, r.ok
	case <-time.After(timeout):
		t.Fatal("Recv timed out")
		return nil, false
	}
}

func TestDispatcherSubscribeRepliesWithSnapshot(t *testing.T) {
	state, daemonQueue, _, cancel := newTestDispatcher(t)
	defer cancel()

	outbound := queue.NewOutbound()
	entry := state.AllocateClient(outbound)
	target := model.ChannelID{Server: "freenode", Channel: "#general"}

	daemonQueue.Push(wire.DaemonRequest{SourceClient: entry.ID, Msg: wire.Subscribe{RequestedChannels: []model.ChannelID{target}}})

	v, ok := recvWithin(t, outbound, time.Second)
	require.True(t, ok)
	subs, ok := v.(wire.Subscriptions)
	require.True(t, ok)
	_, present := subs.Subscribed[target]
	assert.True(t, present)
}

func TestDispatcherSendMessageFansOutToSubscribers(t *testing.T) {
	state, daemonQueue, _, cancel := newTestDispatcher(t)
	defer cancel()

	target := model.ChannelID{Server: "freenode", Channel: "#general"}

	senderOut := queue.NewOutbound()
	sender := state.AllocateClient(senderOut)
	state.Subscribe(sender.ID, []model.ChannelID{target})

	otherOut := queue.NewOutbound()
	other := state.AllocateClient(otherOut)
	state.Subscribe(other.ID, []model.ChannelID{target})

	daemonQueue.Push(wire.DaemonRequest{SourceClient: sender.ID, Msg: wire.SendMessage{Target: target, Text: "hello"}})

	v, ok := recvWithin(t, otherOut, time.Second)
	require.True(t, ok)
	nm, ok := v.(wire.NewMessage)
	require.True(t, ok)
	assert.Equal(t, "hello", nm.Message.Text)
	assert.Equal(t, model.UserName("ME"), nm.Message.Author)
}

func TestDispatcherSendMessageAppendsLogEvenWhenSenderNotSubscribed(t *testing.T) {
	state, daemonQueue, _, cancel := newTestDispatcher(t)
	defer cancel()

	target := model.ChannelID{Server: "freenode", Channel: "#general"}
	senderOut := queue.NewOutbound()
	sender := state.AllocateClient(senderOut)
	// sender never subscribes to target — spec.md §4.3 has no subscription
	// precondition on SendMessage, so the local echo still gets appended.

	daemonQueue.Push(wire.DaemonRequest{SourceClient: sender.ID, Msg: wire.SendMessage{Target: target, Text: "hello"}})

	require.Eventually(t, func() bool {
		return len(state.EnsureChannel(target).MessageLog) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDispatcherSendMessageFansOutEvenWithNoLiveConnector(t *testing.T) {
	state, daemonQueue, _, cancel := newTestDispatcher(t)
	defer cancel()

	target := model.ChannelID{Server: "freenode", Channel: "#general"}

	senderOut := queue.NewOutbound()
	sender := state.AllocateClient(senderOut)
	state.Subscribe(sender.ID, []model.ChannelID{target})

	otherOut := queue.NewOutbound()
	other := state.AllocateClient(otherOut)
	state.Subscribe(other.ID, []model.ChannelID{target})

	// This dispatcher has no connectors at all (newTestDispatcher), so the
	// send is silently dropped per spec.md §4.1 — the local echo and
	// fan-out to every subscriber, including the sender, must still happen.
	daemonQueue.Push(wire.DaemonRequest{SourceClient: sender.ID, Msg: wire.SendMessage{Target: target, Text: "hi"}})

	v, ok := recvWithin(t, senderOut, time.Second)
	require.True(t, ok)
	nm, ok := v.(wire.NewMessage)
	require.True(t, ok)
	assert.Equal(t, "hi", nm.Message.Text)

	v, ok = recvWithin(t, otherOut, time.Second)
	require.True(t, ok)
	nm, ok = v.(wire.NewMessage)
	require.True(t, ok)
	assert.Equal(t, "hi", nm.Message.Text)
}

func TestDispatcherGoodbyeClosesOutboundAndDropsClient(t *testing.T) {
	state, daemonQueue, _, cancel := newTestDispatcher(t)
	defer cancel()

	outbound := queue.NewOutbound()
	entry := state.AllocateClient(outbound)

	daemonQueue.Push(wire.DaemonRequest{SourceClient: entry.ID, Msg: wire.Goodbye{}})

	require.Eventually(t, func() bool {
		_, ok := state.Lookup(entry.ID)
		return !ok
	}, time.Second, 10*time.Millisecond)

	_, ok := outbound.Recv()
	assert.False(t, ok)
}

func TestDispatcherIRCReceiveMessageFansOutAndAppendsLog(t *testing.T) {
	state, _, ircQueue, cancel := newTestDispatcher(t)
	defer cancel()

	target := model.ChannelID{Server: "freenode", Channel: "#general"}
	out := queue.NewOutbound()
	entry := state.AllocateClient(out)
	state.Subscribe(entry.ID, []model.ChannelID{target})

	msg := model.ChatMessage{Kind: model.KindChat, Text: "from irc", Author: "alice", Timestamp: time.Now()}
	ircQueue.Push(ircconn.ReceiveMessage{Target: target, Message: msg})

	v, ok := recvWithin(t, out, time.Second)
	require.True(t, ok)
	nm, ok := v.(wire.NewMessage)
	require.True(t, ok)
	assert.Equal(t, "from irc", nm.Message.Text)

	ch := state.EnsureChannel(target)
	require.Len(t, ch.MessageLog, 1)
}

func TestDispatcherIRCTopicChangeUpdatesStateAndFansOut(t *testing.T) {
	state, _, ircQueue, cancel := newTestDispatcher(t)
	defer cancel()

	target := model.ChannelID{Server: "freenode", Channel: "#general"}
	out := queue.NewOutbound()
	entry := state.AllocateClient(out)
	state.Subscribe(entry.ID, []model.ChannelID{target})

	ircQueue.Push(ircconn.TopicChange{Target: target, Topic: "new topic", Author: "alice"})

	v, ok := recvWithin(t, out, time.Second)
	require.True(t, ok)
	nt, ok := v.(wire.NewTopic)
	require.True(t, ok)
	assert.Equal(t, "new topic", nt.Message.Text)

	ch := state.EnsureChannel(target)
	assert.Equal(t, "new topic", ch.Topic)
}

func TestDispatcherIRCConnectionChangeUpdatesConnectedState(t *testing.T) {
	state, _, ircQueue, cancel := newTestDispatcher(t)
	defer cancel()

	require.False(t, state.IsConnected("freenode"))

	ircQueue.Push(ircconn.ConnectionChange{Server: "freenode", Connected: true})
	require.Eventually(t, func() bool {
		return state.IsConnected("freenode")
	}, time.Second, 10*time.Millisecond)

	ircQueue.Push(ircconn.ConnectionChange{Server: "freenode", Connected: false})
	require.Eventually(t, func() bool {
		return !state.IsConnected("freenode")
	}, time.Second, 10*time.Millisecond)
}
