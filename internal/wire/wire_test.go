package wire

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hircd/hircd/internal/model"
)

func TestClientMsgRoundTrip(t *testing.T) {
	ts := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	cases := []ClientMsg{
		Hello{
			ClientID: model.ClientID(7),
			AvailableChannels: []model.ChannelID{
				{Server: "freenode", Channel: "#general"},
				{Server: "oftc", Channel: "#oftc"},
			},
		},
		Subscriptions{
			Subscribed: map[model.ChannelID]model.ChannelSnapshot{
				{Server: "freenode", Channel: "#general"}: {
					Topic: "welcome",
					MessageLog: []model.ChatMessage{
						{Kind: model.KindChat, Text: "hi", Author: "alice", Timestamp: ts},
					},
					Users: []model.UserName{"alice", "bob"},
				},
			},
		},
		NewMessage{
			Target:  model.ChannelID{Server: "freenode", Channel: "#general"},
			Message: model.ChatMessage{Kind: model.KindChat, Text: "hello there", Author: "alice", Timestamp: ts},
		},
		NewTopic{
			Target:  model.ChannelID{Server: "freenode", Channel: "#general"},
			Message: model.ChatMessage{Kind: model.KindTopic, Text: "new topic", Author: "alice", Timestamp: ts},
		},
		InitialTopic{
			Target: model.ChannelID{Server: "freenode", Channel: "#general"},
			Topic:  "welcome",
		},
	}

	for _, msg := range cases {
		var buf bytes.Buffer
		require.NoError(t, EncodeClientMsg(&buf, msg))

		got, err := DecodeClientMsg(bufio.NewReader(&buf))
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestClientMsgRoundTripStreamsMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	m1 := Hello{ClientID: 1, AvailableChannels: []model.ChannelID{}}
	m2 := InitialTopic{Target: model.ChannelID{Server: "s", Channel: "#c"}, Topic: "t"}

	require.NoError(t, EncodeClientMsg(&buf, m1))
	require.NoError(t, EncodeClientMsg(&buf, m2))

	r := bufio.NewReader(&buf)
	got1, err := DecodeClientMsg(r)
	require.NoError(t, err)
	assert.Equal(t, ClientMsg(m1), got1)

	got2, err := DecodeClientMsg(r)
	require.NoError(t, err)
	assert.Equal(t, ClientMsg(m2), got2)
}

func TestDaemonRequestRoundTrip(t *testing.T) {
	cases := []DaemonRequest{
		{
			SourceClient: model.ClientID(3),
			Msg: Subscribe{RequestedChannels: []model.ChannelID{
				{Server: "freenode", Channel: "#general"},
			}},
		},
		{
			SourceClient: model.ClientID(3),
			Msg:          SendMessage{Target: model.ChannelID{Server: "freenode", Channel: "#general"}, Text: "hi"},
		},
		{
			SourceClient: model.ClientID(3),
			Msg:          Goodbye{},
		},
	}

	for _, req := range cases {
		var buf bytes.Buffer
		require.NoError(t, EncodeDaemonRequest(&buf, req))

		got, err := DecodeDaemonRequest(bufio.NewReader(&buf))
		require.NoError(t, err)
		assert.Equal(t, req, got)
	}
}

func TestDecodeClientMsgRejectsUnknownTag(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte{0xFF}))

	_, err := DecodeClientMsg(bufio.NewReader(&buf))
	assert.Error(t, err)
}

func TestDecodeDaemonRequestRejectsUnknownTag(t *testing.T) {
	var buf bytes.Buffer
	w := &writer{}
	w.u64(1)
	w.byte(0xFF)
	require.NoError(t, writeFrame(&buf, w.buf))

	_, err := DecodeDaemonRequest(bufio.NewReader(&buf))
	assert.Error(t, err)
}
