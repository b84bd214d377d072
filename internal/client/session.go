// Package client implements hirc's side of the daemon connection: dial the
// Unix socket, complete the Hello handshake, and expose a small API the
// terminal UI drives (Subscribe, Send, incoming message stream). Adapted
// from internal/shim/shim.go's dial-and-bridge pattern, generalized from
// a one-shot stdio bridge to an interactive session that decodes and
// dispatches structured envelopes instead of copying raw bytes.
package client

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	"github.com/hircd/hircd/internal/model"
	"github.com/hircd/hircd/internal/wire"
)

// Session is one hirc connection to a running hircd daemon.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader

	ClientID model.ClientID

	mu sync.Mutex

	// Incoming delivers every envelope after Hello, in arrival order, for
	// the UI layer to consume. Closed when the read loop exits.
	Incoming chan wire.ClientMsg
}

// Dial connects to the daemon at socketPath and completes the Hello
// handshake, returning a Session whose read loop is already running.
func Dial(socketPath string) (*Session, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}

	reader := bufio.NewReader(conn)
	msg, err := wire.DecodeClientMsg(reader)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read hello: %w", err)
	}
	hello, ok := msg.(wire.Hello)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("expected hello, got %T", msg)
	}

	sess := &Session{
		conn:     conn,
		reader:   reader,
		ClientID: hello.ClientID,
		Incoming: make(chan wire.ClientMsg, 64),
	}
	go sess.readLoop()

	// Per the daemon session contract: a client subscribes to every
	// channel Hello advertised immediately, before the UI has rendered
	// anything. The Subscriptions reply arrives asynchronously on Incoming.
	if err := sess.Subscribe(hello.AvailableChannels); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to advertised channels: %w", err)
	}

	return sess, nil
}

func (s *Session) readLoop() {
	defer close(s.Incoming)
	for {
		msg, err := wire.DecodeClientMsg(s.reader)
		if err != nil {
			return
		}
		s.Incoming <- msg
	}
}

// Subscribe requests the given channels, the daemon reply arrives as a
// Subscriptions envelope on Incoming.
func (s *Session) Subscribe(channels []model.ChannelID) error {
	return s.send(wire.Subscribe{RequestedChannels: channels})
}

// Send posts a chat message to target.
func (s *Session) Send(target model.ChannelID, text string) error {
	return s.send(wire.SendMessage{Target: target, Text: text})
}

// Close tells the daemon this client is going away and closes the socket.
func (s *Session) Close() error {
	_ = s.send(wire.Goodbye{})
	return s.conn.Close()
}

func (s *Session) send(msg wire.DaemonMsg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wire.EncodeDaemonRequest(s.conn, wire.DaemonRequest{SourceClient: s.ClientID, Msg: msg})
}
