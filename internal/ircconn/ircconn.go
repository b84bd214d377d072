// Package ircconn manages one outbound IRC session per configured server,
// wrapping github.com/lrstanley/girc. It owns the connect/reconnect
// lifecycle, pushes inbound PRIVMSG/TOPIC traffic onto the daemon's IRC
// inbound queue, and exposes Send for outbound messages from the
// dispatcher. The state machine is adapted from ManagedServer's
// start/stop/crash bookkeeping (internal/daemon/manager.go and server.go),
// generalized from subprocess lifecycle to a persistent network session
// with girc's own reconnect handling underneath.
package ircconn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/girc"

	"github.com/hircd/hircd/internal/config"
	"github.com/hircd/hircd/internal/model"
)

// ReceiveMessage is what a connector pushes onto the IRC inbound queue for
// every PRIVMSG it observes (TOPIC events are pushed as TopicChange).
type ReceiveMessage struct {
	Target  model.ChannelID
	Message model.ChatMessage
}

// TopicChange is pushed for a TOPIC event, distinct from a chat message so
// the dispatcher can update channel state and fan out a NewTopic envelope.
type TopicChange struct {
	Target model.ChannelID
	Topic  string
	Author model.UserName
}

// ConnectionChange is pushed whenever this connector's upstream session
// comes up or goes away, so the dispatcher can record it on the shared
// server state (spec's connection handle / "disconnected" field).
type ConnectionChange struct {
	Server    model.ServerName
	Connected bool
}

// Inbound is the minimal surface a Connector needs from the daemon's IRC
// inbound queue.
type Inbound interface {
	Push(v interface{})
}

// Connector manages the IRC session for one configured server.
type Connector struct {
	name   model.ServerName
	cfg    *config.ServerConfig
	inbox  Inbound
	logger *slog.Logger

	mu     sync.Mutex
	client *girc.Client
}

// New builds a connector for one server. It does not connect until Run is
// called.
func New(name model.ServerName, cfg *config.ServerConfig, inbox Inbound, logger *slog.Logger) *Connector {
	return &Connector{
		name:   name,
		cfg:    cfg,
		inbox:  inbox,
		logger: logger.With("server", string(name)),
	}
}

// Run dials the server and blocks, reconnecting after a fixed 5-second
// delay each time the session ends, until ctx is canceled. It is meant to run in its own goroutine for the
// lifetime of the daemon, one per configured server.
func (c *Connector) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.runOnce(ctx); err != nil {
			c.logger.Warn("irc session ended", "error", err)
		}
		c.inbox.Push(ConnectionChange{Server: c.name, Connected: false})
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (c *Connector) runOnce(ctx context.Context) error {
	security := c.cfg.Security == config.SecurityTLS

	client := girc.New(girc.Config{
		Server: c.cfg.Host,
		Port:   c.cfg.Port,
		Nick:   c.cfg.UserName,
		User:   c.cfg.UserName,
		Name:   c.cfg.UserName,
		SSL:    security,
	})

	client.Handlers.AddBg(girc.CONNECTED, func(cl *girc.Client, e girc.Event) {
		c.onConnected(cl)
		c.inbox.Push(ConnectionChange{Server: c.name, Connected: true})
	})
	client.Handlers.AddBg(girc.DISCONNECTED, func(cl *girc.Client, e girc.Event) {
		c.setClient(nil)
		c.inbox.Push(ConnectionChange{Server: c.name, Connected: false})
	})
	client.Handlers.AddBg(girc.PRIVMSG, func(cl *girc.Client, e girc.Event) {
		c.onPrivmsg(e)
	})
	client.Handlers.AddBg(girc.TOPIC, func(cl *girc.Client, e girc.Event) {
		c.onTopic(e)
	})

	c.setClient(client)
	defer c.setClient(nil)

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	select {
	case <-ctx.Done():
		client.Close()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (c *Connector) onConnected(cl *girc.Client) {
	if c.cfg.Password != "" && c.cfg.IdentifyCommand != "" {
		password := config.ResolvePassword(c.cfg.Password)
		cmd := c.cfg.IdentifyCommand
		if strings.Contains(cmd, "%s") {
			cmd = fmt.Sprintf(cmd, password)
		}
		if err := cl.Cmd.SendRaw(cmd); err != nil {
			c.logger.Warn("identify failed", "error", err)
		}
	}
	if len(c.cfg.DefaultChannels) > 0 {
		if err := cl.Cmd.Join(c.cfg.DefaultChannels...); err != nil {
			c.logger.Warn("join failed", "error", err)
		}
	}
}

func (c *Connector) onPrivmsg(e girc.Event) {
	if len(e.Params) == 0 || e.Source == nil {
		return
	}
	target := model.ChannelID{Server: c.name, Channel: model.ChannelName(e.Params[0])}
	c.inbox.Push(ReceiveMessage{
		Target: target,
		Message: model.ChatMessage{
			Kind:      model.KindChat,
			Text:      e.Trailing,
			Author:    model.UserName(e.Source.Name),
			Timestamp: time.Now().UTC(),
		},
	})
}

func (c *Connector) onTopic(e girc.Event) {
	if len(e.Params) == 0 {
		return
	}
	target := model.ChannelID{Server: c.name, Channel: model.ChannelName(e.Params[0])}
	author := model.UserName("")
	if e.Source != nil {
		author = model.UserName(e.Source.Name)
	}
	c.inbox.Push(TopicChange{Target: target, Topic: e.Trailing, Author: author})
}

func (c *Connector) setClient(client *girc.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = client
}

// Send delivers text to target on this connector's server. Returns an
// error if the connector has no live session — there is no outbound
// buffering across reconnects: a dropped connection fails outbound
// sends rather than silently queuing them.
func (c *Connector) Send(target model.ChannelName, text string) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return fmt.Errorf("ircconn: server %s is not connected", c.name)
	}
	return client.Cmd.Message(string(target), text)
}

// IsConnected reports whether this connector currently holds a live
// session.
func (c *Connector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}
