package daemon

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hircd/hircd/internal/ircconn"
	"github.com/hircd/hircd/internal/model"
	"github.com/hircd/hircd/internal/queue"
	"github.com/hircd/hircd/internal/wire"
)

// handlerDeps bundles the capabilities a dispatcher handler needs into a
// single read-mostly dependency struct rather than a grab-bag of loose
// parameters, so adding a new handler doesn't grow every existing
// handler's signature.
type handlerDeps struct {
	state      *model.State
	connectors map[model.ServerName]*ircconn.Connector
	selfNames  map[model.ServerName]model.UserName
	logger     *slog.Logger
}

// Dispatcher is the single consumer of daemon state: it owns the
// shared state region and is its only mutator, draining two producer
// queues — client requests and IRC inbound traffic — through one select
// loop so every state transition is serialized. Shaped after the
// accept/process loop in internal/daemon/daemon.go, generalized from one
// queue to a two-queue fan-in.
type Dispatcher struct {
	deps        handlerDeps
	daemonQueue *queue.Inbound
	ircQueue    *queue.Inbound
	dispatched  uint64 // atomic; count of items handled off either queue, for the metrics exporter
}

func NewDispatcher(state *model.State, connectors map[model.ServerName]*ircconn.Connector, selfNames map[model.ServerName]model.UserName, daemonQueue, ircQueue *queue.Inbound, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		deps:        handlerDeps{state: state, connectors: connectors, selfNames: selfNames, logger: logger},
		daemonQueue: daemonQueue,
		ircQueue:    ircQueue,
	}
}

// Run drains both queues until ctx is canceled. It never returns early on
// a handler error — a bad request from one client must not stop the
// daemon serving the rest.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.daemonQueue.Ready():
			d.drain(d.daemonQueue, d.handleDaemonRequest)
		case <-d.ircQueue.Ready():
			d.drain(d.ircQueue, d.handleIRCEvent)
		}
	}
}

func (d *Dispatcher) drain(q *queue.Inbound, handle func(interface{})) {
	for {
		v, ok := q.TryPop()
		if !ok {
			return
		}
		handle(v)
		atomic.AddUint64(&d.dispatched, 1)
	}
}

// DispatchedCount reports the number of items handled off either queue
// since startup, for the metrics exporter's messages-dispatched counter.
func (d *Dispatcher) DispatchedCount() uint64 {
	return atomic.LoadUint64(&d.dispatched)
}

func (d *Dispatcher) handleDaemonRequest(v interface{}) {
	req, ok := v.(wire.DaemonRequest)
	if !ok {
		d.deps.logger.Error("unexpected value on daemon request queue", "value", v)
		return
	}
	switch msg := req.Msg.(type) {
	case wire.Subscribe:
		d.handleSubscribe(req.SourceClient, msg)
	case wire.SendMessage:
		d.handleSendMessage(req.SourceClient, msg)
	case wire.Goodbye:
		d.deps.state.Goodbye(req.SourceClient)
	default:
		d.deps.logger.Error("unknown daemon request type", "type", msg)
	}
}

func (d *Dispatcher) handleSubscribe(client model.ClientID, msg wire.Subscribe) {
	entry, ok := d.deps.state.Lookup(client)
	if !ok {
		return
	}
	snapshots := d.deps.state.Subscribe(client, msg.RequestedChannels)
	entry.Outbound.Push(wire.Subscriptions{Subscribed: snapshots})
}

func (d *Dispatcher) handleSendMessage(client model.ClientID, msg wire.SendMessage) {
	if conn, ok := d.deps.connectors[msg.Target.Server]; ok {
		if err := conn.Send(msg.Target.Channel, msg.Text); err != nil {
			// No live upstream session: the send is silently dropped per
			// spec.md §4.1 — the local echo below is the history of record.
			d.deps.logger.Warn("send failed", "server", msg.Target.Server, "error", err)
		}
	}

	// Local echo author is the literal "ME" placeholder per spec — a known,
	// deliberately preserved limitation, not the per-server configured nick.
	chat := model.ChatMessage{Kind: model.KindChat, Text: msg.Text, Author: "ME", Timestamp: time.Now().UTC()}
	targets := d.deps.state.AppendMessage(msg.Target, chat)
	for _, q := range targets {
		q.Push(wire.NewMessage{Target: msg.Target, Message: chat})
	}
}

func (d *Dispatcher) handleIRCEvent(v interface{}) {
	switch ev := v.(type) {
	case ircconn.ReceiveMessage:
		targets := d.deps.state.AppendMessage(ev.Target, ev.Message)
		for _, q := range targets {
			q.Push(wire.NewMessage{Target: ev.Target, Message: ev.Message})
		}
	case ircconn.TopicChange:
		d.deps.state.SetTopic(ev.Target, ev.Topic)
		msg := model.ChatMessage{Kind: model.KindTopic, Text: ev.Topic, Author: ev.Author, Timestamp: time.Now().UTC()}
		targets := d.deps.state.AppendMessage(ev.Target, msg)
		for _, q := range targets {
			q.Push(wire.NewTopic{Target: ev.Target, Message: msg})
		}
	case ircconn.ConnectionChange:
		d.deps.state.SetConnected(ev.Server, ev.Connected)
	default:
		d.deps.logger.Error("unknown irc event type", "value", v)
	}
}
