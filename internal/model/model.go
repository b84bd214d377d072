// Package model holds the daemon's shared data model: the server/channel
// map, the client registry, and the (server, channel) -> clients
// subscription index. A single Daemon value owns one State; it is
// mutated by the dispatcher goroutine, and the per-connection session
// goroutines also register clients (and drop them if the Hello write
// fails), so the guarding mutex serializes those writes as well as the
// readers (the session composing a Hello envelope).
package model

import (
	"sort"
	"sync"
	"time"
)

// ServerName is an opaque label, unique per configured IRC server.
type ServerName string

// ChannelName is an opaque label for an IRC channel, leading '#' included.
type ChannelName string

// UserName is an opaque label identifying a chat participant.
type UserName string

// ChannelID identifies a channel on a specific server. Total order is the
// lexical pair (Server, Channel).
type ChannelID struct {
	Server  ServerName
	Channel ChannelName
}

// Less implements the lexical-pair total order required of ChannelId.
func (c ChannelID) Less(o ChannelID) bool {
	if c.Server != o.Server {
		return c.Server < o.Server
	}
	return c.Channel < o.Channel
}

// ClientID is a daemon-assigned, strictly increasing, never-reused identifier.
type ClientID uint64

// MessageKind distinguishes the two ChannelMessage variants that share the
// same shape.
type MessageKind int

const (
	KindChat MessageKind = iota
	KindTopic
)

// ChatMessage is the shared shape for both chat and topic-change messages.
type ChatMessage struct {
	Kind      MessageKind
	Text      string
	Author    UserName
	Timestamp time.Time
}

// ChannelState is the live, mutable state of one channel. MessageLog grows
// without bound in this core; trimming is a deliberate non-goal.
type ChannelState struct {
	Topic      string
	MessageLog []ChatMessage
	Users      map[UserName]struct{}
}

func newChannelState() *ChannelState {
	return &ChannelState{Users: make(map[UserName]struct{})}
}

// ChannelSnapshot is the point-in-time view of a channel handed to a client
// on Subscribe.
type ChannelSnapshot struct {
	Topic      string
	MessageLog []ChatMessage
	Users      []UserName
}

func (c *ChannelState) snapshot() ChannelSnapshot {
	log := make([]ChatMessage, len(c.MessageLog))
	copy(log, c.MessageLog)
	users := make([]UserName, 0, len(c.Users))
	for u := range c.Users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return ChannelSnapshot{Topic: c.Topic, MessageLog: log, Users: users}
}

// EmptyChannelSnapshot is what Subscribe returns for a channel the daemon
// has never seen — intentional, so clients can subscribe eagerly before a
// server connects.
func EmptyChannelSnapshot() ChannelSnapshot {
	return ChannelSnapshot{MessageLog: []ChatMessage{}, Users: []UserName{}}
}

// ServerState is the per-server record: known channels and whether the IRC
// connector currently holds a live connection.
type ServerState struct {
	Channels  map[ChannelName]*ChannelState
	Connected bool
}

func newServerState() *ServerState {
	return &ServerState{Channels: make(map[ChannelName]*ChannelState)}
}

// State is the daemon's full shared-state region: the server/channel map,
// the client registry, and the subscription index, guarded by one mutex.
// These are conceptually three cells; a single lock is
// sufficient (not a simplification of the invariants, just of the
// implementation) because the dispatcher is their main mutator and every
// compound operation below already needs to touch more than one of them
// atomically (e.g. Subscribe touches both the registry and the index).
type State struct {
	mu       sync.Mutex
	servers  map[ServerName]*ServerState
	registry map[ClientID]*ClientEntry
	subs     map[ChannelID]map[ClientID]struct{}
	nextID   uint64
}

// ClientEntry is the per-connected-client registry record.
type ClientEntry struct {
	ID         ClientID
	Outbound   OutboundQueue
	Subscribed map[ChannelID]struct{}
}

// OutboundQueue is the minimal surface the model needs from a per-client
// outbound queue: enqueue and close. The concrete closeable FIFO lives in
// package queue to keep this package free of concurrency primitives beyond
// its own mutex.
type OutboundQueue interface {
	Push(v interface{})
	Close()
}

// NewState builds an empty shared-state region seeded with the given
// servers. It creates no channels; the daemon adds each server's
// configured default channels with EnsureChannel right after, so Hello
// can advertise them before any traffic arrives.
func NewState(serverNames []ServerName) *State {
	s := &State{
		servers:  make(map[ServerName]*ServerState),
		registry: make(map[ClientID]*ClientEntry),
		subs:     make(map[ChannelID]map[ClientID]struct{}),
	}
	for _, name := range serverNames {
		s.servers[name] = newServerState()
	}
	return s
}

// EnsureChannel creates channel state lazily if it doesn't already exist,
// on first inbound message to an unseen channel. An unknown server is
// created along with it.
func (s *State) EnsureChannel(id ChannelID) *ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureChannelLocked(id)
}

func (s *State) ensureChannelLocked(id ChannelID) *ChannelState {
	srv, ok := s.servers[id.Server]
	if !ok {
		srv = newServerState()
		s.servers[id.Server] = srv
	}
	ch, ok := srv.Channels[id.Channel]
	if !ok {
		ch = newChannelState()
		srv.Channels[id.Channel] = ch
	}
	return ch
}

// SetConnected records whether the IRC connector for a server currently
// holds a live session.
func (s *State) SetConnected(server ServerName, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[server]
	if !ok {
		srv = newServerState()
		s.servers[server] = srv
	}
	srv.Connected = connected
}

// IsConnected reports whether the named server's IRC connector currently
// holds a live session.
func (s *State) IsConnected(server ServerName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[server]
	return ok && srv.Connected
}

// KnownChannels returns every ChannelId known to the daemon across all
// servers — the catalog a fresh client's Hello envelope advertises.
// Readers outside the dispatcher take this as a point-in-time snapshot;
// staleness is acceptable since Subscribe is the authoritative later step.
func (s *State) KnownChannels() []ChannelID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ChannelID
	for srvName, srv := range s.servers {
		for chName := range srv.Channels {
			out = append(out, ChannelID{Server: srvName, Channel: chName})
		}
	}
	return out
}

// AllocateClient assigns the next strictly-increasing ClientId, creates its
// registry entry, and registers its outbound queue, all in one atomic
// region so that no two clients ever observe the same id and no message can
// be lost between registration and the first write.
func (s *State) AllocateClient(outbound OutboundQueue) *ClientEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry := &ClientEntry{
		ID:         ClientID(s.nextID),
		Outbound:   outbound,
		Subscribed: make(map[ChannelID]struct{}),
	}
	s.registry[entry.ID] = entry
	return entry
}

// Subscribe adds clientID to each requested channel's subscription bucket
// (creating channel state lazily for unknown channels) and returns the
// ChannelData snapshot for each, in one atomic region. Duplicate
// subscriptions are idempotent.
func (s *State) Subscribe(clientID ClientID, channels []ChannelID) map[ChannelID]ChannelSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[ChannelID]ChannelSnapshot, len(channels))
	entry, ok := s.registry[clientID]
	for _, id := range channels {
		ch := s.ensureChannelLocked(id)
		result[id] = ch.snapshot()

		if bucket, ok := s.subs[id]; ok {
			bucket[clientID] = struct{}{}
		} else {
			s.subs[id] = map[ClientID]struct{}{clientID: {}}
		}
		if ok {
			entry.Subscribed[id] = struct{}{}
		}
	}
	return result
}

// AppendMessage appends msg to the channel's log and returns the snapshot
// of subscriber outbound queues to notify — append and fan-out snapshot are
// taken in the same atomic region so that every subscriber sees the same
// total order per channel.
func (s *State) AppendMessage(id ChannelID, msg ChatMessage) []OutboundQueue {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.ensureChannelLocked(id)
	ch.MessageLog = append(ch.MessageLog, msg)

	bucket := s.subs[id]
	queues := make([]OutboundQueue, 0, len(bucket))
	for cid := range bucket {
		if entry, ok := s.registry[cid]; ok {
			queues = append(queues, entry.Outbound)
		}
	}
	return queues
}

// SetTopic records a new topic for a channel (used by the NewTopic/
// InitialTopic extension points).
func (s *State) SetTopic(id ChannelID, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.ensureChannelLocked(id)
	ch.Topic = topic
}

// Goodbye tears down a client: closes its outbound queue, removes the
// registry entry, and removes it from every subscription bucket it was in,
// all in one atomic region.
func (s *State) Goodbye(clientID ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeClientLocked(clientID)
}

func (s *State) removeClientLocked(clientID ClientID) {
	entry, ok := s.registry[clientID]
	if !ok {
		return
	}
	entry.Outbound.Close()
	delete(s.registry, clientID)
	for chID := range entry.Subscribed {
		if bucket, ok := s.subs[chID]; ok {
			delete(bucket, clientID)
			if len(bucket) == 0 {
				delete(s.subs, chID)
			}
		}
	}
}

// Lookup returns the registry entry for a client, if present.
func (s *State) Lookup(clientID ClientID) (*ClientEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.registry[clientID]
	return e, ok
}

// Subscribers returns the outbound queues of every client currently
// subscribed to the given channel.
func (s *State) Subscribers(id ChannelID) []OutboundQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.subs[id]
	queues := make([]OutboundQueue, 0, len(bucket))
	for cid := range bucket {
		if entry, ok := s.registry[cid]; ok {
			queues = append(queues, entry.Outbound)
		}
	}
	return queues
}

// IsSubscribed reports whether clientID is subscribed to id — used by
// tests asserting the registry/index consistency invariant.
func (s *State) IsSubscribed(clientID ClientID, id ChannelID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.subs[id]
	if !ok {
		return false
	}
	_, ok = bucket[clientID]
	return ok
}

// ClientCount returns the number of currently registered clients, for the
// metrics exporter.
func (s *State) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registry)
}
