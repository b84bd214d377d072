// Package queue provides the two FIFO shapes the daemon needs: an
// unbounded multi-producer/single-consumer inbound queue (used for the
// daemon request queue and the IRC inbound queue), and a closeable,
// single-consumer outbound queue whose blocking receive reports either an
// item or closed-and-drained. Both are adapted from the notify-channel-plus-slice shape of
// SerializeQueue in internal/daemon.
package queue

import "sync"

// Inbound is an unbounded FIFO with multiple producers and a single
// consumer. Close is never part of its contract — only the dispatcher
// reads it, and it lives for the daemon's lifetime.
type Inbound struct {
	mu     sync.Mutex
	items  []interface{}
	notify chan struct{}
}

// NewInbound creates an empty unbounded queue.
func NewInbound() *Inbound {
	return &Inbound{notify: make(chan struct{}, 1)}
}

// Push enqueues v and wakes a blocked receiver, if any.
func (q *Inbound) Push(v interface{}) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// tryPop removes and returns the head item, if any.
func (q *Inbound) tryPop() (interface{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	v := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return v, true
}

// Ready returns the channel the dispatcher's select statement waits on.
// A receive on Ready never yields a value itself — after it fires, call
// TryPop to drain whatever is available (there may be more than one item;
// TryPop should be called in a loop until it returns false).
func (q *Inbound) Ready() <-chan struct{} {
	return q.notify
}

// TryPop is the non-blocking pop used after Ready fires.
func (q *Inbound) TryPop() (interface{}, bool) {
	return q.tryPop()
}

// Len reports the number of items currently queued, for the metrics
// exporter's queue-depth gauges. A point-in-time snapshot; the dispatcher
// is draining concurrently, so it's stale the instant it's read.
func (q *Inbound) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// outboundState is the tri-state an Outbound receive can observe.
type outboundState int

const (
	stateItem outboundState = iota
	stateEmpty
	stateClosed
)

// Outbound is a closeable FIFO with a single consumer (a client's socket
// writer) and effectively a single producer (the dispatcher). Writes after
// Close are silently dropped, never errored.
type Outbound struct {
	mu     sync.Mutex
	items  []interface{}
	notify chan struct{}
	closed bool
	done   chan struct{}
}

// NewOutbound creates an empty, open outbound queue.
func NewOutbound() *Outbound {
	return &Outbound{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push enqueues v. A no-op once the queue is closed.
func (q *Outbound) Push(v interface{}) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Close marks the queue closed. Idempotent. After Close, Push is a no-op
// and a blocked Recv wakes with (nil, false).
func (q *Outbound) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
}

// Recv blocks until an item is available or the queue is closed, returning
// the item and true, or (nil, false) once closed and drained. This is the
// tri-state receive collapsed into the two states a writer goroutine
// actually needs to act on: "here's an item" or "stop".
func (q *Outbound) Recv() (interface{}, bool) {
	for {
		if v, ok := q.tryPop(); ok {
			return v, true
		}
		select {
		case <-q.notify:
			continue
		case <-q.done:
			if v, ok := q.tryPop(); ok {
				return v, true
			}
			return nil, false
		}
	}
}

func (q *Outbound) tryPop() (interface{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	v := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return v, true
}
