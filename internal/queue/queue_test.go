package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboundFIFOOrder(t *testing.T) {
	q := NewInbound()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	<-q.Ready()
	var got []int
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		got = append(got, v.(int))
	}
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestInboundWakesBlockedReceiver(t *testing.T) {
	q := NewInbound()
	done := make(chan int, 1)
	go func() {
		<-q.Ready()
		v, _ := q.TryPop()
		done <- v.(int)
	}()
	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("receiver never woke up")
	}
}

func TestOutboundRecvFIFO(t *testing.T) {
	q := NewOutbound()
	q.Push("a")
	q.Push("b")

	v, ok := q.Recv()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = q.Recv()
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestOutboundCloseUnblocksRecv(t *testing.T) {
	q := NewOutbound()
	result := make(chan bool, 1)
	go func() {
		_, ok := q.Recv()
		result <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Recv never unblocked on Close")
	}
}

func TestOutboundPushAfterCloseIsNoOp(t *testing.T) {
	q := NewOutbound()
	q.Close()
	q.Push("dropped")

	_, ok := q.Recv()
	assert.False(t, ok)
}

func TestOutboundDrainsBeforeSignalingClosed(t *testing.T) {
	q := NewOutbound()
	q.Push("last")
	q.Close()

	v, ok := q.Recv()
	require.True(t, ok)
	assert.Equal(t, "last", v)

	_, ok = q.Recv()
	assert.False(t, ok)
}
