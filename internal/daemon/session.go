package daemon

import (
	"bufio"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/hircd/hircd/internal/model"
	"github.com/hircd/hircd/internal/queue"
	"github.com/hircd/hircd/internal/wire"
)

// clientSession is the per-connection pair of goroutines a client socket
// gets: one reading DaemonRequest frames into the shared request queue, one
// draining the client's own outbound queue back onto the wire. Generalized
// from a line-delimited JSON per-connection session to the length-framed
// binary envelope, and split into independent read/write loops since
// outbound traffic is no longer a direct reply to an inbound line.
type clientSession struct {
	id     model.ClientID
	connID string // internal correlation id for log lines, independent of the protocol ClientId
	conn   net.Conn
	logger *slog.Logger
}

// runSession registers a new client in state, sends its Hello envelope,
// and runs its reader and writer loops until the connection closes. It
// blocks until both loops exit, so it is meant to run in its own
// goroutine per accepted connection.
func runSession(conn net.Conn, state *model.State, daemonQueue *queue.Inbound, logger *slog.Logger) {
	defer conn.Close()

	outbound := queue.NewOutbound()
	entry := state.AllocateClient(outbound)
	connID := uuid.New().String()
	sess := &clientSession{
		id:     entry.ID,
		connID: connID,
		conn:   conn,
		logger: logger.With("client", uint64(entry.ID), "conn", connID),
	}

	hello := wire.Hello{ClientID: entry.ID, AvailableChannels: state.KnownChannels()}
	if err := wire.EncodeClientMsg(conn, hello); err != nil {
		sess.logger.Warn("failed to send hello", "error", err)
		state.Goodbye(entry.ID)
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sess.writeLoop(outbound)
	}()

	sess.readLoop(daemonQueue)

	// The read loop returns once the connection is gone or the client has
	// sent Goodbye; tear the
	// client down so the dispatcher stops trying to reach it, which in
	// turn closes its outbound queue and unblocks the writer.
	daemonQueue.Push(wire.DaemonRequest{SourceClient: entry.ID, Msg: wire.Goodbye{}})
	<-writerDone
}

func (s *clientSession) readLoop(daemonQueue *queue.Inbound) {
	r := bufio.NewReader(s.conn)
	for {
		req, err := wire.DecodeDaemonRequest(r)
		if err != nil {
			return
		}
		req.SourceClient = s.id
		daemonQueue.Push(req)
		if _, isGoodbye := req.Msg.(wire.Goodbye); isGoodbye {
			return
		}
	}
}

func (s *clientSession) writeLoop(outbound *queue.Outbound) {
	for {
		v, ok := outbound.Recv()
		if !ok {
			return
		}
		msg, ok := v.(wire.ClientMsg)
		if !ok {
			s.logger.Error("non-ClientMsg value on outbound queue", "value", v)
			continue
		}
		if err := wire.EncodeClientMsg(s.conn, msg); err != nil {
			s.logger.Debug("write failed, closing session", "error", err)
			s.conn.Close()
			return
		}
	}
}
