// Package wire implements the length-framed, tagged-union binary envelope
// described here: a 4-byte big-endian frame length, a tag byte,
// then fields in declaration order. Textual fields carry a 4-byte
// big-endian length prefix; sequences carry a 4-byte big-endian count.
// There is no ecosystem library for this exact scheme (it exists only to
// preserve field/tag-order compatibility with a specific external format),
// so it is hand-rolled over encoding/binary — see DESIGN.md.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/hircd/hircd/internal/model"
)

// Tags for the daemon -> client direction, in enumeration order.
const (
	TagHello = iota
	TagSubscriptions
	TagNewMessage
	TagNewTopic
	TagInitialTopic
)

// Tags for the client -> daemon DaemonMsg union.
const (
	TagSubscribe = iota
	TagSendMessage
	TagGoodbye
)

const maxFrameLen = 16 << 20 // 16MB, generous upper bound for a chat history snapshot

// ClientMsg is the daemon -> client envelope union.
type ClientMsg interface{ clientMsg() }

type Hello struct {
	ClientID          model.ClientID
	AvailableChannels []model.ChannelID
}

type Subscriptions struct {
	Subscribed map[model.ChannelID]model.ChannelSnapshot
}

type NewMessage struct {
	Target  model.ChannelID
	Message model.ChatMessage
}

type NewTopic struct {
	Target  model.ChannelID
	Message model.ChatMessage
}

type InitialTopic struct {
	Target model.ChannelID
	Topic  string
}

func (Hello) clientMsg()         {}
func (Subscriptions) clientMsg() {}
func (NewMessage) clientMsg()    {}
func (NewTopic) clientMsg()      {}
func (InitialTopic) clientMsg()  {}

// DaemonMsg is the payload of a client -> daemon DaemonRequest.
type DaemonMsg interface{ daemonMsg() }

type Subscribe struct {
	RequestedChannels []model.ChannelID
}

type SendMessage struct {
	Target model.ChannelID
	Text   string
}

type Goodbye struct{}

func (Subscribe) daemonMsg()   {}
func (SendMessage) daemonMsg() {}
func (Goodbye) daemonMsg()     {}

// DaemonRequest is the envelope a client session reader tags with the
// session's ClientId before handing it to the dispatcher.
type DaemonRequest struct {
	SourceClient model.ClientID
	Msg          DaemonMsg
}

// --- low-level primitives ---

type writer struct {
	buf []byte
	err error
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) byte(v byte) {
	w.buf = append(w.buf, v)
}

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) timestamp(t time.Time) {
	w.str(t.Format(time.RFC3339Nano))
}

func (w *writer) channelID(id model.ChannelID) {
	w.str(string(id.Server))
	w.str(string(id.Channel))
}

func (w *writer) chatMessage(m model.ChatMessage) {
	switch m.Kind {
	case model.KindChat:
		w.byte(0)
	case model.KindTopic:
		w.byte(1)
	default:
		w.err = fmt.Errorf("wire: unknown message kind %d", m.Kind)
		return
	}
	w.str(m.Text)
	w.str(string(m.Author))
	w.timestamp(m.Timestamp)
}

func (w *writer) channelSnapshot(s model.ChannelSnapshot) {
	w.u32(uint32(len(s.Users)))
	for _, u := range s.Users {
		w.str(string(u))
	}
	w.u32(uint32(len(s.MessageLog)))
	for _, m := range s.MessageLog {
		w.chatMessage(m)
	}
	w.str(s.Topic)
}

type reader struct {
	r   *bufio.Reader
	err error
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		r.err = err
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}

func (r *reader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	var b [8]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		r.err = err
		return 0
	}
	return binary.BigEndian.Uint64(b[:])
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	b, err := r.r.ReadByte()
	if err != nil {
		r.err = err
	}
	return b
}

func (r *reader) str() string {
	n := r.u32()
	if r.err != nil {
		return ""
	}
	if n > maxFrameLen {
		r.err = fmt.Errorf("wire: string length %d exceeds frame cap", n)
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.err = err
		return ""
	}
	return string(b)
}

func (r *reader) timestamp() time.Time {
	s := r.str()
	if r.err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		r.err = fmt.Errorf("wire: parse timestamp: %w", err)
		return time.Time{}
	}
	return t
}

func (r *reader) channelID() model.ChannelID {
	server := r.str()
	channel := r.str()
	return model.ChannelID{Server: model.ServerName(server), Channel: model.ChannelName(channel)}
}

func (r *reader) chatMessage() model.ChatMessage {
	kindByte := r.byte()
	text := r.str()
	author := r.str()
	ts := r.timestamp()
	kind := model.KindChat
	if kindByte == 1 {
		kind = model.KindTopic
	}
	return model.ChatMessage{Kind: kind, Text: text, Author: model.UserName(author), Timestamp: ts}
}

func (r *reader) channelSnapshot() model.ChannelSnapshot {
	nUsers := r.u32()
	users := make([]model.UserName, 0, nUsers)
	for i := uint32(0); i < nUsers && r.err == nil; i++ {
		users = append(users, model.UserName(r.str()))
	}
	nMsgs := r.u32()
	log := make([]model.ChatMessage, 0, nMsgs)
	for i := uint32(0); i < nMsgs && r.err == nil; i++ {
		log = append(log, r.chatMessage())
	}
	topic := r.str()
	return model.ChannelSnapshot{Topic: topic, MessageLog: log, Users: users}
}

// --- frame-level encode ---

func encodeClientMsgBody(w *writer, msg ClientMsg) {
	switch m := msg.(type) {
	case Hello:
		w.byte(TagHello)
		w.u64(uint64(m.ClientID))
		w.u32(uint32(len(m.AvailableChannels)))
		for _, id := range m.AvailableChannels {
			w.channelID(id)
		}
	case Subscriptions:
		w.byte(TagSubscriptions)
		w.u32(uint32(len(m.Subscribed)))
		for id, snap := range m.Subscribed {
			w.channelID(id)
			w.channelSnapshot(snap)
		}
	case NewMessage:
		w.byte(TagNewMessage)
		w.channelID(m.Target)
		w.chatMessage(m.Message)
	case NewTopic:
		w.byte(TagNewTopic)
		w.channelID(m.Target)
		w.chatMessage(m.Message)
	case InitialTopic:
		w.byte(TagInitialTopic)
		w.channelID(m.Target)
		w.str(m.Topic)
	default:
		w.err = fmt.Errorf("wire: unknown client msg type %T", msg)
	}
}

// EncodeClientMsg writes one length-framed daemon -> client envelope.
func EncodeClientMsg(out io.Writer, msg ClientMsg) error {
	w := &writer{}
	encodeClientMsgBody(w, msg)
	if w.err != nil {
		return w.err
	}
	return writeFrame(out, w.buf)
}

// DecodeClientMsg reads one length-framed daemon -> client envelope.
func DecodeClientMsg(in *bufio.Reader) (ClientMsg, error) {
	body, err := readFrame(in)
	if err != nil {
		return nil, err
	}
	r := &reader{r: bufio.NewReader(newBytesReader(body))}
	tag := r.byte()
	var msg ClientMsg
	switch tag {
	case TagHello:
		id := model.ClientID(r.u64())
		n := r.u32()
		chans := make([]model.ChannelID, 0, n)
		for i := uint32(0); i < n && r.err == nil; i++ {
			chans = append(chans, r.channelID())
		}
		msg = Hello{ClientID: id, AvailableChannels: chans}
	case TagSubscriptions:
		n := r.u32()
		subs := make(map[model.ChannelID]model.ChannelSnapshot, n)
		for i := uint32(0); i < n && r.err == nil; i++ {
			id := r.channelID()
			subs[id] = r.channelSnapshot()
		}
		msg = Subscriptions{Subscribed: subs}
	case TagNewMessage:
		target := r.channelID()
		m := r.chatMessage()
		msg = NewMessage{Target: target, Message: m}
	case TagNewTopic:
		target := r.channelID()
		m := r.chatMessage()
		msg = NewTopic{Target: target, Message: m}
	case TagInitialTopic:
		target := r.channelID()
		topic := r.str()
		msg = InitialTopic{Target: target, Topic: topic}
	default:
		return nil, fmt.Errorf("wire: unknown client msg tag %d", tag)
	}
	if r.err != nil {
		return nil, r.err
	}
	return msg, nil
}

// EncodeDaemonRequest writes one length-framed client -> daemon envelope.
func EncodeDaemonRequest(out io.Writer, req DaemonRequest) error {
	w := &writer{}
	w.u64(uint64(req.SourceClient))
	switch m := req.Msg.(type) {
	case Subscribe:
		w.byte(TagSubscribe)
		w.u32(uint32(len(m.RequestedChannels)))
		for _, id := range m.RequestedChannels {
			w.channelID(id)
		}
	case SendMessage:
		w.byte(TagSendMessage)
		w.channelID(m.Target)
		w.str(m.Text)
	case Goodbye:
		w.byte(TagGoodbye)
	default:
		w.err = fmt.Errorf("wire: unknown daemon msg type %T", req.Msg)
	}
	if w.err != nil {
		return w.err
	}
	return writeFrame(out, w.buf)
}

// DecodeDaemonRequest reads one length-framed client -> daemon envelope.
// The reader session is expected to overwrite SourceClient with its own
// ClientId before handing the result to the dispatcher; the
// wire value is still decoded for round-trip completeness.
func DecodeDaemonRequest(in *bufio.Reader) (DaemonRequest, error) {
	body, err := readFrame(in)
	if err != nil {
		return DaemonRequest{}, err
	}
	r := &reader{r: bufio.NewReader(newBytesReader(body))}
	sourceClient := model.ClientID(r.u64())
	tag := r.byte()
	var daemonMsg DaemonMsg
	switch tag {
	case TagSubscribe:
		n := r.u32()
		chans := make([]model.ChannelID, 0, n)
		for i := uint32(0); i < n && r.err == nil; i++ {
			chans = append(chans, r.channelID())
		}
		daemonMsg = Subscribe{RequestedChannels: chans}
	case TagSendMessage:
		target := r.channelID()
		text := r.str()
		daemonMsg = SendMessage{Target: target, Text: text}
	case TagGoodbye:
		daemonMsg = Goodbye{}
	default:
		return DaemonRequest{}, fmt.Errorf("wire: unknown daemon msg tag %d", tag)
	}
	if r.err != nil {
		return DaemonRequest{}, r.err
	}
	return DaemonRequest{SourceClient: sourceClient, Msg: daemonMsg}, nil
}

func writeFrame(out io.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := out.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if _, err := out.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

func readFrame(in *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(in, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("wire: frame length %d exceeds cap", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(in, body); err != nil {
		return nil, fmt.Errorf("wire: read frame body: %w", err)
	}
	return body, nil
}

// newBytesReader avoids importing bytes solely for a reader-of-a-slice.
type sliceReader struct {
	b []byte
	i int
}

func newBytesReader(b []byte) *sliceReader { return &sliceReader{b: b} }

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.i >= len(s.b) {
		return 0, io.EOF
	}
	n := copy(p, s.b[s.i:])
	s.i += n
	return n, nil
}
