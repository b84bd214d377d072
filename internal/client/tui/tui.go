// Package tui is hirc's terminal interface: a header line, a scrolling
// message log, and an input field, built on tview/tcell. Adapted from the
// foxcpp-infinitychat's serialui/tui/tui.go layout (the same
// header+logBox+input Flex, the same input-history arrow-key handling),
// generalized from a single peer-to-peer buffer to the multi-channel,
// multi-server view a daemon client needs.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell"
	"github.com/rivo/tview"

	"github.com/hircd/hircd/internal/client"
	"github.com/hircd/hircd/internal/model"
	"github.com/hircd/hircd/internal/wire"
)

// TUI is hirc's terminal interface, driven by one daemon Session.
type TUI struct {
	app    *tview.Application
	header *tview.TextView
	flex   *tview.Flex
	logBox *tview.TextView
	input  *tview.InputField

	sess *client.Session

	inputHistory      []string
	inputHistoryIndex int

	current model.ChannelID
}

// New builds the UI, wired to sess. It does not start rendering until Run
// is called.
func New(sess *client.Session) *TUI {
	t := &TUI{
		app:    tview.NewApplication(),
		header: tview.NewTextView(),
		flex:   tview.NewFlex(),
		logBox: tview.NewTextView(),
		input:  tview.NewInputField(),
		sess:   sess,
	}

	t.header.SetBackgroundColor(tcell.Color236)
	t.header.SetText(fmt.Sprintf("hirc | client #%d | not subscribed to any channel", sess.ClientID))

	t.flex.SetDirection(tview.FlexRow)

	t.logBox.SetBackgroundColor(tcell.Color235)
	t.logBox.SetTextColor(tcell.Color255)
	t.logBox.SetWrap(true)
	t.logBox.SetDynamicColors(true)
	t.logBox.SetWordWrap(true)
	t.logBox.SetBorder(true)
	t.logBox.SetBorderPadding(0, 1, 1, 1)

	t.flex.AddItem(t.header, 1, 1, false)
	t.flex.AddItem(t.logBox, 0, 24, false)
	t.flex.AddItem(t.input, 1, 1, true)

	t.input.SetLabel("> ")
	t.input.SetFieldBackgroundColor(tcell.Color236)
	t.input.SetFieldTextColor(tcell.Color255)
	t.input.SetLabelColor(tcell.ColorWhite)
	t.input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			line := t.input.GetText()
			if line == "" {
				return
			}
			if len(t.inputHistory) == 0 || t.inputHistory[len(t.inputHistory)-1] != line {
				t.inputHistory = append(t.inputHistory, line)
			}
			t.inputHistoryIndex = len(t.inputHistory)
			t.input.SetText("")
			t.handleLine(line)
		case tcell.KeyEscape:
			t.input.SetText("")
		}
	})
	t.input.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyPgUp, tcell.KeyPgDn:
			t.logBox.InputHandler()(event, func(tview.Primitive) {})
		case tcell.KeyUp:
			if t.inputHistoryIndex == 0 {
				t.input.SetText("")
				return nil
			}
			t.inputHistoryIndex--
			t.input.SetText(t.inputHistory[t.inputHistoryIndex])
		case tcell.KeyDown:
			if t.inputHistoryIndex == len(t.inputHistory) {
				return nil
			}
			t.inputHistoryIndex++
			if t.inputHistoryIndex == len(t.inputHistory) {
				t.input.SetText("")
				return nil
			}
			t.input.SetText(t.inputHistory[t.inputHistoryIndex])
		default:
			return event
		}
		return nil
	})

	t.app.SetRoot(t.flex, true)
	return t
}

// Run starts the incoming-message pump and blocks rendering the UI until
// the user quits or the connection drops.
func (t *TUI) Run() error {
	go t.pumpIncoming()
	return t.app.Run()
}

func (t *TUI) Close() {
	t.app.Stop()
}

func (t *TUI) handleLine(line string) {
	if strings.HasPrefix(line, "/") {
		t.handleCommand(line)
		return
	}
	if t.current.Channel == "" {
		t.logLocal("not subscribed to any channel — use /join <server> <#channel>")
		return
	}
	if err := t.sess.Send(t.current, line); err != nil {
		t.logLocal("send failed: %v", err)
	}
}

func (t *TUI) handleCommand(line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/join":
		if len(fields) != 3 {
			t.logLocal("usage: /join <server> <#channel>")
			return
		}
		id := model.ChannelID{Server: model.ServerName(fields[1]), Channel: model.ChannelName(fields[2])}
		if err := t.sess.Subscribe([]model.ChannelID{id}); err != nil {
			t.logLocal("subscribe failed: %v", err)
			return
		}
		t.current = id
		t.setHeader()
	case "/quit":
		t.sess.Close()
		t.Close()
	default:
		t.logLocal("unknown command: %s", fields[0])
	}
}

func (t *TUI) pumpIncoming() {
	for msg := range t.sess.Incoming {
		msg := msg
		t.app.QueueUpdateDraw(func() {
			t.handleIncoming(msg)
		})
	}
	t.app.QueueUpdateDraw(func() {
		t.logLocal("connection to daemon lost")
	})
}

func (t *TUI) handleIncoming(msg wire.ClientMsg) {
	switch m := msg.(type) {
	case wire.Subscriptions:
		ids := make([]model.ChannelID, 0, len(m.Subscribed))
		for id := range m.Subscribed {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
		for _, id := range ids {
			snap := m.Subscribed[id]
			t.logLocal("joined %s%s (topic: %q, %d messages)", id.Server, id.Channel, snap.Topic, len(snap.MessageLog))
			for _, chat := range snap.MessageLog {
				t.logMessage(id, chat)
			}
		}
		// Replying to a Subscribe selects the first channel (by the
		// deterministic order above) as the current view, per the
		// daemon session contract's Hello-then-Subscribe-then-select flow.
		if len(ids) > 0 {
			t.current = ids[0]
			t.setHeader()
		}
	case wire.NewMessage:
		t.logMessage(m.Target, m.Message)
	case wire.NewTopic:
		t.logLocal("%s%s topic changed to %q by %s", m.Target.Server, m.Target.Channel, m.Message.Text, m.Message.Author)
	case wire.InitialTopic:
		t.logLocal("%s%s topic: %q", m.Target.Server, m.Target.Channel, m.Topic)
	}
}

func (t *TUI) logMessage(target model.ChannelID, msg model.ChatMessage) {
	stamp := msg.Timestamp.Format("15:04:05")
	fmt.Fprintf(t.logBox, "[#8a8a8a]%s[-] [%s%s] <%s> %s\n", stamp, target.Server, target.Channel, msg.Author, tview.Escape(msg.Text))
}

func (t *TUI) logLocal(format string, args ...interface{}) {
	fmt.Fprintf(t.logBox, "[#8a8a8a]%s[-] [local] %s\n", time.Now().Format("15:04:05"), tview.Escape(fmt.Sprintf(format, args...)))
}

func (t *TUI) setHeader() {
	t.header.SetText(fmt.Sprintf("hirc | client #%d | %s%s", t.sess.ClientID, t.current.Server, t.current.Channel))
}
