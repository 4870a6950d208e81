// Package local is an in-process transport. It records every call, renders
// outbound units to an optional console writer, and replays queued presses.
// `scmon digest --dry-run` and the tests use it in place of Telegram.
package local

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel"
)

// ChatID is the chat every local message is delivered to.
const ChatID int64 = 1

var (
	styleCard   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	styleButton = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	styleGray   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	tagPattern = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9-]*(\s[^>]*)?>`)
)

// Message is one delivered unit as it currently reads.
type Message struct {
	Ref    channel.MessageRef
	Text   string
	Menu   *channel.ActionMenu
	Edited int
}

// Edit is one recorded Edit call.
type Edit struct {
	Ref  channel.MessageRef
	Text string
	Menu *channel.ActionMenu
}

// Answer is one recorded Acknowledge call.
type Answer struct {
	CallbackID string
	Ack        channel.Ack
}

// Transport implements channel.Transport in memory.
type Transport struct {
	mu      sync.Mutex
	out     io.Writer
	nextID  int
	sends   int
	nextEv  int64
	cursor  int64
	sent    []Message
	edits   []Edit
	answers []Answer
	pending []channel.Event
	commits []int64

	// FailSend makes Send fail for the n-th call (1-based) when it returns an error.
	FailSend func(n int) error
	// FailEdit makes every Edit fail.
	FailEdit error
}

var _ channel.Transport = (*Transport)(nil)

// New returns a transport that renders to out (nil disables rendering).
func New(out io.Writer) *Transport {
	return &Transport{out: out}
}

func (t *Transport) Send(ctx context.Context, msg channel.OutboundMessage) (channel.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return channel.MessageRef{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends++
	if t.FailSend != nil {
		if err := t.FailSend(t.sends); err != nil {
			return channel.MessageRef{}, err
		}
	}
	t.nextID++
	ref := channel.MessageRef{ChatID: ChatID, MessageID: t.nextID}
	t.sent = append(t.sent, Message{Ref: ref, Text: msg.Text, Menu: msg.Menu})
	t.render(msg)
	return ref, nil
}

func (t *Transport) Edit(ctx context.Context, ref channel.MessageRef, msg channel.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailEdit != nil {
		return t.FailEdit
	}
	for i := range t.sent {
		if t.sent[i].Ref == ref {
			t.sent[i].Text = msg.Text
			t.sent[i].Menu = msg.Menu
			t.sent[i].Edited++
			t.edits = append(t.edits, Edit{Ref: ref, Text: msg.Text, Menu: msg.Menu})
			t.render(msg)
			return nil
		}
	}
	return fmt.Errorf("local edit: message %d not found", ref.MessageID)
}

func (t *Transport) Acknowledge(ctx context.Context, callbackID string, ack channel.Ack) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answers = append(t.answers, Answer{CallbackID: callbackID, Ack: ack})
	if t.out != nil {
		_, _ = fmt.Fprintln(t.out, styleGray.Render("↳ "+ack.Text))
	}
	return nil
}

// Press queues a button press on a delivered message and returns the event.
func (t *Transport) Press(ref channel.MessageRef, data string) channel.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextEv++
	ev := channel.Event{
		ID:         t.nextEv,
		CallbackID: fmt.Sprintf("local-%d", t.nextEv),
		Data:       data,
		Message:    ref,
	}
	for _, m := range t.sent {
		if m.Ref == ref {
			ev.MessageHTML = m.Text
		}
	}
	t.pending = append(t.pending, ev)
	return ev
}

// Enqueue queues a raw event, e.g. a redelivery of an earlier one.
func (t *Transport) Enqueue(ev channel.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextEv = max(t.nextEv, ev.ID)
	t.pending = append(t.pending, ev)
}

// Poll returns queued events above the committed cursor.
func (t *Transport) Poll(ctx context.Context) (channel.Batch, error) {
	if err := ctx.Err(); err != nil {
		return channel.Batch{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	batch := channel.Batch{HighWater: t.cursor}
	for _, ev := range t.pending {
		if ev.ID <= t.cursor {
			continue
		}
		batch.Events = append(batch.Events, ev)
		batch.HighWater = max(batch.HighWater, ev.ID)
	}
	return batch, nil
}

func (t *Transport) Commit(ctx context.Context, cursor int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if cursor < 0 {
		return errors.New("local commit: negative cursor")
	}
	t.commits = append(t.commits, cursor)
	t.cursor = max(t.cursor, cursor)
	return nil
}

func (t *Transport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.sent...)
}

func (t *Transport) Edits() []Edit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Edit(nil), t.edits...)
}

func (t *Transport) Answers() []Answer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Answer(nil), t.answers...)
}

func (t *Transport) Commits() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int64(nil), t.commits...)
}

func (t *Transport) Cursor() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

func (t *Transport) render(msg channel.OutboundMessage) {
	if t.out == nil {
		return
	}
	_, _ = fmt.Fprintln(t.out, Render(msg))
}

// Render draws a unit as a bordered console card with its buttons below.
func Render(msg channel.OutboundMessage) string {
	body := PlainText(msg.Text)
	if msg.Menu.Empty() {
		return styleCard.Render(body)
	}
	var rows []string
	for _, row := range msg.Menu.Rows {
		labels := make([]string, 0, len(row))
		for _, b := range row {
			labels = append(labels, styleButton.Render("["+b.Text+"]"))
		}
		rows = append(rows, strings.Join(labels, " "))
	}
	return styleCard.Render(body + "\n\n" + strings.Join(rows, "\n"))
}

// PlainText strips Telegram HTML tags and unescapes entities.
func PlainText(s string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(s, ""))
}
