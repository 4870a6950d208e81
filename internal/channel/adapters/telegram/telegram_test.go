package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel"
)

const testChatID = 100

type memCursors struct {
	mu     sync.Mutex
	values map[string]int64
}

func (m *memCursors) Cursor(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[name], nil
}

func (m *memCursors) SaveCursor(_ context.Context, name string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]int64{}
	}
	m.values[name] = value
	return nil
}

type apiCall struct {
	method string
	form   map[string]string
}

type fakeBotAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	updates []json.RawMessage
	failOn  string
}

func (f *fakeBotAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		form := map[string]string{}
		for k := range r.Form {
			form[k] = r.Form.Get(k)
		}
		f.mu.Lock()
		f.calls = append(f.calls, apiCall{method: method, form: form})
		failOn := f.failOn
		updates := f.updates
		f.mu.Unlock()

		if method == failOn {
			_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: boom"}`)
			return
		}
		switch method {
		case "getMe":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"scmon","username":"scmon_bot"}}`)
		case "sendMessage":
			_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":%s,"type":"private"},"text":"x"}}`, form["chat_id"])
		case "getUpdates":
			offset, _ := strconv.Atoi(form["offset"])
			var out []json.RawMessage
			for _, u := range updates {
				var head struct {
					UpdateID int `json:"update_id"`
				}
				_ = json.Unmarshal(u, &head)
				if head.UpdateID >= offset {
					out = append(out, u)
				}
			}
			if out == nil {
				out = []json.RawMessage{}
			}
			body, _ := json.Marshal(out)
			_, _ = fmt.Fprintf(w, `{"ok":true,"result":%s}`, body)
		default:
			_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
		}
	}
}

func (f *fakeBotAPI) setFail(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = method
}

func (f *fakeBotAPI) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func callbackUpdate(id int, data string, chatID int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"update_id":%d,"callback_query":{"id":"cb%d","from":{"id":5,"is_bot":false,"first_name":"S"},"chat_instance":"ci","data":%q,"message":{"message_id":%d,"date":0,"chat":{"id":%d,"type":"private"},"text":"Иван · Партнер","entities":[{"type":"bold","offset":0,"length":4}]}}}`,
		id, id, data, id*10, chatID))
}

func newTestAdapter(t *testing.T, api *fakeBotAPI, cursors *memCursors) *TelegramAdapter {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	a, err := NewTelegramAdapter(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		BotToken:    "123:abc",
		ChatID:      testChatID,
		APIEndpoint: srv.URL + "/bot%s/%s",
	}, cursors)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return a
}

func TestSendUsesHTMLAndKeyboard(t *testing.T) {
	api := &fakeBotAPI{}
	a := newTestAdapter(t, api, &memCursors{})

	ref, err := a.Send(context.Background(), channel.OutboundMessage{
		Text: "<b>Иван</b>",
		Menu: &channel.ActionMenu{Rows: [][]channel.Button{{{Text: "✅ Связался", Data: "done|p1"}}}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ref.ChatID != testChatID || ref.MessageID != 42 {
		t.Fatalf("unexpected ref %+v", ref)
	}
	calls := api.callsTo("sendMessage")
	if len(calls) != 1 {
		t.Fatalf("expected one sendMessage, got %d", len(calls))
	}
	form := calls[0].form
	if form["parse_mode"] != tgbotapi.ModeHTML {
		t.Fatalf("expected HTML parse mode, got %q", form["parse_mode"])
	}
	if !strings.Contains(form["reply_markup"], `"callback_data":"done|p1"`) {
		t.Fatalf("keyboard missing: %s", form["reply_markup"])
	}
}

func TestEditRemovesKeyboard(t *testing.T) {
	api := &fakeBotAPI{}
	a := newTestAdapter(t, api, &memCursors{})

	ref := channel.MessageRef{ChatID: testChatID, MessageID: 7}
	if err := a.Edit(context.Background(), ref, channel.OutboundMessage{Text: "done"}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	calls := api.callsTo("editMessageText")
	if len(calls) != 1 {
		t.Fatalf("expected one edit, got %d", len(calls))
	}
	if calls[0].form["reply_markup"] != `{"inline_keyboard":[]}` {
		t.Fatalf("expected empty keyboard, got %q", calls[0].form["reply_markup"])
	}

	if err := a.Edit(context.Background(), channel.MessageRef{}, channel.OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected error for empty ref")
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	api := &fakeBotAPI{}
	a := newTestAdapter(t, api, &memCursors{})

	if err := a.Acknowledge(context.Background(), "cb1", channel.Ack{Text: "https://www.notion.so/p1", Alert: true}); err != nil {
		t.Fatalf("ack: %v", err)
	}
	calls := api.callsTo("answerCallbackQuery")
	if len(calls) != 1 || calls[0].form["show_alert"] != "true" || calls[0].form["callback_query_id"] != "cb1" {
		t.Fatalf("unexpected answer: %#v", calls)
	}

	api.setFail("answerCallbackQuery")
	if err := a.Acknowledge(context.Background(), "cb2", channel.Ack{Text: "x"}); err == nil {
		t.Fatal("expected api error")
	}
}

func TestPollDropsAtOrBelowCursorAndKeepsOrder(t *testing.T) {
	api := &fakeBotAPI{updates: []json.RawMessage{
		callbackUpdate(12, "snooze|p2", testChatID),
		callbackUpdate(9, "done|old", testChatID),
		json.RawMessage(`{"update_id":13,"message":{"message_id":1,"date":0,"chat":{"id":100,"type":"private"},"text":"hi"}}`),
		callbackUpdate(11, "done|p1", testChatID),
		callbackUpdate(14, "done|evil", 999),
	}}
	cursors := &memCursors{values: map[string]int64{DefaultCursorName: 10}}
	a := newTestAdapter(t, api, cursors)

	batch, err := a.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if batch.HighWater != 14 {
		t.Fatalf("high water = %d, want 14", batch.HighWater)
	}
	if len(batch.Events) != 2 {
		t.Fatalf("expected 2 events, got %+v", batch.Events)
	}
	if batch.Events[0].ID != 11 || batch.Events[1].ID != 12 {
		t.Fatalf("events out of order: %+v", batch.Events)
	}
	ev := batch.Events[0]
	if ev.CallbackID != "cb11" || ev.Data != "done|p1" || ev.Message.MessageID != 110 || ev.Message.ChatID != testChatID {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.MessageHTML != "<b>Иван</b> · Партнер" {
		t.Fatalf("unexpected html %q", ev.MessageHTML)
	}
	if got := api.callsTo("getUpdates")[0].form["offset"]; got != "11" {
		t.Fatalf("offset = %q, want 11", got)
	}
}

func TestCommitPersistsAndConfirms(t *testing.T) {
	api := &fakeBotAPI{}
	cursors := &memCursors{values: map[string]int64{DefaultCursorName: 10}}
	a := newTestAdapter(t, api, cursors)
	ctx := context.Background()

	if err := a.Commit(ctx, 15); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got, _ := cursors.Cursor(ctx, DefaultCursorName); got != 15 {
		t.Fatalf("cursor = %d, want 15", got)
	}
	confirm := api.callsTo("getUpdates")
	if len(confirm) != 1 || confirm[0].form["offset"] != "16" || confirm[0].form["limit"] != "1" {
		t.Fatalf("unexpected confirmation: %#v", confirm)
	}

	if err := a.Commit(ctx, 12); err != nil {
		t.Fatalf("commit lower: %v", err)
	}
	if got, _ := cursors.Cursor(ctx, DefaultCursorName); got != 15 {
		t.Fatalf("cursor must not move backwards, got %d", got)
	}
}

func TestEntitiesToHTML(t *testing.T) {
	text := "🔴 Иван · Партнер <x>"
	entities := []tgbotapi.MessageEntity{
		{Type: "text_link", Offset: 3, Length: 4, URL: "https://t.me/ivan"},
		{Type: "bold", Offset: 3, Length: 4},
		{Type: "mention", Offset: 10, Length: 7},
	}
	got := entitiesToHTML(text, entities)
	want := `🔴 <a href="https://t.me/ivan"><b>Иван</b></a> · Партнер &lt;x&gt;`
	if got != want {
		t.Fatalf("entitiesToHTML =\n%s\nwant\n%s", got, want)
	}
	if got := entitiesToHTML("a & b", nil); got != "a &amp; b" {
		t.Fatalf("plain escape: %q", got)
	}
}

func TestEntitiesToHTMLSplitsOverlap(t *testing.T) {
	entities := []tgbotapi.MessageEntity{
		{Type: "bold", Offset: 0, Length: 10},
		{Type: "italic", Offset: 5, Length: 10},
	}
	got := entitiesToHTML("0123456789abcde", entities)
	want := "<b>01234<i>56789</i></b><i>abcde</i>"
	if got != want {
		t.Fatalf("entitiesToHTML =\n%s\nwant\n%s", got, want)
	}
}

func TestEventFromUpdateIgnoresNonCallbacks(t *testing.T) {
	if _, ok := EventFromUpdate(tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{Text: "hi"}}); ok {
		t.Fatal("plain message must not produce an event")
	}
}
