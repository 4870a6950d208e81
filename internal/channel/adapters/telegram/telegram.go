// Package telegram is the Bot API transport: digest delivery, message edits,
// callback answers, and getUpdates polling behind a persisted cursor.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel"
)

// CursorStore persists the update high-water mark between runs.
type CursorStore interface {
	Cursor(ctx context.Context, name string) (int64, error)
	SaveCursor(ctx context.Context, name string, value int64) error
}

type TelegramAdapter struct {
	logger  *slog.Logger
	bot     *tgbotapi.BotAPI
	cfg     Config
	cursors CursorStore
}

var _ channel.Transport = (*TelegramAdapter)(nil)

// NewTelegramAdapter connects to the Bot API (getMe) and returns the adapter.
func NewTelegramAdapter(log *slog.Logger, cfg Config, cursors CursorStore) (*TelegramAdapter, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	if cursors == nil {
		return nil, fmt.Errorf("telegram cursor store is required")
	}
	logger := log.With(slog.String("adapter", "telegram"))
	_ = tgbotapi.SetLogger(&slogBotLogger{log: logger, token: cfg.BotToken})

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := &http.Client{Timeout: cfg.RequestTimeout + cfg.PollTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, client)
	if err != nil {
		logger.Error("create bot failed", slog.Any("error", err))
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	logger.Info("connected", slog.String("bot", bot.Self.UserName))
	return &TelegramAdapter{
		logger:  logger,
		bot:     bot,
		cfg:     cfg,
		cursors: cursors,
	}, nil
}

// Send posts an HTML message to the operator chat.
func (a *TelegramAdapter) Send(ctx context.Context, msg channel.OutboundMessage) (channel.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return channel.MessageRef{}, err
	}
	message := tgbotapi.NewMessage(a.cfg.ChatID, msg.Text)
	message.ParseMode = tgbotapi.ModeHTML
	message.DisableWebPagePreview = true
	if !msg.Menu.Empty() {
		message.ReplyMarkup = inlineKeyboard(msg.Menu)
	}
	sent, err := a.bot.Send(message)
	if err != nil {
		a.logger.Error("send failed", slog.String("text", channel.SummarizeText(msg.Text)), slog.Any("error", err))
		return channel.MessageRef{}, fmt.Errorf("telegram send: %w", err)
	}
	ref := channel.MessageRef{ChatID: a.cfg.ChatID, MessageID: sent.MessageID}
	if sent.Chat != nil {
		ref.ChatID = sent.Chat.ID
	}
	return ref, nil
}

// Edit replaces the text of a delivered message. A nil menu removes its buttons.
func (a *TelegramAdapter) Edit(ctx context.Context, ref channel.MessageRef, msg channel.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ref.IsZero() {
		return fmt.Errorf("telegram edit: empty message ref")
	}
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, msg.Text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	markup := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if !msg.Menu.Empty() {
		markup = inlineKeyboard(msg.Menu)
	}
	edit.ReplyMarkup = &markup
	if _, err := a.bot.Request(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("telegram edit: %w", err)
	}
	return nil
}

// Acknowledge answers a callback query with a toast, or an alert when ack.Alert is set.
func (a *TelegramAdapter) Acknowledge(ctx context.Context, callbackID string, ack channel.Ack) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cb := tgbotapi.NewCallback(callbackID, ack.Text)
	if ack.Alert {
		cb = tgbotapi.NewCallbackWithAlert(callbackID, ack.Text)
	}
	if _, err := a.bot.Request(cb); err != nil {
		return fmt.Errorf("telegram answer callback: %w", err)
	}
	return nil
}

// Poll fetches updates after the persisted cursor. Updates at or below the
// cursor are dropped even if Telegram redelivers them; updates without a
// callback query only raise HighWater.
func (a *TelegramAdapter) Poll(ctx context.Context) (channel.Batch, error) {
	if err := ctx.Err(); err != nil {
		return channel.Batch{}, err
	}
	cursor, err := a.cursors.Cursor(ctx, a.cfg.CursorName)
	if err != nil {
		return channel.Batch{}, fmt.Errorf("load telegram cursor: %w", err)
	}
	req := tgbotapi.UpdateConfig{
		Limit:          100,
		Timeout:        int(a.cfg.PollTimeout.Seconds()),
		AllowedUpdates: []string{"callback_query"},
	}
	if cursor > 0 {
		req.Offset = int(cursor) + 1
	}
	updates, err := a.bot.GetUpdates(req)
	if err != nil {
		return channel.Batch{}, fmt.Errorf("telegram get updates: %w", err)
	}
	sort.SliceStable(updates, func(i, j int) bool { return updates[i].UpdateID < updates[j].UpdateID })

	batch := channel.Batch{HighWater: cursor}
	for _, update := range updates {
		id := int64(update.UpdateID)
		if id <= cursor {
			continue
		}
		batch.HighWater = max(batch.HighWater, id)
		event, ok := EventFromUpdate(update)
		if !ok {
			continue
		}
		if event.Message.ChatID != 0 && event.Message.ChatID != a.cfg.ChatID {
			a.logger.Warn("callback from foreign chat ignored", slog.Int64("chat_id", event.Message.ChatID))
			continue
		}
		batch.Events = append(batch.Events, event)
	}
	a.logger.Debug("polled", slog.Int("updates", len(updates)), slog.Int("events", len(batch.Events)), slog.Int64("high_water", batch.HighWater))
	return batch, nil
}

// Commit persists cursor and confirms it to Telegram with getUpdates(offset=cursor+1, limit=1).
// The persisted value is authoritative; a failed confirmation is only logged.
func (a *TelegramAdapter) Commit(ctx context.Context, cursor int64) error {
	if cursor <= 0 {
		return nil
	}
	prev, err := a.cursors.Cursor(ctx, a.cfg.CursorName)
	if err != nil {
		return fmt.Errorf("load telegram cursor: %w", err)
	}
	if cursor <= prev {
		return nil
	}
	if err := a.cursors.SaveCursor(ctx, a.cfg.CursorName, cursor); err != nil {
		return fmt.Errorf("save telegram cursor: %w", err)
	}
	if _, err := a.bot.GetUpdates(tgbotapi.UpdateConfig{Offset: int(cursor) + 1, Limit: 1}); err != nil {
		a.logger.Warn("confirm updates failed", slog.Int64("cursor", cursor), slog.Any("error", err))
	}
	return nil
}

// SetWebhook registers url for push delivery. Polling stops working while it is set.
func (a *TelegramAdapter) SetWebhook(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("telegram webhook url: %w", err)
	}
	wh.AllowedUpdates = []string{"callback_query"}
	if _, err := a.bot.Request(wh); err != nil {
		return fmt.Errorf("telegram set webhook: %w", err)
	}
	a.logger.Info("webhook set")
	return nil
}

// DeleteWebhook switches the bot back to getUpdates delivery.
func (a *TelegramAdapter) DeleteWebhook(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := a.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("telegram delete webhook: %w", err)
	}
	a.logger.Info("webhook deleted")
	return nil
}

// EventFromUpdate converts a callback-query update into an Event.
// It is shared by polling and the webhook handler.
func EventFromUpdate(update tgbotapi.Update) (channel.Event, bool) {
	q := update.CallbackQuery
	if q == nil {
		return channel.Event{}, false
	}
	event := channel.Event{
		ID:         int64(update.UpdateID),
		CallbackID: q.ID,
		Data:       q.Data,
	}
	if q.Message != nil {
		event.Message.MessageID = q.Message.MessageID
		if q.Message.Chat != nil {
			event.Message.ChatID = q.Message.Chat.ID
		}
		event.MessageHTML = entitiesToHTML(q.Message.Text, q.Message.Entities)
	}
	return event, true
}

func inlineKeyboard(menu *channel.ActionMenu) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(menu.Rows))
	for _, row := range menu.Rows {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
