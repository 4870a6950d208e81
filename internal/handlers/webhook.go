package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/actions"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel/adapters/telegram"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/schedule"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/state"
)

const (
	WebhookPath       = "/telegram/webhook"
	secretHeader      = "X-Telegram-Bot-Api-Secret-Token"
	webhookJob        = "webhook"
	webhookRunTimeout = 30 * time.Second
)

// BatchReconciler applies a batch of button presses.
type BatchReconciler interface {
	Reconcile(ctx context.Context, batch channel.Batch) (actions.Report, error)
}

// ExclusiveRunner serializes the webhook with scheduled runs.
type ExclusiveRunner interface {
	Exclusive(ctx context.Context, name string, trigger schedule.Trigger, fn schedule.RunFunc) (state.Run, error)
}

// WebhookHandler receives Telegram updates pushed by the Bot API and
// reconciles each button press as a one-event batch. Updates at or below
// the persisted cursor are redeliveries and are dropped, and presses from
// any chat other than chatID only advance the cursor.
type WebhookHandler struct {
	logger     *slog.Logger
	secret     string
	chatID     int64
	reconciler BatchReconciler
	runner     ExclusiveRunner
	cursors    telegram.CursorStore
	cursorName string
}

func NewWebhookHandler(log *slog.Logger, secret string, chatID int64, reconciler BatchReconciler, runner ExclusiveRunner, cursors telegram.CursorStore) *WebhookHandler {
	return &WebhookHandler{
		logger:     log.With(slog.String("handler", "webhook")),
		secret:     secret,
		chatID:     chatID,
		reconciler: reconciler,
		runner:     runner,
		cursors:    cursors,
		cursorName: telegram.DefaultCursorName,
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST(WebhookPath, h.Receive)
}

func (h *WebhookHandler) authorized(c echo.Context) bool {
	if h.secret == "" {
		return true
	}
	got := c.Request().Header.Get(secretHeader)
	if got == "" {
		got = c.QueryParam("secret")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

// Receive answers 200 once the update is decoded, even when reconciling
// fails, so the Bot API does not redeliver it.
func (h *WebhookHandler) Receive(c echo.Context) error {
	if !h.authorized(c) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook secret")
	}
	var update tgbotapi.Update
	if err := json.NewDecoder(c.Request().Body).Decode(&update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid update body")
	}
	if update.UpdateID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "update_id is required")
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), webhookRunTimeout)
	defer cancel()
	_, err := h.runner.Exclusive(ctx, webhookJob, schedule.TriggerWebhook, func(ctx context.Context) (string, error) {
		return h.process(ctx, update)
	})
	if err != nil {
		h.logger.Error("webhook update failed", slog.Int("update_id", update.UpdateID), slog.Any("error", err))
	}
	return c.NoContent(http.StatusOK)
}

func (h *WebhookHandler) process(ctx context.Context, update tgbotapi.Update) (string, error) {
	id := int64(update.UpdateID)
	cursor, err := h.cursors.Cursor(ctx, h.cursorName)
	if err != nil {
		return "", fmt.Errorf("load cursor: %w", err)
	}
	if id <= cursor {
		return fmt.Sprintf("duplicate update %d", id), nil
	}

	batch := channel.Batch{HighWater: id}
	if ev, ok := telegram.EventFromUpdate(update); ok {
		if ev.Message.ChatID != 0 && h.chatID != 0 && ev.Message.ChatID != h.chatID {
			h.logger.Warn("callback from foreign chat ignored", slog.Int64("chat_id", ev.Message.ChatID))
		} else {
			batch.Events = []channel.Event{ev}
		}
	}
	report, runErr := h.reconciler.Reconcile(ctx, batch)
	if report.Cursor > cursor {
		if err := h.cursors.SaveCursor(ctx, h.cursorName, report.Cursor); err != nil {
			return "", fmt.Errorf("save cursor %d: %w", report.Cursor, err)
		}
	}
	return report.String(), runErr
}
