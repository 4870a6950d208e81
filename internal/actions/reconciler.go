package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/logger"
)

// ErrorAckText answers presses that could not be applied.
const ErrorAckText = "⚠️ Ошибка, попробуй ещё раз"

const commitTimeout = 15 * time.Second

// ContactWriter is the subset of contacts.Service the reconciler writes through.
type ContactWriter interface {
	SetLastContact(ctx context.Context, id string, day time.Time) error
	SetNextContact(ctx context.Context, id string, day time.Time) error
	Archive(ctx context.Context, id string) error
}

type confirmation struct {
	toast string
	note  string
}

var confirmations = map[Verb]confirmation{
	VerbDone:         {"✅ Отмечено! Дата обновлена", "✅ Связался сегодня — дата обновлена"},
	VerbSnooze:       {"⏭ Перенесено на неделю", "⏭ Перенесено на 7 дней"},
	VerbApproxRecent: {"✅ Записано", "✅ 📅 Недавно (в течение 2 недель)"},
	VerbApproxMedium: {"✅ Записано", "✅ 🕐 1-3 месяца назад"},
	VerbApproxLong:   {"✅ Записано", "✅ ⏳ Давно (3+ месяца)"},
	VerbDelete:       {"🗑 Контакт архивирован", "🗑 Удалён из базы"},
}

// Report counts what one reconciliation pass did. Cursor is the highest
// event id that may be committed.
type Report struct {
	Applied  int
	Revealed int
	Ignored  int
	Failed   int
	Cursor   int64
}

func (r Report) Processed() int {
	return r.Applied + r.Revealed + r.Ignored + r.Failed
}

func (r Report) String() string {
	return fmt.Sprintf("applied=%d revealed=%d ignored=%d failed=%d", r.Applied, r.Revealed, r.Ignored, r.Failed)
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeRevealed
	outcomeIgnored
	outcomeFailed
)

// Reconciler applies button presses to contacts. It is the only writer of
// the scheduling fields.
type Reconciler struct {
	logger    *slog.Logger
	writer    ContactWriter
	responder channel.Responder
	policy    Policy
	loc       *time.Location
	clock     contacts.Clock
}

func NewReconciler(log *slog.Logger, writer ContactWriter, responder channel.Responder, policy Policy, loc *time.Location, clock contacts.Clock) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	if clock == nil {
		clock = contacts.SystemClock
	}
	return &Reconciler{
		logger:    log.With(slog.String("service", "actions")),
		writer:    writer,
		responder: responder,
		policy:    policy,
		loc:       loc,
		clock:     clock,
	}
}

// ReconcilePending polls source, reconciles the batch, and commits the cursor
// once. Processed events are committed even if ctx is cancelled mid-batch.
func (r *Reconciler) ReconcilePending(ctx context.Context, source channel.EventSource) (Report, error) {
	if source == nil {
		return Report{}, fmt.Errorf("event source not configured")
	}
	batch, err := source.Poll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("poll events: %w", err)
	}
	report, runErr := r.Reconcile(ctx, batch)

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := source.Commit(commitCtx, report.Cursor); err != nil {
		return report, errors.Join(runErr, fmt.Errorf("commit cursor %d: %w", report.Cursor, err))
	}
	return report, runErr
}

// Reconcile processes batch in arrival order: decode, write, acknowledge,
// edit the originating message, advance the cursor. One event's failure is
// answered with an error confirmation and does not stop the batch.
// Cancellation stops before the next event.
func (r *Reconciler) Reconcile(ctx context.Context, batch channel.Batch) (Report, error) {
	log := logger.FromContextOr(ctx, r.logger)
	var report Report
	for _, ev := range batch.Events {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		switch r.handle(ctx, log, ev) {
		case outcomeApplied:
			report.Applied++
		case outcomeRevealed:
			report.Revealed++
		case outcomeIgnored:
			report.Ignored++
		case outcomeFailed:
			report.Failed++
		}
		report.Cursor = max(report.Cursor, ev.ID)
	}
	report.Cursor = max(report.Cursor, batch.HighWater)
	if report.Processed() > 0 {
		log.Info("actions reconciled",
			slog.Int("applied", report.Applied),
			slog.Int("revealed", report.Revealed),
			slog.Int("ignored", report.Ignored),
			slog.Int("failed", report.Failed),
			slog.Int64("cursor", report.Cursor))
	}
	return report, nil
}

func (r *Reconciler) handle(ctx context.Context, log *slog.Logger, ev channel.Event) outcome {
	log = log.With(slog.Int64("event_id", ev.ID))
	action, err := Decode(ev.Data)
	if err != nil {
		log.Warn("action ignored", slog.String("data", ev.Data), slog.Any("error", err))
		r.acknowledge(ctx, log, ev, channel.Ack{Text: ErrorAckText})
		return outcomeIgnored
	}
	log = log.With(slog.String("verb", string(action.Verb)), slog.String("target", action.Target))

	if action.Verb == VerbOpenReference {
		r.acknowledge(ctx, log, ev, channel.Ack{Text: r.policy.reference(action.Target), Alert: true})
		return outcomeRevealed
	}

	today := contacts.Today(r.clock, r.loc)
	if err := r.apply(ctx, action, today); err != nil {
		r.acknowledge(ctx, log, ev, channel.Ack{Text: ErrorAckText})
		if errors.Is(err, contacts.ErrNotFound) {
			log.Warn("action target not found", slog.Any("error", err))
			return outcomeIgnored
		}
		log.Error("action failed", slog.Any("error", err))
		return outcomeFailed
	}

	conf := confirmations[action.Verb]
	r.acknowledge(ctx, log, ev, channel.Ack{Text: conf.toast})
	if !ev.Message.IsZero() && r.responder != nil {
		text := ev.MessageHTML + "\n\n<i>" + conf.note + "</i>"
		if err := r.responder.Edit(ctx, ev.Message, channel.OutboundMessage{Text: text}); err != nil {
			log.Warn("edit confirmation failed", slog.Any("error", err))
		}
	}
	log.Info("action applied")
	return outcomeApplied
}

func (r *Reconciler) apply(ctx context.Context, action Action, today time.Time) error {
	if r.writer == nil {
		return fmt.Errorf("contact writer not configured")
	}
	switch action.Verb {
	case VerbDone:
		return r.writer.SetLastContact(ctx, action.Target, today)
	case VerbSnooze:
		return r.writer.SetNextContact(ctx, action.Target, contacts.AddDays(today, r.policy.SnoozeDays))
	case VerbApproxRecent:
		return r.writer.SetLastContact(ctx, action.Target, contacts.AddDays(today, -r.policy.RecentDays))
	case VerbApproxMedium:
		return r.writer.SetLastContact(ctx, action.Target, contacts.AddDays(today, -r.policy.MediumDays))
	case VerbApproxLong:
		return r.writer.SetLastContact(ctx, action.Target, contacts.AddDays(today, -r.policy.LongAgoDays))
	case VerbDelete:
		return r.writer.Archive(ctx, action.Target)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownVerb, action.Verb)
	}
}

func (r *Reconciler) acknowledge(ctx context.Context, log *slog.Logger, ev channel.Event, ack channel.Ack) {
	if ev.CallbackID == "" || r.responder == nil {
		return
	}
	if err := r.responder.Acknowledge(ctx, ev.CallbackID, ack); err != nil {
		log.Warn("acknowledge failed", slog.Any("error", err))
	}
}
