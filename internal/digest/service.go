package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/actions"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/logger"
)

// ErrDelivery reports that some digest units were not delivered.
var ErrDelivery = errors.New("digest delivery incomplete")

const (
	DefaultHeaderDelay = 500 * time.Millisecond
	DefaultCardDelay   = 300 * time.Millisecond
)

// Lister reads the whole contact collection.
type Lister interface {
	List(ctx context.Context, filter contacts.Filter) ([]contacts.Contact, error)
}

// Reconciler applies pending button presses before selection.
type Reconciler interface {
	ReconcilePending(ctx context.Context, source channel.EventSource) (actions.Report, error)
}

// Options tune one Service.
type Options struct {
	Policy      Policy
	HeaderDelay time.Duration
	CardDelay   time.Duration
	Location    *time.Location
	Clock       contacts.Clock
}

// Report summarizes one orchestrator run.
type Report struct {
	Today           time.Time
	Reconciled      actions.Report
	Contacts        int
	Due             int
	DueTotal        int
	Incomplete      int
	IncompleteTotal int
	Birthdays       int
	Sent            int
	Failed          int
}

func (r Report) String() string {
	return fmt.Sprintf("reconciled=%d contacts=%d due=%d/%d incomplete=%d/%d birthdays=%d sent=%d failed=%d",
		r.Reconciled.Processed(), r.Contacts, r.Due, r.DueTotal, r.Incomplete, r.IncompleteTotal, r.Birthdays, r.Sent, r.Failed)
}

// Service runs reconcile, select, compose and send in that order. The
// selection always observes the writes of the reconcile step before it.
type Service struct {
	logger      *slog.Logger
	contacts    Lister
	sender      channel.Sender
	reconciler  Reconciler
	source      channel.EventSource
	selector    *Selector
	headerDelay time.Duration
	cardDelay   time.Duration
	loc         *time.Location
	clock       contacts.Clock
}

// NewService wires the orchestrator. A nil source skips the reconcile step,
// which is how webhook mode and dry runs work.
func NewService(log *slog.Logger, lister Lister, sender channel.Sender, reconciler Reconciler, source channel.EventSource, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = contacts.SystemClock
	}
	if opts.HeaderDelay < 0 {
		opts.HeaderDelay = 0
	}
	if opts.CardDelay < 0 {
		opts.CardDelay = 0
	}
	return &Service{
		logger:      log.With(slog.String("service", "digest")),
		contacts:    lister,
		sender:      sender,
		reconciler:  reconciler,
		source:      source,
		selector:    NewSelector(opts.Policy),
		headerDelay: opts.HeaderDelay,
		cardDelay:   opts.CardDelay,
		loc:         opts.Location,
		clock:       opts.Clock,
	}
}

func (s *Service) Selector() *Selector {
	return s.selector
}

// Run performs one digest. A failed reconcile is logged and the digest still
// goes out; a failed read aborts before anything is sent.
func (s *Service) Run(ctx context.Context) (Report, error) {
	log := logger.FromContextOr(ctx, s.logger)
	var report Report

	if s.source != nil && s.reconciler != nil {
		rec, err := s.reconciler.ReconcilePending(ctx, s.source)
		report.Reconciled = rec
		if err != nil {
			log.Warn("reconcile before digest failed", slog.Any("error", err))
		}
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	all, err := s.contacts.List(ctx, contacts.Filter{})
	if err != nil {
		return report, fmt.Errorf("list contacts: %w", err)
	}
	today := contacts.Today(s.clock, s.loc)
	sel := s.selector.Select(all, today)

	report.Today = today
	report.Contacts = len(all)
	report.Due = len(sel.Due)
	report.DueTotal = sel.DueTotal
	report.Incomplete = len(sel.Incomplete)
	report.IncompleteTotal = sel.IncompleteTotal
	report.Birthdays = len(sel.Birthdays)

	err = s.send(ctx, log, Compose(sel), &report)
	log.Info("digest sent",
		slog.String("date", contacts.FormatDate(today)),
		slog.Int("contacts", report.Contacts),
		slog.Int("due", report.Due),
		slog.Int("due_total", report.DueTotal),
		slog.Int("incomplete", report.Incomplete),
		slog.Int("birthdays", report.Birthdays),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed))
	return report, err
}

// Preview composes the digest for today without reconciling or sending.
func (s *Service) Preview(ctx context.Context) ([]Unit, error) {
	all, err := s.contacts.List(ctx, contacts.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return Compose(s.selector.Select(all, contacts.Today(s.clock, s.loc))), nil
}

// send delivers units one at a time. Every send waits on the card limiter;
// the gaps after the header and before the incomplete header are at least
// the header delay.
func (s *Service) send(ctx context.Context, log *slog.Logger, units []Unit, report *Report) error {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if s.cardDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.cardDelay), 1)
	}

	for i, u := range units {
		if u.Kind == UnitIncompleteHeader && i > 0 {
			if err := pause(ctx, s.headerDelay); err != nil {
				return err
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := s.sender.Send(ctx, u.Message); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report.Failed++
			log.Error("digest unit send failed",
				slog.String("unit", u.Kind.String()),
				slog.String("contact_id", u.ContactID),
				slog.Any("error", err))
			continue
		}
		report.Sent++
		if u.Kind == UnitHeader {
			if err := pause(ctx, s.headerDelay); err != nil {
				return err
			}
		}
	}
	if report.Failed > 0 {
		return fmt.Errorf("%w: %d of %d units failed", ErrDelivery, report.Failed, len(units))
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
