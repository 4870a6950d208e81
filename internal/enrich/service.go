package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/logger"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/social"
)

const (
	DefaultPause         = 3 * time.Second
	DefaultLookaheadDays = 7
	DefaultMaxPosts      = 5
	maxVideos            = 2
)

// ContactStore reads contacts and performs the enrichment writes.
type ContactStore interface {
	List(ctx context.Context, filter contacts.Filter) ([]contacts.Contact, error)
	SetNews(ctx context.Context, id, text string) error
	SetOccupation(ctx context.Context, id, text string) error
}

// PostSource fetches recent public posts.
type PostSource interface {
	TelegramPosts(ctx context.Context, channel string, max int) ([]social.Post, error)
	InstagramPosts(ctx context.Context, username string, max int) ([]social.Post, error)
	YouTubeVideos(ctx context.Context, link string, max int) ([]social.Post, error)
}

// ProfileSource fetches Telegram bios and channel descriptions.
type ProfileSource interface {
	TelegramProfile(ctx context.Context, username string) (string, error)
	TelegramChannelInfo(ctx context.Context, channel string) (social.ChannelInfo, error)
}

type Options struct {
	Circles       []string
	Priorities    []contacts.Priority
	LookaheadDays int
	MaxPosts      int
	// Pause is the minimum gap between two contacts.
	Pause    time.Duration
	Location *time.Location
	Clock    contacts.Clock
}

func (o Options) normalized() Options {
	if o.LookaheadDays <= 0 {
		o.LookaheadDays = DefaultLookaheadDays
	}
	if o.MaxPosts <= 0 {
		o.MaxPosts = DefaultMaxPosts
	}
	if o.Pause < 0 {
		o.Pause = 0
	}
	if o.Clock == nil {
		o.Clock = contacts.SystemClock
	}
	if len(o.Priorities) == 0 {
		o.Priorities = []contacts.Priority{contacts.PriorityHigh, contacts.PriorityMedium}
	}
	return o
}

// Report counts one enrichment run.
type Report struct {
	Candidates int
	Updated    int
	Skipped    int
	Failed     int
}

func (r Report) String() string {
	return fmt.Sprintf("candidates=%d updated=%d skipped=%d failed=%d", r.Candidates, r.Updated, r.Skipped, r.Failed)
}

// pacer spaces contacts out; the first one goes immediately.
func pacer(pause time.Duration) *rate.Limiter {
	if pause <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(pause), 1)
}

// NewsMonitor refreshes the news field of contacts that are coming due.
type NewsMonitor struct {
	logger   *slog.Logger
	store    ContactStore
	posts    PostSource
	pipeline *Pipeline
	opts     Options
}

func NewNewsMonitor(log *slog.Logger, store ContactStore, posts PostSource, pipeline *Pipeline, opts Options) *NewsMonitor {
	if log == nil {
		log = slog.Default()
	}
	return &NewsMonitor{
		logger:   log.With(slog.String("service", "monitor")),
		store:    store,
		posts:    posts,
		pipeline: pipeline,
		opts:     opts.normalized(),
	}
}

// Candidates returns the contacts whose news should be refreshed today:
// due within the lookahead window, or undated and high priority, of a watched
// priority, and with an Instagram or Telegram channel link.
func (m *NewsMonitor) Candidates(all []contacts.Contact, today time.Time) []contacts.Contact {
	cutoff := contacts.AddDays(today, m.opts.LookaheadDays)
	var out []contacts.Contact
	for _, c := range all {
		if len(m.opts.Circles) > 0 && !slices.Contains(m.opts.Circles, c.Circle) {
			continue
		}
		if !slices.Contains(m.opts.Priorities, c.Priority) {
			continue
		}
		if c.InstagramHandle() == "" && c.TelegramChannelHandle() == "" {
			continue
		}
		switch {
		case c.HasComputedNext():
			if c.ComputedNext.After(cutoff) {
				continue
			}
		case !c.Undated() || c.Priority != contacts.PriorityHigh:
			continue
		}
		out = append(out, c)
	}
	return out
}

func (m *NewsMonitor) collect(ctx context.Context, log *slog.Logger, c contacts.Contact) []social.Post {
	var posts []social.Post
	gather := func(source string, fetch func() ([]social.Post, error)) {
		got, err := fetch()
		if err != nil {
			if !errors.Is(err, social.ErrNoAPIKey) {
				log.Warn("fetch posts failed", slog.String("source", source), slog.Any("error", err))
			}
			return
		}
		log.Debug("posts fetched", slog.String("source", source), slog.Int("count", len(got)))
		posts = append(posts, got...)
	}
	if handle := c.InstagramHandle(); handle != "" {
		gather("instagram", func() ([]social.Post, error) { return m.posts.InstagramPosts(ctx, handle, m.opts.MaxPosts) })
	}
	if channel := c.TelegramChannelHandle(); channel != "" {
		gather("telegram", func() ([]social.Post, error) { return m.posts.TelegramPosts(ctx, channel, m.opts.MaxPosts) })
	}
	if c.YouTube != "" {
		gather("youtube", func() ([]social.Post, error) { return m.posts.YouTubeVideos(ctx, c.YouTube, maxVideos) })
	}
	return posts
}

// Run refreshes news for every candidate. Per-contact failures are
// counted; only a failed contact listing or cancellation aborts.
func (m *NewsMonitor) Run(ctx context.Context) (Report, error) {
	log := logger.FromContextOr(ctx, m.logger)
	today := contacts.Today(m.opts.Clock, m.opts.Location)

	all, err := m.store.List(ctx, contacts.Filter{Circles: m.opts.Circles})
	if err != nil {
		return Report{}, fmt.Errorf("list contacts: %w", err)
	}
	candidates := m.Candidates(all, today)
	report := Report{Candidates: len(candidates)}
	log.Info("news monitor started", slog.Int("candidates", len(candidates)))

	limiter := pacer(m.opts.Pause)
	for _, c := range candidates {
		if err := limiter.Wait(ctx); err != nil {
			return report, err
		}
		clog := log.With(slog.String("contact_id", c.ID), slog.String("contact", c.Name))

		posts := m.collect(ctx, clog, c)
		if len(posts) == 0 {
			clog.Info("no posts found")
			report.Skipped++
			continue
		}
		text, strategy, err := m.pipeline.Run(ctx, Subject{Name: c.Name, Posts: posts})
		if err != nil {
			return report, err
		}
		if text == "" {
			report.Skipped++
			continue
		}
		news := fmt.Sprintf("[Обновлено %s]\n%s", today.Format("02.01.2006"), text)
		if err := m.store.SetNews(ctx, c.ID, news); err != nil {
			clog.Error("write news failed", slog.Any("error", err))
			report.Failed++
			continue
		}
		clog.Info("news updated", slog.String("strategy", strategy), slog.Int("posts", len(posts)))
		report.Updated++
	}
	log.Info("news monitor finished", slog.String("report", report.String()))
	return report, nil
}

// OccupationFiller fills an empty occupation from Telegram bios and channels.
type OccupationFiller struct {
	logger   *slog.Logger
	store    ContactStore
	profiles ProfileSource
	pipeline *Pipeline
	opts     Options
}

func NewOccupationFiller(log *slog.Logger, store ContactStore, profiles ProfileSource, pipeline *Pipeline, opts Options) *OccupationFiller {
	if log == nil {
		log = slog.Default()
	}
	return &OccupationFiller{
		logger:   log.With(slog.String("service", "enrich")),
		store:    store,
		profiles: profiles,
		pipeline: pipeline,
		opts:     opts.normalized(),
	}
}

// Candidates returns monitored contacts with no occupation and at least
// one public Telegram link.
func (f *OccupationFiller) Candidates(all []contacts.Contact) []contacts.Contact {
	var out []contacts.Contact
	for _, c := range all {
		if len(f.opts.Circles) > 0 && !slices.Contains(f.opts.Circles, c.Circle) {
			continue
		}
		if c.Occupation != "" {
			continue
		}
		if c.TelegramUsername() == "" && c.TelegramChannelHandle() == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (f *OccupationFiller) subject(ctx context.Context, log *slog.Logger, c contacts.Contact) Subject {
	s := Subject{Name: c.Name}
	if username := c.TelegramUsername(); username != "" {
		bio, err := f.profiles.TelegramProfile(ctx, username)
		if err != nil {
			log.Warn("fetch bio failed", slog.Any("error", err))
		}
		s.Bio = bio
	}
	if channel := c.TelegramChannelHandle(); channel != "" {
		info, err := f.profiles.TelegramChannelInfo(ctx, channel)
		if err != nil {
			log.Warn("fetch channel failed", slog.Any("error", err))
		}
		s.ChannelDescription = info.Description
		s.Posts = info.Posts
	}
	return s
}

// Run fills the occupation of every candidate it can.
func (f *OccupationFiller) Run(ctx context.Context) (Report, error) {
	log := logger.FromContextOr(ctx, f.logger)

	all, err := f.store.List(ctx, contacts.Filter{Circles: f.opts.Circles})
	if err != nil {
		return Report{}, fmt.Errorf("list contacts: %w", err)
	}
	candidates := f.Candidates(all)
	report := Report{Candidates: len(candidates)}
	log.Info("occupation fill started", slog.Int("candidates", len(candidates)))

	limiter := pacer(f.opts.Pause)
	for _, c := range candidates {
		if err := limiter.Wait(ctx); err != nil {
			return report, err
		}
		clog := log.With(slog.String("contact_id", c.ID), slog.String("contact", c.Name))

		text, strategy, err := f.pipeline.Run(ctx, f.subject(ctx, clog, c))
		if err != nil {
			return report, err
		}
		if text == "" {
			clog.Info("occupation not found")
			report.Skipped++
			continue
		}
		if err := f.store.SetOccupation(ctx, c.ID, text); err != nil {
			clog.Error("write occupation failed", slog.Any("error", err))
			report.Failed++
			continue
		}
		clog.Info("occupation filled", slog.String("strategy", strategy), slog.String("occupation", text))
		report.Updated++
	}
	log.Info("occupation fill finished", slog.String("report", report.String()))
	return report, nil
}
