package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/actions"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/boot"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel/adapters/local"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel/adapters/telegram"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/config"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/digest"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/enrich"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/handlers"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/logger"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/schedule"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/server"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/social"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/state"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/storage/notion"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/storage/postgres"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/textgen"
)

// appOptions selects how the graph is assembled for one command.
type appOptions struct {
	// DryRun renders the digest to stdout instead of Telegram.
	DryRun bool
	// Server adds the HTTP listener and its handlers.
	Server bool
}

func newApp(opts appOptions, extra ...fx.Option) *fx.App {
	return fx.New(graph(opts, extra...)...)
}

// graph assembles the dependency graph. Constructors run lazily, so a
// command only connects to what its invokes and populates reach.
func graph(opts appOptions, extra ...fx.Option) []fx.Option {
	options := []fx.Option{
		fx.Supply(opts),
		fx.Provide(
			provideConfig,
			boot.ProvideRuntimeConfig,
			provideLogger,

			provideState,
			provideContactStore,
			provideContactService,

			provideReconciler,
			provideDigest,

			provideFetcher,
			provideGemini,
			provideNewsMonitor,
			provideOccupationFiller,

			provideScheduler,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
	}
	if opts.DryRun {
		options = append(options, fx.Provide(provideLocalTransport))
	} else {
		options = append(options, fx.Provide(
			provideTelegram,
			func(a *telegram.TelegramAdapter) channel.Transport { return a },
		))
	}
	if opts.Server {
		options = append(options, fx.Provide(
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideRunsHandler),
			provideServer,
		))
	}
	return append(options, extra...)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideState(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*state.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := state.Open(ctx, log, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func provideContactStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (contacts.Store, error) {
	if err := rc.ValidateStorage(); err != nil {
		return nil, err
	}
	schema := schemaFromConfig(cfg.Schema)
	switch rc.Backend {
	case boot.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool, err := postgres.Open(ctx, rc.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				pool.Close()
				return nil
			},
		})
		return postgres.NewStore(log, pool, cfg.Postgres.Table, schema), nil
	default:
		return notion.NewClient(log, notion.Config{
			Token:       rc.NotionToken,
			DatabaseID:  rc.NotionDatabaseID,
			BaseURL:     cfg.Notion.BaseURL,
			Version:     cfg.Notion.Version,
			PageSize:    cfg.Notion.PageSize,
			Timeout:     seconds(cfg.Notion.TimeoutSeconds),
			TitleField:  schema.Name,
			CircleField: schema.Circle,
		})
	}
}

func provideContactService(store contacts.Store, cfg config.Config) *contacts.Service {
	return contacts.NewService(store, schemaFromConfig(cfg.Schema), labelsFromConfig(cfg.Priorities))
}

func provideTelegram(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig, st *state.Store) (*telegram.TelegramAdapter, error) {
	if err := rc.ValidateTransport(); err != nil {
		return nil, err
	}
	return telegram.NewTelegramAdapter(log, telegram.Config{
		BotToken:       rc.BotToken,
		ChatID:         rc.ChatID,
		PollTimeout:    seconds(cfg.Telegram.PollTimeoutSeconds),
		RequestTimeout: seconds(cfg.Telegram.TimeoutSeconds),
	}, st)
}

func provideLocalTransport() channel.Transport {
	return local.New(os.Stdout)
}

func provideReconciler(log *slog.Logger, svc *contacts.Service, transport channel.Transport, rc *boot.RuntimeConfig) *actions.Reconciler {
	return actions.NewReconciler(log, svc, transport, reconcilePolicy(rc.Backend), rc.Location, contacts.SystemClock)
}

// provideDigest wires pending-press reconciliation only when presses are
// polled; in webhook mode they are applied as they arrive, and a dry run
// must not consume them.
func provideDigest(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig, opts appOptions, svc *contacts.Service, transport channel.Transport, reconciler *actions.Reconciler) *digest.Service {
	var source channel.EventSource
	if rc.Polling() && !opts.DryRun {
		source = transport
	}
	return digest.NewService(log, svc, transport, reconciler, source, digest.Options{
		Policy:      digestPolicy(cfg.Digest),
		HeaderDelay: millis(cfg.Digest.HeaderDelayMillis),
		CardDelay:   millis(cfg.Digest.CardDelayMillis),
		Location:    rc.Location,
		Clock:       contacts.SystemClock,
	})
}

func provideFetcher(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) *social.Fetcher {
	return social.NewFetcher(log, social.Config{
		YouTubeAPIKey: rc.YouTubeAPIKey,
		CacheTTL:      time.Duration(cfg.Monitor.CacheTTLMinute) * time.Minute,
	})
}

func provideGemini(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) *textgen.GeminiClient {
	tries := cfg.Gemini.MaxRetries
	if tries < 0 {
		tries = 0
	}
	client := textgen.NewGeminiClient(log, textgen.Config{
		APIKey:   rc.GeminiAPIKey,
		BaseURL:  cfg.Gemini.BaseURL,
		Model:    cfg.Gemini.Model,
		Timeout:  seconds(cfg.Gemini.TimeoutSeconds),
		MaxTries: uint(tries),
	})
	if !client.Available() {
		log.Warn("gemini api key not set, falling back to plain post excerpts")
	}
	return client
}

func enrichOptions(cfg config.Config, rc *boot.RuntimeConfig) enrich.Options {
	return enrich.Options{
		Circles:       cfg.Digest.MonitoredCircles,
		Priorities:    labelsFromConfig(cfg.Priorities).ParseAll(cfg.Monitor.Priorities),
		LookaheadDays: cfg.Monitor.LookaheadDays,
		MaxPosts:      cfg.Monitor.MaxPosts,
		Pause:         seconds(cfg.Monitor.PauseSeconds),
		Location:      rc.Location,
		Clock:         contacts.SystemClock,
	}
}

func provideNewsMonitor(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig, svc *contacts.Service, fetcher *social.Fetcher, gen *textgen.GeminiClient) *enrich.NewsMonitor {
	pipeline := enrich.NewPipeline(log, enrich.LLMNews{Gen: gen}, enrich.PostBullets{})
	return enrich.NewNewsMonitor(log, svc, fetcher, pipeline, enrichOptions(cfg, rc))
}

func provideOccupationFiller(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig, svc *contacts.Service, fetcher *social.Fetcher, gen *textgen.GeminiClient) *enrich.OccupationFiller {
	pipeline := enrich.NewPipeline(log, enrich.LLMOccupation{Gen: gen}, enrich.CleanBio{})
	return enrich.NewOccupationFiller(log, svc, fetcher, pipeline, enrichOptions(cfg, rc))
}

func provideScheduler(log *slog.Logger, st *state.Store, rc *boot.RuntimeConfig) *schedule.Service {
	return schedule.NewService(log, st, rc.Location)
}

func provideRunsHandler(log *slog.Logger, sched *schedule.Service, st *state.Store, rc *boot.RuntimeConfig) *handlers.RunsHandler {
	return handlers.NewRunsHandler(log, sched, st, rc.WebhookSecret)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.ServerHandlers...)
}

func schemaFromConfig(s config.SchemaConfig) contacts.Schema {
	return contacts.Schema{
		Name:             s.Name,
		Circle:           s.Circle,
		Priority:         s.Priority,
		LastContact:      s.LastContact,
		NextContact:      s.NextContact,
		FrequencyDays:    s.FrequencyDays,
		Instagram:        s.Instagram,
		TelegramChannel:  s.TelegramChannel,
		TelegramPersonal: s.TelegramPersonal,
		YouTube:          s.YouTube,
		Birthday:         s.Birthday,
		Notes:            s.Notes,
		News:             s.News,
		Occupation:       s.Occupation,
		Goals:            s.Goals,
	}
}

func labelsFromConfig(p config.PrioritiesConfig) contacts.PriorityLabels {
	labels := contacts.DefaultPriorityLabels()
	if v := strings.TrimSpace(p.High); v != "" {
		labels.High = v
	}
	if v := strings.TrimSpace(p.Medium); v != "" {
		labels.Medium = v
	}
	if v := strings.TrimSpace(p.Low); v != "" {
		labels.Low = v
	}
	return labels
}

func reconcilePolicy(backend string) actions.Policy {
	policy := actions.DefaultPolicy()
	if backend == boot.BackendPostgres {
		policy.Reference = contacts.RecordReference
	}
	return policy
}

func digestPolicy(d config.DigestConfig) digest.Policy {
	policy := digest.DefaultPolicy(d.MonitoredCircles)
	// Zero windows are meaningful: today-and-overdue only, birthdays today only.
	if d.LookaheadDays >= 0 {
		policy.LookaheadDays = d.LookaheadDays
	}
	if d.MaxDue > 0 {
		policy.MaxDue = d.MaxDue
	}
	if d.MaxIncomplete > 0 {
		policy.MaxIncomplete = d.MaxIncomplete
	}
	if d.BirthdayWindowDays >= 0 {
		policy.BirthdayWindowDays = d.BirthdayWindowDays
	}
	return policy
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }
