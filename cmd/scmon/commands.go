package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/sergeartemyev-blip/social-capital-monitor/db"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/actions"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/boot"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/channel/adapters/telegram"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/config"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/digest"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/enrich"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/handlers"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/schedule"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/server"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/state"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/storage/postgres"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/version"
)

const (
	jobDigest    = "digest"
	jobReconcile = "reconcile"
	jobMonitor   = "monitor"
	jobEnrich    = "enrich"
	stopTimeout  = 30 * time.Second
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and, when enabled, the HTTP listener",
		RunE:  runServe,
	}
	digestCmd = &cobra.Command{
		Use:   "digest",
		Short: "Reconcile pending presses and send today's digest",
		RunE:  runDigest,
	}
	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Apply pending button presses (poll mode)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, jobReconcile, fx.Invoke(registerReconcileJob))
		},
	}
	monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Refresh the news field from public channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, jobMonitor, fx.Invoke(registerMonitorJob))
		},
	}
	enrichCmd = &cobra.Command{
		Use:   "enrich",
		Short: "Fill empty occupations from Telegram bios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, jobEnrich, fx.Invoke(registerEnrichJob))
		},
	}
	webhookCmd = &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}
	webhookSetCmd = &cobra.Command{
		Use:   "set <public-base-url>",
		Short: "Point Telegram at this server's webhook endpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  runWebhookSet,
	}
	webhookDeleteCmd = &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook and go back to polling",
		Args:  cobra.NoArgs,
		RunE:  runWebhookDelete,
	}
	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "Show the most recent job runs",
		Args:  cobra.NoArgs,
		RunE:  runRuns,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate <up|down|version|force> [version]",
		Short: "Migrate the Postgres contact table",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runMigrate,
	}

	dryRun    bool
	runsLimit int
)

func init() {
	digestCmd.Flags().BoolVar(&dryRun, "dry-run", false, "render the digest to stdout and leave pending presses untouched")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to show")
	webhookCmd.AddCommand(webhookSetCmd)
	webhookCmd.AddCommand(webhookDeleteCmd)
}

// jobParams collects what the job registrations need. The services are
// pulled in by the individual register functions so a one-shot command
// only builds its own dependencies.
type jobParams struct {
	fx.In

	Config    config.Config
	Scheduler *schedule.Service
}

func registerDigestJob(p jobParams, svc *digest.Service) error {
	return p.Scheduler.Register(schedule.Job{
		Name:    jobDigest,
		Pattern: p.Config.Schedule.Digest,
		Timeout: 15 * time.Minute,
		Run: func(ctx context.Context) (string, error) {
			report, err := svc.Run(ctx)
			return report.String(), err
		},
	})
}

// registerReconcileJob schedules polling only in poll mode. In webhook
// mode the job stays registered for manual runs and refuses to poll,
// since getUpdates fails while a webhook is set.
func registerReconcileJob(p jobParams, rc *boot.RuntimeConfig, reconciler *actions.Reconciler, source channel.Transport) error {
	pattern := p.Config.Schedule.Reconcile
	if !rc.Polling() {
		pattern = ""
	}
	return p.Scheduler.Register(schedule.Job{
		Name:    jobReconcile,
		Pattern: pattern,
		Timeout: 2 * time.Minute,
		Run: func(ctx context.Context) (string, error) {
			if !rc.Polling() {
				return "", errors.New("reconcile polls updates; presses are delivered by the webhook in webhook mode")
			}
			report, err := reconciler.ReconcilePending(ctx, source)
			return report.String(), err
		},
	})
}

func registerMonitorJob(p jobParams, monitor *enrich.NewsMonitor) error {
	return p.Scheduler.Register(schedule.Job{
		Name:    jobMonitor,
		Pattern: p.Config.Schedule.Monitor,
		Timeout: 2 * time.Hour,
		Run: func(ctx context.Context) (string, error) {
			report, err := monitor.Run(ctx)
			return report.String(), err
		},
	})
}

func registerEnrichJob(p jobParams, filler *enrich.OccupationFiller) error {
	return p.Scheduler.Register(schedule.Job{
		Name:    jobEnrich,
		Pattern: p.Config.Schedule.Enrich,
		Timeout: 2 * time.Hour,
		Run: func(ctx context.Context) (string, error) {
			report, err := filler.Run(ctx)
			return report.String(), err
		},
	})
}

func startScheduler(lc fx.Lifecycle, sched *schedule.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sched.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

func provideWebhookHandler(log *slog.Logger, rc *boot.RuntimeConfig, reconciler *actions.Reconciler, sched *schedule.Service, st *state.Store) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, rc.WebhookSecret, rc.ChatID, reconciler, sched, st)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := provideConfig()
	if err != nil {
		return err
	}
	rc, err := boot.ProvideRuntimeConfig(cfg)
	if err != nil {
		return err
	}
	webhook := rc.Mode == boot.ModeWebhook
	opts := appOptions{Server: cfg.Server.Enabled || webhook}

	extra := []fx.Option{
		fx.Invoke(registerDigestJob, registerReconcileJob, registerMonitorJob, registerEnrichJob),
		fx.Invoke(startScheduler),
	}
	if webhook {
		extra = append(extra, fx.Provide(provideServerHandler(provideWebhookHandler)))
	}
	if opts.Server {
		extra = append(extra, fx.Invoke(startServer))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Starting scmon %s\n", version.GetInfo())

	app := newApp(opts, extra...)
	if err := app.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(cmd.Context(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	select {
	case <-cmd.Context().Done():
	case <-app.Wait():
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	return app.Stop(stopCtx)
}

func runDigest(cmd *cobra.Command, _ []string) error {
	if !dryRun {
		return runJob(cmd, jobDigest, fx.Invoke(registerDigestJob))
	}
	var svc *digest.Service
	return oneShot(cmd, appOptions{DryRun: true}, func(ctx context.Context) error {
		report, err := svc.Run(ctx)
		fmt.Fprintln(cmd.OutOrStdout(), report.String())
		return err
	}, fx.Populate(&svc))
}

// runJob builds the graph for one registered job and runs it through the
// scheduler so the run is serialized with a live daemon's jobs and lands
// in the run log.
func runJob(cmd *cobra.Command, name string, register fx.Option) error {
	var sched *schedule.Service
	return oneShot(cmd, appOptions{}, func(ctx context.Context) error {
		run, err := sched.RunNow(ctx, name, schedule.TriggerManual)
		if run.ID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s in %s\n", run.Job, run.Status, run.Summary, run.Duration().Round(time.Millisecond))
		}
		return err
	}, register, fx.Populate(&sched))
}

// oneShot starts the app, runs fn and stops the app whatever fn returns.
func oneShot(cmd *cobra.Command, opts appOptions, fn func(ctx context.Context) error, extra ...fx.Option) (err error) {
	app := newApp(opts, extra...)
	if err := app.Err(); err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		err = errors.Join(err, app.Stop(stopCtx))
	}()
	return fn(ctx)
}

func runWebhookSet(cmd *cobra.Command, args []string) error {
	var (
		adapter *telegram.TelegramAdapter
		rc      *boot.RuntimeConfig
	)
	return oneShot(cmd, appOptions{}, func(ctx context.Context) error {
		if rc.Mode != boot.ModeWebhook {
			return fmt.Errorf("telegram mode is %q; set mode = %q before registering a webhook", rc.Mode, boot.ModeWebhook)
		}
		target, err := webhookURL(args[0], rc.WebhookSecret)
		if err != nil {
			return err
		}
		return adapter.SetWebhook(ctx, target)
	}, fx.Populate(&adapter, &rc))
}

func runWebhookDelete(cmd *cobra.Command, _ []string) error {
	var adapter *telegram.TelegramAdapter
	return oneShot(cmd, appOptions{}, func(ctx context.Context) error {
		return adapter.DeleteWebhook(ctx)
	}, fx.Populate(&adapter))
}

// webhookURL appends the webhook path and the shared secret to base.
func webhookURL(base, secret string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("webhook url: %w", err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("webhook url must be an absolute https url, got %q", base)
	}
	if !strings.HasSuffix(u.Path, handlers.WebhookPath) {
		u.Path = strings.TrimRight(u.Path, "/") + handlers.WebhookPath
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func runRuns(cmd *cobra.Command, _ []string) error {
	var st *state.Store
	return oneShot(cmd, appOptions{}, func(ctx context.Context) error {
		runs, err := st.RecentRuns(ctx, runsLimit)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), runsTable(runs))
		return nil
	}, fx.Populate(&st))
}

func runsTable(runs []state.Run) string {
	t := table.New().Headers("STARTED", "JOB", "TRIGGER", "STATUS", "TOOK", "SUMMARY")
	for _, r := range runs {
		summary := r.Summary
		if r.Error != "" {
			summary = strings.TrimSpace(summary + " error: " + r.Error)
		}
		t.Row(
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Job,
			r.Trigger,
			string(r.Status),
			r.Duration().Round(time.Millisecond).String(),
			summary,
		)
	}
	return t.Render()
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := provideConfig()
	if err != nil {
		return err
	}
	log := provideLogger(cfg)
	rc, err := boot.ProvideRuntimeConfig(cfg)
	if err != nil {
		return err
	}
	return postgres.RunMigrate(log, rc.PostgresURL, db.MigrationsFS, "migrations", args[0], args[1:])
}
