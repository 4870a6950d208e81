// Package schedule runs the periodic jobs. All jobs share one run lock, so
// a digest, a reconcile pass and an enrichment run never overlap.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/logger"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/state"
)

// RunRecorder persists finished runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, run state.Run) error
}

type Service struct {
	cron     *cron.Cron
	parser   cron.Parser
	recorder RunRecorder
	logger   *slog.Logger
	clock    func() time.Time
	lock     chan struct{}
	mu       sync.Mutex
	jobs     map[string]Job
	entries  map[string]cron.EntryID
}

// NewService builds an idle scheduler evaluating patterns in loc.
// recorder may be nil.
func NewService(log *slog.Logger, recorder RunRecorder, loc *time.Location) *Service {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Service{
		cron:     cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		parser:   parser,
		recorder: recorder,
		logger:   log.With(slog.String("service", "schedule")),
		clock:    time.Now,
		lock:     make(chan struct{}, 1),
		jobs:     map[string]Job{},
		entries:  map[string]cron.EntryID{},
	}
}

// Register adds a job, replacing any job with the same name.
func (s *Service) Register(job Job) error {
	job.Name = strings.TrimSpace(job.Name)
	job.Pattern = strings.TrimSpace(job.Pattern)
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job name and run func are required")
	}
	if job.Pattern != "" {
		if _, err := s.parser.Parse(job.Pattern); err != nil {
			return fmt.Errorf("invalid cron pattern for %s: %w", job.Name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[job.Name]; ok {
		s.cron.Remove(id)
		delete(s.entries, job.Name)
	}
	s.jobs[job.Name] = job
	if job.Pattern == "" {
		return nil
	}
	name := job.Name
	id, err := s.cron.AddFunc(job.Pattern, func() { s.runScheduled(name) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	s.entries[job.Name] = id
	s.logger.Info("job scheduled", slog.String("job", job.Name), slog.String("pattern", job.Pattern))
	return nil
}

func (s *Service) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running job until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs lists registered jobs by name.
func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for name, job := range s.jobs {
		info := JobInfo{Name: name, Pattern: job.Pattern}
		if id, ok := s.entries[name]; ok {
			info.Enabled = true
			info.Next = s.cron.Entry(id).Next
		}
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// RunNow runs a registered job immediately, or returns ErrBusy when
// another run holds the lock.
func (s *Service) RunNow(ctx context.Context, name string, trigger Trigger) (state.Run, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return state.Run{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	select {
	case s.lock <- struct{}{}:
	default:
		return state.Run{}, ErrBusy
	}
	defer func() { <-s.lock }()
	return s.execute(ctx, job, trigger)
}

// Exclusive waits for the run lock and then runs fn as a job named name.
// It is used for work that must not be dropped, like a webhook press.
func (s *Service) Exclusive(ctx context.Context, name string, trigger Trigger, fn RunFunc) (state.Run, error) {
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return state.Run{}, ctx.Err()
	}
	defer func() { <-s.lock }()
	return s.execute(ctx, Job{Name: name, Run: fn}, trigger)
}

func (s *Service) runScheduled(name string) {
	_, err := s.RunNow(context.Background(), name, TriggerSchedule)
	if errors.Is(err, ErrBusy) {
		s.logger.Info("job skipped, another run in progress", slog.String("job", name))
		now := s.clock()
		s.record(context.Background(), state.Run{
			ID:         uuid.NewString(),
			Job:        name,
			Trigger:    string(TriggerSchedule),
			Status:     state.StatusSkipped,
			Error:      ErrBusy.Error(),
			StartedAt:  now,
			FinishedAt: now,
		})
	}
}

func (s *Service) execute(ctx context.Context, job Job, trigger Trigger) (state.Run, error) {
	ctx, runID := logger.StartRun(ctx, s.logger, job.Name)
	log := logger.FromContext(ctx)
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	run := state.Run{ID: runID, Job: job.Name, Trigger: string(trigger), StartedAt: s.clock()}
	log.Info("run started", slog.String("trigger", string(trigger)))

	summary, err := safeRun(ctx, job.Run)
	run.FinishedAt = s.clock()
	run.Summary = summary
	run.Status = state.StatusOK
	if err != nil {
		run.Status = state.StatusFailed
		run.Error = err.Error()
		log.Error("run failed", slog.String("summary", summary), slog.Duration("duration", run.Duration()), slog.Any("error", err))
	} else {
		log.Info("run finished", slog.String("summary", summary), slog.Duration("duration", run.Duration()))
	}
	s.record(ctx, run)
	return run, err
}

func (s *Service) record(ctx context.Context, run state.Run) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.recorder.RecordRun(ctx, run); err != nil {
		s.logger.Warn("record run failed", slog.String("job", run.Job), slog.Any("error", err))
	}
}

// safeRun converts a job panic into an error.
func safeRun(ctx context.Context, fn RunFunc) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}
