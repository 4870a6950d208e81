package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/logger"
	"github.com/sergeartemyev-blip/social-capital-monitor/internal/state"
)

type memRecorder struct {
	mu   sync.Mutex
	runs []state.Run
}

func (m *memRecorder) RecordRun(_ context.Context, run state.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRecorder) all() []state.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]state.Run(nil), m.runs...)
}

func newTestService(t *testing.T) (*Service, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), rec, time.UTC)
	return svc, rec
}

func TestRegisterRejectsBadPattern(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Register(Job{Name: "digest", Pattern: "not a cron", Run: func(context.Context) (string, error) { return "", nil }})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
	if err := svc.Register(Job{Name: "digest"}); err == nil {
		t.Fatal("expected error for missing run func")
	}
}

func TestJobsListsEnabledAndManual(t *testing.T) {
	svc, _ := newTestService(t)
	noop := func(context.Context) (string, error) { return "", nil }
	require.NoError(t, svc.Register(Job{Name: "digest", Pattern: "0 8 * * *", Run: noop}))
	require.NoError(t, svc.Register(Job{Name: "enrich", Run: noop}))

	jobs := svc.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "digest", jobs[0].Name)
	assert.True(t, jobs[0].Enabled)
	assert.Equal(t, "enrich", jobs[1].Name)
	assert.False(t, jobs[1].Enabled)

	// re-registering without a pattern unschedules the job
	require.NoError(t, svc.Register(Job{Name: "digest", Run: noop}))
	assert.False(t, svc.Jobs()[0].Enabled)
}

func TestRunNowRecordsRunWithRunLogger(t *testing.T) {
	svc, rec := newTestService(t)
	var sawLogger bool
	require.NoError(t, svc.Register(Job{Name: "digest", Run: func(ctx context.Context) (string, error) {
		sawLogger = logger.FromContext(ctx) != logger.L
		return "sent=3", nil
	}}))

	run, err := svc.RunNow(context.Background(), "digest", TriggerManual)
	require.NoError(t, err)
	assert.True(t, sawLogger)
	assert.Equal(t, state.StatusOK, run.Status)
	assert.Equal(t, "sent=3", run.Summary)
	assert.NotEmpty(t, run.ID)

	runs := rec.all()
	require.Len(t, runs, 1)
	assert.Equal(t, "manual", runs[0].Trigger)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestRunNowUnknownJob(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RunNow(context.Background(), "nope", TriggerManual)
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunNowBusyWhileAnotherRunHoldsLock(t *testing.T) {
	svc, rec := newTestService(t)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, svc.Register(Job{Name: "digest", Run: func(context.Context) (string, error) {
		close(started)
		<-release
		return "", nil
	}}))
	require.NoError(t, svc.Register(Job{Name: "reconcile", Run: func(context.Context) (string, error) { return "", nil }}))

	done := make(chan error, 1)
	go func() {
		_, err := svc.RunNow(context.Background(), "digest", TriggerManual)
		done <- err
	}()
	<-started

	_, err := svc.RunNow(context.Background(), "reconcile", TriggerManual)
	assert.ErrorIs(t, err, ErrBusy)

	svc.runScheduled("reconcile")
	close(release)
	require.NoError(t, <-done)

	runs := rec.all()
	require.Len(t, runs, 2)
	assert.Equal(t, state.StatusSkipped, runs[0].Status)
	assert.Equal(t, "reconcile", runs[0].Job)
	assert.Equal(t, "digest", runs[1].Job)
}

func TestExclusiveWaitsForLock(t *testing.T) {
	svc, _ := newTestService(t)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, svc.Register(Job{Name: "digest", Run: func(context.Context) (string, error) {
		close(started)
		<-release
		return "", nil
	}}))
	go func() { _, _ = svc.RunNow(context.Background(), "digest", TriggerManual) }()
	<-started

	var order []string
	var mu sync.Mutex
	exclusiveDone := make(chan struct{})
	go func() {
		_, _ = svc.Exclusive(context.Background(), "webhook", TriggerWebhook, func(context.Context) (string, error) {
			mu.Lock()
			order = append(order, "webhook")
			mu.Unlock()
			return "", nil
		})
		close(exclusiveDone)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, "digest-finished")
	mu.Unlock()
	close(release)
	<-exclusiveDone

	assert.Equal(t, []string{"digest-finished", "webhook"}, order)
}

func TestExclusiveHonorsContext(t *testing.T) {
	svc, _ := newTestService(t)
	svc.lock <- struct{}{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := svc.Exclusive(ctx, "webhook", TriggerWebhook, func(context.Context) (string, error) { return "", nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunFailureAndPanicAreRecorded(t *testing.T) {
	svc, rec := newTestService(t)
	require.NoError(t, svc.Register(Job{Name: "monitor", Run: func(context.Context) (string, error) {
		return "checked=2", errors.New("scrape failed")
	}}))
	require.NoError(t, svc.Register(Job{Name: "enrich", Run: func(context.Context) (string, error) {
		panic("boom")
	}}))

	_, err := svc.RunNow(context.Background(), "monitor", TriggerManual)
	require.Error(t, err)
	_, err = svc.RunNow(context.Background(), "enrich", TriggerManual)
	require.ErrorContains(t, err, "panicked")

	runs := rec.all()
	require.Len(t, runs, 2)
	assert.Equal(t, state.StatusFailed, runs[0].Status)
	assert.Equal(t, "scrape failed", runs[0].Error)
	assert.Equal(t, "checked=2", runs[0].Summary)
	assert.Equal(t, state.StatusFailed, runs[1].Status)

	// the lock is free again
	_, err = svc.RunNow(context.Background(), "monitor", TriggerManual)
	assert.NotErrorIs(t, err, ErrBusy)
}

func TestJobTimeout(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Register(Job{Name: "slow", Timeout: 10 * time.Millisecond, Run: func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}))
	_, err := svc.RunNow(context.Background(), "slow", TriggerManual)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
